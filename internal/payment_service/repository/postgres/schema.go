package postgres

// Schema creates mobile_wallet_transactions and its lookup indexes. Every
// statement is idempotent; migrations/ carries the same DDL for external
// migration tooling.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS mobile_wallet_transactions (
		transaction_id          TEXT PRIMARY KEY,
		provider                TEXT NOT NULL,
		provider_transaction_id TEXT,
		phone_number            TEXT NOT NULL,
		amount                  NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
		currency                CHAR(3) NOT NULL DEFAULT 'ZMW',
		status                  TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'paid', 'failed')),
		message                 TEXT,
		raw_request             JSONB,
		raw_response            JSONB,
		reference               TEXT NOT NULL DEFAULT '',
		narration               TEXT NOT NULL DEFAULT '',
		transactionable_type    TEXT,
		transactionable_id      TEXT,
		paid_at                 TIMESTAMPTZ,
		failed_at               TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mobile_wallet_transactions_provider_ref_idx
		ON mobile_wallet_transactions (provider, provider_transaction_id)
		WHERE provider_transaction_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS mobile_wallet_transactions_status_idx
		ON mobile_wallet_transactions (status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS mobile_wallet_transactions_owner_idx
		ON mobile_wallet_transactions (transactionable_type, transactionable_id)`,
}
