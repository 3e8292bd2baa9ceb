package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/fieldcrypto"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const transactionColumns = `transaction_id, provider, provider_transaction_id, phone_number, amount, currency, status, message, raw_request, raw_response, reference, narration, transactionable_type, transactionable_id, paid_at, failed_at, created_at, updated_at`

// PgTransactionRepository stores transactions in mobile_wallet_transactions.
// phone_number, raw_request and raw_response pass through the configured
// cipher on write and read.
type PgTransactionRepository struct {
	db     DBTX
	cipher fieldcrypto.Cipher
	logger *slog.Logger
}

func NewPgTransactionRepository(db DBTX, cipher fieldcrypto.Cipher, logger *slog.Logger) *PgTransactionRepository {
	if cipher == nil {
		cipher = fieldcrypto.Nop{}
	}
	return &PgTransactionRepository{db: db, cipher: cipher, logger: logger.With("component", "transaction_repository_pg")}
}

// encodeRaw returns the JSONB value for a raw payload. Encrypted payloads are
// stored as a JSON string holding the ciphertext.
func (r *PgTransactionRepository) encodeRaw(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	sealed, err := r.cipher.Encrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}
	if !strings.HasPrefix(sealed, fieldcrypto.Prefix) {
		return raw, nil
	}
	return json.Marshal(sealed)
}

func (r *PgTransactionRepository) decodeRaw(stored []byte) (json.RawMessage, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	if !strings.HasPrefix(string(stored), `"`+fieldcrypto.Prefix) {
		return json.RawMessage(stored), nil
	}
	var sealed string
	if err := json.Unmarshal(stored, &sealed); err != nil {
		return nil, fmt.Errorf("decoding sealed payload: %w", err)
	}
	plain, err := r.cipher.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypting payload: %w", err)
	}
	return json.RawMessage(plain), nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func (r *PgTransactionRepository) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                                        domain.Transaction
		provider, status, phone                   string
		providerTxID, message, ownerType, ownerID sql.NullString
		rawRequest, rawResponse                   []byte
		paidAt, failedAt                          sql.NullTime
	)
	err := row.Scan(
		&tx.TransactionID, &provider, &providerTxID, &phone, &tx.Amount, &tx.Currency, &status, &message,
		&rawRequest, &rawResponse, &tx.Reference, &tx.Narration, &ownerType, &ownerID,
		&paidAt, &failedAt, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Provider = domain.Provider(provider)
	tx.Status = domain.Status(status)
	tx.ProviderTransactionID = ptr(providerTxID)
	tx.Message = ptr(message)
	tx.TransactionableType = ptr(ownerType)
	tx.TransactionableID = ptr(ownerID)
	tx.PaidAt = ptrTime(paidAt)
	tx.FailedAt = ptrTime(failedAt)

	if tx.PhoneNumber, err = r.cipher.Decrypt(phone); err != nil {
		return nil, fmt.Errorf("decrypting phone number: %w", err)
	}
	if tx.RawRequest, err = r.decodeRaw(rawRequest); err != nil {
		return nil, err
	}
	if tx.RawResponse, err = r.decodeRaw(rawResponse); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *PgTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	phone, err := r.cipher.Encrypt(tx.PhoneNumber)
	if err != nil {
		return fmt.Errorf("encrypting phone number: %w", err)
	}
	rawRequest, err := r.encodeRaw(tx.RawRequest)
	if err != nil {
		return err
	}
	rawResponse, err := r.encodeRaw(tx.RawResponse)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mobile_wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.Exec(ctx, query,
		tx.TransactionID, string(tx.Provider), nullable(tx.ProviderTransactionID), phone, tx.Amount, tx.Currency,
		string(tx.Status), nullable(tx.Message), rawRequest, rawResponse, tx.Reference, tx.Narration,
		nullable(tx.TransactionableType), nullable(tx.TransactionableID),
		nullableTime(tx.PaidAt), nullableTime(tx.FailedAt), tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating transaction", "error", err, "transaction_id", tx.TransactionID)
		return fmt.Errorf("creating transaction: %w", err)
	}
	r.logger.InfoContext(ctx, "Transaction created", "transaction_id", tx.TransactionID, "provider", tx.Provider)
	return nil
}

func (r *PgTransactionRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM mobile_wallet_transactions WHERE ` + where
	tx, err := r.scanTransaction(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (r *PgTransactionRepository) GetByTransactionID(ctx context.Context, transactionID string, provider domain.Provider) (*domain.Transaction, error) {
	var (
		tx  *domain.Transaction
		err error
	)
	if provider == "" {
		tx, err = r.getOne(ctx, `transaction_id = $1`, transactionID)
	} else {
		tx, err = r.getOne(ctx, `transaction_id = $1 AND provider = $2`, transactionID, string(provider))
	}
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		r.logger.ErrorContext(ctx, "Error getting transaction", "error", err, "transaction_id", transactionID)
		return nil, fmt.Errorf("getting transaction %s: %w", transactionID, err)
	}
	return tx, err
}

func (r *PgTransactionRepository) GetByProviderTransactionID(ctx context.Context, providerTransactionID string, provider domain.Provider) (*domain.Transaction, error) {
	tx, err := r.getOne(ctx, `provider_transaction_id = $1 AND provider = $2`, providerTransactionID, string(provider))
	if err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		r.logger.ErrorContext(ctx, "Error getting transaction by provider reference", "error", err, "provider_transaction_id", providerTransactionID)
		return nil, fmt.Errorf("getting transaction by provider reference %s: %w", providerTransactionID, err)
	}
	return tx, err
}

func (r *PgTransactionRepository) exec(ctx context.Context, op, transactionID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating transaction", "op", op, "error", err, "transaction_id", transactionID)
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *PgTransactionRepository) SaveRequest(ctx context.Context, transactionID string, rawRequest json.RawMessage) error {
	raw, err := r.encodeRaw(rawRequest)
	if err != nil {
		return err
	}
	return r.exec(ctx, "saving raw request", transactionID,
		`UPDATE mobile_wallet_transactions SET raw_request = $2, updated_at = NOW() WHERE transaction_id = $1`,
		transactionID, raw)
}

func (r *PgTransactionRepository) SaveResponse(ctx context.Context, transactionID string, rawResponse json.RawMessage) error {
	raw, err := r.encodeRaw(rawResponse)
	if err != nil {
		return err
	}
	return r.exec(ctx, "saving raw response", transactionID,
		`UPDATE mobile_wallet_transactions SET raw_response = $2, updated_at = NOW() WHERE transaction_id = $1`,
		transactionID, raw)
}

func (r *PgTransactionRepository) AttachProviderReference(ctx context.Context, transactionID, providerTransactionID string, rawResponse json.RawMessage) error {
	raw, err := r.encodeRaw(rawResponse)
	if err != nil {
		return err
	}
	return r.exec(ctx, "attaching provider reference", transactionID,
		`UPDATE mobile_wallet_transactions SET provider_transaction_id = COALESCE(provider_transaction_id, NULLIF($2::text, '')), raw_response = $3, updated_at = NOW() WHERE transaction_id = $1`,
		transactionID, providerTransactionID, raw)
}

// Transition is a compare-and-swap on status = 'pending'. When the swap
// misses, the stored row decides between a no-op and ErrInvalidTransition.
func (r *PgTransactionRepository) Transition(ctx context.Context, transactionID string, to domain.Status, message *string, at time.Time) (*domain.Transaction, bool, error) {
	if to == domain.StatusPending {
		tx, err := r.GetByTransactionID(ctx, transactionID, "")
		return tx, false, err
	}

	query := `
		UPDATE mobile_wallet_transactions
		SET status = $2::text,
			message = COALESCE($3::text, message),
			paid_at = CASE WHEN $2::text = 'paid' THEN $4::timestamptz ELSE paid_at END,
			failed_at = CASE WHEN $2::text = 'failed' THEN $4::timestamptz ELSE failed_at END,
			updated_at = $4::timestamptz
		WHERE transaction_id = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	tx, err := r.scanTransaction(r.db.QueryRow(ctx, query, transactionID, string(to), nullable(message), at))
	if err == nil {
		r.logger.InfoContext(ctx, "Transaction transitioned", "transaction_id", transactionID, "status", to)
		return tx, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.ErrorContext(ctx, "Error transitioning transaction", "error", err, "transaction_id", transactionID)
		return nil, false, fmt.Errorf("transitioning transaction %s: %w", transactionID, err)
	}

	current, err := r.GetByTransactionID(ctx, transactionID, "")
	if err != nil {
		return nil, false, err
	}
	if current.Status == to {
		return current, false, nil
	}
	return current, false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
}

func buildWhere(f domain.TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Provider != "" {
		add("provider = $%d", string(f.Provider))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.PhoneNumber != "" {
		add("phone_number LIKE '%%' || $%d || '%%'", f.PhoneNumber)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// searchable drops the phone filter when phone numbers are stored encrypted.
func (r *PgTransactionRepository) searchable(ctx context.Context, f domain.TransactionFilter) domain.TransactionFilter {
	if _, plain := r.cipher.(fieldcrypto.Nop); !plain && f.PhoneNumber != "" {
		r.logger.WarnContext(ctx, "Ignoring phone number filter on encrypted store")
		f.PhoneNumber = ""
	}
	return f
}

func (r *PgTransactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	f = r.searchable(ctx, f)
	where, args := buildWhere(f)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM mobile_wallet_transactions`+where, args...).Scan(&total); err != nil {
		r.logger.ErrorContext(ctx, "Error counting transactions", "error", err)
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM mobile_wallet_transactions%s ORDER BY created_at DESC, transaction_id LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, f.Limit(), f.Offset())...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing transactions", "error", err)
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, int(total), nil
}

func (r *PgTransactionRepository) Summarize(ctx context.Context, f domain.TransactionFilter) (*domain.TransactionSummary, error) {
	where, args := buildWhere(r.searchable(ctx, f))
	query := `SELECT provider, status, COUNT(*), COALESCE(SUM(amount), 0) FROM mobile_wallet_transactions` + where +
		` GROUP BY provider, status ORDER BY provider, status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error summarizing transactions", "error", err)
		return nil, fmt.Errorf("summarizing transactions: %w", err)
	}
	defer rows.Close()

	summary := &domain.TransactionSummary{TotalAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for rows.Next() {
		var (
			provider, status string
			count            int64
			amount           decimal.Decimal
		)
		if err := rows.Scan(&provider, &status, &count, &amount); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		b := domain.StatusTotals{Provider: domain.Provider(provider), Status: domain.Status(status), Count: int(count), Amount: amount}
		summary.Buckets = append(summary.Buckets, b)
		summary.TotalCount += b.Count
		summary.TotalAmount = summary.TotalAmount.Add(amount)
		if b.Status == domain.StatusPaid {
			summary.PaidAmount = summary.PaidAmount.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}
	return summary, nil
}
