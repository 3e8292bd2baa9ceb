package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTx() *Transaction {
	return &Transaction{
		TransactionID: "9b2f0c1e-3a43-4c89-a0b5-8d7b5f1d2e11",
		Provider:      ProviderMTN,
		Amount:        decimal.RequireFromString("100.00"),
		Currency:      "ZMW",
		Status:        StatusPending,
	}
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Airtel ")
	require.NoError(t, err)
	assert.Equal(t, ProviderAirtel, p)

	_, err = ParseProvider("vodafone")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestApplyStatus_PendingToPaid(t *testing.T) {
	tx := pendingTx()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	changed, err := tx.ApplyStatus(StatusPaid, nil, at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusPaid, tx.Status)
	require.NotNil(t, tx.PaidAt)
	assert.Equal(t, at, *tx.PaidAt)
	assert.Nil(t, tx.FailedAt)
}

func TestApplyStatus_SameTerminalIsNoop(t *testing.T) {
	tx := pendingTx()
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := tx.ApplyStatus(StatusPaid, nil, first)
	require.NoError(t, err)

	changed, err := tx.ApplyStatus(StatusPaid, nil, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, *tx.PaidAt, "paid_at is set once")
}

func TestApplyStatus_ConflictingTerminalRejected(t *testing.T) {
	tx := pendingTx()
	msg := "Insufficient funds"
	_, err := tx.ApplyStatus(StatusFailed, &msg, time.Now())
	require.NoError(t, err)

	changed, err := tx.ApplyStatus(StatusPaid, nil, time.Now())
	assert.False(t, changed)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusFailed, tx.Status)
	assert.Nil(t, tx.PaidAt)
	assert.Equal(t, "Insufficient funds", *tx.Message)
}

func TestApplyStatus_PendingIsNoop(t *testing.T) {
	tx := pendingTx()
	changed, err := tx.ApplyStatus(StatusPending, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAttachProviderReference_NeverReassigned(t *testing.T) {
	tx := pendingTx()
	assert.True(t, tx.AttachProviderReference("ref-1"))
	assert.False(t, tx.AttachProviderReference("ref-2"))
	assert.False(t, tx.AttachProviderReference(""))
	assert.Equal(t, "ref-1", *tx.ProviderTransactionID)
}

func TestClone_IsDeep(t *testing.T) {
	tx := pendingTx()
	tx.AttachProviderReference("ref-1")
	tx.RawRequest = []byte(`{"a":1}`)

	c := tx.Clone()
	*c.ProviderTransactionID = "changed"
	c.RawRequest[2] = 'b'

	assert.Equal(t, "ref-1", *tx.ProviderTransactionID)
	assert.JSONEq(t, `{"a":1}`, string(tx.RawRequest))
}

func TestMapStatus(t *testing.T) {
	paid := []string{"success", "successful", "completed"}
	failed := []string{"failed", "cancelled", "rejected"}

	assert.Equal(t, StatusPaid, MapStatus("SUCCESSFUL", paid, failed))
	assert.Equal(t, StatusPaid, MapStatus(" completed ", paid, failed))
	assert.Equal(t, StatusFailed, MapStatus("Rejected", paid, failed))
	assert.Equal(t, StatusPending, MapStatus("PENDING", paid, failed))
	assert.Equal(t, StatusPending, MapStatus("", paid, failed))
}

func TestTransactionFilter_Paging(t *testing.T) {
	assert.Equal(t, DefaultPerPage, TransactionFilter{}.Limit())
	assert.Equal(t, 0, TransactionFilter{Page: 1}.Offset())
	assert.Equal(t, 40, TransactionFilter{Page: 3, PerPage: 20}.Offset())
}
