package database

import (
	"context"
	"testing"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordAndResolveAttempt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	attempt := &models.PaymentAttempt{
		CheckoutID: "ws_CO_1",
		BookingID:  42,
		Phone:      "254712345678",
		Amount:     1500,
	}
	require.NoError(t, db.RecordAttempt(ctx, attempt))
	require.NoError(t, db.ResolveAttempt(ctx, "ws_CO_1", "succeeded", 2))

	attempts, err := db.GetAttemptsByBooking(ctx, 42)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	got := attempts[0]
	assert.Equal(t, "ws_CO_1", got.CheckoutID)
	assert.Equal(t, "succeeded", got.Outcome)
	assert.Equal(t, 2, got.PollCount)
	assert.Equal(t, int64(1500), got.Amount)
}

func TestRecordAttemptMasksPhone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordAttempt(ctx, &models.PaymentAttempt{
		CheckoutID: "ws_CO_1",
		BookingID:  7,
		Phone:      "254712345678",
		Amount:     500,
	}))

	attempts, err := db.GetAttemptsByBooking(ctx, 7)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	assert.Equal(t, "2547XXXXX678", attempts[0].Phone)
	assert.NotContains(t, attempts[0].Phone, "12345")
}

func TestResolveUnknownAttempt(t *testing.T) {
	db := newTestDB(t)

	err := db.ResolveAttempt(context.Background(), "ws_CO_missing", "failed", 1)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestDuplicateCheckoutIDRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	attempt := &models.PaymentAttempt{CheckoutID: "ws_CO_1", BookingID: 1, Phone: "254712345678", Amount: 100}
	require.NoError(t, db.RecordAttempt(ctx, attempt))
	assert.Error(t, db.RecordAttempt(ctx, attempt))
}

func TestGetAttemptsByBookingEmpty(t *testing.T) {
	db := newTestDB(t)

	attempts, err := db.GetAttemptsByBooking(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "2547XXXXX678", MaskPhone("254712345678"))
	assert.Equal(t, "123456", MaskPhone("123456")) // too short to mask
}
