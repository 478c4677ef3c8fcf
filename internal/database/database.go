package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// ErrAttemptNotFound is returned when resolving a checkout id that was never recorded.
var ErrAttemptNotFound = errors.New("database: payment attempt not found")

// DB is the local audit store. It keeps an append-only record of payment
// attempts and their terminal outcomes for reconciliation against the gateway;
// the remote backend stays the system of record for bookings.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_attempts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            checkout_request_id TEXT UNIQUE NOT NULL,
            booking_id INTEGER NOT NULL,
            phone TEXT NOT NULL,
            amount INTEGER NOT NULL,
            outcome TEXT NOT NULL DEFAULT 'pending',
            poll_count INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            resolved_at TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_booking ON payment_attempts(booking_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// RecordAttempt appends a new attempt row. The phone number is masked before
// it is stored.
func (d *DB) RecordAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO payment_attempts (checkout_request_id, booking_id, phone, amount, outcome, created_at)
         VALUES (?, ?, ?, ?, 'pending', ?)`,
		attempt.CheckoutID, attempt.BookingID, MaskPhone(attempt.Phone), attempt.Amount, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record payment attempt: %w", err)
	}
	return nil
}

// ResolveAttempt stores the terminal outcome and poll count for an attempt.
func (d *DB) ResolveAttempt(ctx context.Context, checkoutID string, outcome string, pollCount int) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE payment_attempts SET outcome = ?, poll_count = ?, resolved_at = ?
         WHERE checkout_request_id = ?`,
		outcome, pollCount, time.Now(), checkoutID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve payment attempt: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// GetAttemptsByBooking returns every recorded attempt for a booking, newest first.
func (d *DB) GetAttemptsByBooking(ctx context.Context, bookingID int64) ([]*models.PaymentAttempt, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT checkout_request_id, booking_id, phone, amount, outcome, poll_count, created_at, COALESCE(resolved_at, created_at)
         FROM payment_attempts WHERE booking_id = ? ORDER BY created_at DESC`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.PaymentAttempt
	for rows.Next() {
		var a models.PaymentAttempt
		if err := rows.Scan(&a.CheckoutID, &a.BookingID, &a.Phone, &a.Amount, &a.Outcome, &a.PollCount, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// MaskPhone hides the middle digits of an MSISDN: 254712345678 → 2547XXXXX678.
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return phone
	}
	return phone[:4] + strings.Repeat("X", len(phone)-7) + phone[len(phone)-3:]
}

func (d *DB) Close() error {
	return d.db.Close()
}
