package domain

import (
	"context"

	"github.com/Ngetich-86/autoseat-engine/internal/models"
)

// SessionRepository persists workflow session snapshots.
type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context, id string) error
}

// EventPublisher emits domain events to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AttemptLog records payment attempts and their terminal outcomes.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	ResolveAttempt(ctx context.Context, checkoutID string, outcome string, pollCount int) error
}
