package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingReverted  = "booking_reverted"
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventPaymentTimedOut  = "payment_timed_out"
)

// PaymentEventPayload describes the payment snapshot event consumers receive.
type PaymentEventPayload struct {
	SessionID  string `json:"session_id"`
	BookingID  int64  `json:"booking_id"`
	CheckoutID string `json:"checkout_request_id,omitempty"`
	Amount     int64  `json:"amount"`
	PollCount  int    `json:"poll_count,omitempty"`
	Message    string `json:"message,omitempty"`
}

// BookingEventPayload describes the booking snapshot event consumers receive.
type BookingEventPayload struct {
	SessionID  string    `json:"session_id"`
	BookingID  int64     `json:"booking_id"`
	UserID     int64     `json:"user_id"`
	Vehicle    string    `json:"vehicle_registration"`
	Seats      []string  `json:"seats"`
	TotalPrice int64     `json:"total_price"`
	Status     string    `json:"status"`
	Date       time.Time `json:"date"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
