package models

import "time"

// Session is a persisted snapshot of one booking workflow: which vehicle the
// user is booking, which seats they hold, and how far the payment got. It is
// the unit stored in the session repository.
type Session struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	Vehicle       string    `json:"vehicle_registration"`
	Step          string    `json:"step"`
	Selected      []string  `json:"selected_seats"`
	Confirmed     []string  `json:"confirmed_seats"`
	BookingID     int64     `json:"booking_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	CheckoutID    string    `json:"checkout_request_id,omitempty"`
	PaymentState  string    `json:"payment_state,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
