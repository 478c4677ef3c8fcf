package models

import "time"

type Booking struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Vehicle       string    `json:"vehicle_registration"`
	Seats         []string  `json:"seats"`
	BookingDate   time.Time `json:"booking_date"`
	DepartureDate time.Time `json:"departure_date"`
	TotalPrice    int64     `json:"total_price"`
	Status        string    `json:"status"` // pending, confirmed, completed
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PaymentAttempt is the engine's view of one STK-push charge. The gateway
// owns it; the engine only observes status by polling the checkout id.
type PaymentAttempt struct {
	CheckoutID string    `json:"checkout_request_id"`
	BookingID  int64     `json:"booking_id"`
	Phone      string    `json:"phone"`
	Amount     int64     `json:"amount"`
	Status     string    `json:"status"` // pending, completed, failed
	PollCount  int       `json:"poll_count"`
	Outcome    string    `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}
