package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	StepSelectingSeats  = "selecting_seats"
	StepBookingCreated  = "booking_created"
	StepPaymentPending  = "payment_pending"
	StepPaymentSettled  = "payment_settled"
	StepPaymentFailed   = "payment_failed"
	StepPaymentTimedOut = "payment_timed_out"
)

const (
	// DriverSeat is reserved and never selectable.
	DriverSeat = "S1"

	// PollIntervalSeconds пауза между опросами статуса платежа
	PollIntervalSeconds = 3

	// MaxPollCycles предел циклов опроса (~2 минуты при интервале 3с)
	MaxPollCycles = 40

	// MaxTransportRetries повторы одного опроса при сетевой ошибке
	MaxTransportRetries = 3

	// DefaultSessionTTL время жизни сессии в Redis (секунды)
	DefaultSessionTTL = 24 * 60 * 60

	// DefaultCacheTTL время жизни кэша ответов backend (секунды)
	DefaultCacheTTL = 30
)
