package payment

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/metrics"
	"github.com/Ngetich-86/autoseat-engine/internal/models"
	"github.com/Ngetich-86/autoseat-engine/internal/mpesa"

	"github.com/rs/zerolog"
)

// State names one step of the payment lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StatePolling    State = "polling"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// ErrInvalidPhone is returned before any network call when the payer number
// is not a 12-digit 254-prefixed MSISDN.
var ErrInvalidPhone = errors.New("payment: phone must be 12 digits starting with 254")

var phonePattern = regexp.MustCompile(`^254[0-9]{9}$`)

// ValidPhone reports whether the number can receive an STK push.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

const (
	succeededMessage = "Payment received. Your seats are confirmed."
	failedMessage    = "Payment failed."
	timedOutMessage  = "Payment not confirmed yet. Check your payment app to complete it."
	transportMessage = "Could not reach the payment service. Please try again."
)

// Gateway is the STK-push surface the orchestrator drives.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount int64, bookingID int64) (string, error)
	QueryStatus(ctx context.Context, checkoutID string) (mpesa.Status, error)
}

// BookingUpdater applies the single terminal booking mutation.
type BookingUpdater interface {
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

// ChargeRequest is the input for one payment run.
type ChargeRequest struct {
	Phone     string
	Amount    int64
	BookingID int64
}

// Outcome is the terminal result of a run. Exactly one Outcome is produced
// per run unless the context is cancelled first.
type Outcome struct {
	State      State
	Message    string
	CheckoutID string
	PollCycles int
	Cause      error
}

// Config bounds the poll loop. Timeout is attempt-counted, never wall-clock:
// MaxPollCycles × PollInterval defines the budget.
type Config struct {
	PollInterval        time.Duration
	MaxPollCycles       int
	MaxTransportRetries int
	Retry               RetryPolicy
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = models.PollIntervalSeconds * time.Second
	}
	if c.MaxPollCycles <= 0 {
		c.MaxPollCycles = models.MaxPollCycles
	}
	if c.MaxTransportRetries <= 0 {
		c.MaxTransportRetries = models.MaxTransportRetries
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = RetryPolicy{
			MaxRetries:    c.MaxTransportRetries,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2,
		}
	}
}

// Orchestrator runs one STK-push charge to a terminal state:
//
//	Idle → Initiating → Polling → {Succeeded | Failed | TimedOut}
//
// Polls are strictly sequential and the loop owns at most one pending sleep.
// On Succeeded the booking is confirmed; on Failed or TimedOut it reverts to
// pending, both via exactly one update call. A cancelled context stops the
// run immediately with no further transitions, network calls or mutations.
type Orchestrator struct {
	gateway   Gateway
	bookings  BookingUpdater
	scheduler Scheduler
	cfg       Config
	logger    *zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewOrchestrator(gateway Gateway, bookings BookingUpdater, scheduler Scheduler, cfg Config, logger *zerolog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Orchestrator{
		gateway:   gateway,
		bookings:  bookings,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.mu.Unlock()

	o.logger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("payment state transition")
}

// Run drives a charge to its terminal state. The returned Outcome is the
// single notification for the run; a nil Outcome with a non-nil error means
// the run was cancelled (or rejected before any network call) and no booking
// mutation happened.
func (o *Orchestrator) Run(ctx context.Context, req ChargeRequest) (*Outcome, error) {
	if !ValidPhone(req.Phone) {
		return nil, ErrInvalidPhone
	}

	o.setState(StateInitiating)

	checkoutID, err := o.gateway.InitiateSTKPush(ctx, req.Phone, req.Amount, req.BookingID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var gwErr *mpesa.GatewayError
		message := transportMessage
		if errors.As(err, &gwErr) {
			message = gwErr.Message
		}
		return o.finish(ctx, req, &Outcome{State: StateFailed, Message: message, Cause: err})
	}

	metrics.IncPaymentInitiated()
	o.logger.Info().
		Int64("booking_id", req.BookingID).
		Int64("amount", req.Amount).
		Str("checkout_id", checkoutID).
		Msg("stk push accepted, polling for status")

	o.setState(StatePolling)

	for cycle := 1; cycle <= o.cfg.MaxPollCycles; cycle++ {
		if err := o.scheduler.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return nil, err
		}

		status, err := o.pollOnce(ctx, checkoutID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			message := transportMessage
			if errors.Is(err, mpesa.ErrCheckoutNotFound) {
				message = failedMessage
			}
			return o.finish(ctx, req, &Outcome{
				State: StateFailed, Message: message, CheckoutID: checkoutID, PollCycles: cycle, Cause: err,
			})
		}

		metrics.IncPollCycle()

		switch status {
		case mpesa.StatusCompleted:
			return o.finish(ctx, req, &Outcome{
				State: StateSucceeded, Message: succeededMessage, CheckoutID: checkoutID, PollCycles: cycle,
			})
		case mpesa.StatusFailed:
			return o.finish(ctx, req, &Outcome{
				State: StateFailed, Message: failedMessage, CheckoutID: checkoutID, PollCycles: cycle,
			})
		}
		// still pending, next cycle
	}

	return o.finish(ctx, req, &Outcome{
		State: StateTimedOut, Message: timedOutMessage, CheckoutID: checkoutID, PollCycles: o.cfg.MaxPollCycles,
	})
}

// pollOnce queries the checkout status, retrying transport errors up to
// MaxTransportRetries times after the initial attempt. Not-found is terminal
// immediately: the push was most likely cancelled before the gateway
// registered it.
func (o *Orchestrator) pollOnce(ctx context.Context, checkoutID string) (mpesa.Status, error) {
	var lastErr error
	attempts := o.cfg.MaxTransportRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := o.gateway.QueryStatus(ctx, checkoutID)
		if err == nil {
			return status, nil
		}
		if errors.Is(err, mpesa.ErrCheckoutNotFound) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		lastErr = err
		o.logger.Warn().Err(err).Int("attempt", attempt).Str("checkout_id", checkoutID).Msg("status poll failed")

		if attempt < attempts {
			if err := o.scheduler.Sleep(ctx, o.cfg.Retry.NextDelay(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

// finish applies the terminal transition and the single booking mutation.
func (o *Orchestrator) finish(ctx context.Context, req ChargeRequest, outcome *Outcome) (*Outcome, error) {
	o.setState(outcome.State)
	metrics.IncPaymentOutcome(string(outcome.State))

	bookingStatus := models.StatusPending
	if outcome.State == StateSucceeded {
		bookingStatus = models.StatusConfirmed
	}

	if err := o.bookings.UpdateBookingStatus(ctx, req.BookingID, bookingStatus); err != nil {
		// The outcome stands; the backend mutation is reported but not retried.
		o.logger.Error().Err(err).
			Int64("booking_id", req.BookingID).
			Str("status", bookingStatus).
			Msg("failed to update booking after payment outcome")
	}

	event := o.logger.Info()
	if outcome.State != StateSucceeded {
		event = o.logger.Warn()
	}
	event.
		Int64("booking_id", req.BookingID).
		Str("state", string(outcome.State)).
		Int("poll_cycles", outcome.PollCycles).
		Msg("payment finished")

	return outcome, nil
}
