package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/backend"
	"github.com/Ngetich-86/autoseat-engine/internal/booking"
	"github.com/Ngetich-86/autoseat-engine/internal/domain"
	"github.com/Ngetich-86/autoseat-engine/internal/events"
	"github.com/Ngetich-86/autoseat-engine/internal/metrics"
	"github.com/Ngetich-86/autoseat-engine/internal/models"
	"github.com/Ngetich-86/autoseat-engine/internal/payment"
	"github.com/Ngetich-86/autoseat-engine/internal/seatmap"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound = errors.New("service: session not found")
	ErrVehicleNotFound = errors.New("service: vehicle not found")
	ErrNoBooking       = errors.New("service: session has no booking to pay for")
	ErrPaymentInFlight = errors.New("service: a payment is already in flight for this session")
)

// Backend is the slice of the remote booking backend the workflow needs.
type Backend interface {
	GetVehicle(ctx context.Context, registration string) (*models.Vehicle, error)
	GetBookedSeats(ctx context.Context, registration string) ([]string, error)
	InvalidateSeats(ctx context.Context, registration string)
	CreateBooking(ctx context.Context, b *models.Booking) (int64, error)
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

// WorkflowService owns booking sessions end to end: seat selection, booking
// submission and payment orchestration. Snapshots go through the session
// repository after every mutation so read-side queries survive a restart.
type WorkflowService struct {
	backend    Backend
	gateway    payment.Gateway
	sessions   domain.SessionRepository
	attempts   domain.AttemptLog
	eventBus   domain.EventPublisher
	scheduler  payment.Scheduler
	paymentCfg payment.Config
	logger     *zerolog.Logger

	mu     sync.Mutex
	active map[string]*activeSession
}

// activeSession is the live, in-memory side of a session: the seat map and
// the handles that must not be rebuilt mid-flight.
type activeSession struct {
	session   *models.Session
	vehicle   *models.Vehicle
	seats     *seatmap.SeatMap
	submitter *booking.Submitter
	cancel    context.CancelFunc
	running   bool
}

func NewWorkflowService(
	b Backend,
	gateway payment.Gateway,
	sessions domain.SessionRepository,
	attempts domain.AttemptLog,
	eventBus domain.EventPublisher,
	scheduler payment.Scheduler,
	paymentCfg payment.Config,
	logger *zerolog.Logger,
) *WorkflowService {
	return &WorkflowService{
		backend:    b,
		gateway:    gateway,
		sessions:   sessions,
		attempts:   attempts,
		eventBus:   eventBus,
		scheduler:  scheduler,
		paymentCfg: paymentCfg,
		logger:     logger,
		active:     make(map[string]*activeSession),
	}
}

// StartSession opens a booking session for one user on one vehicle, pulling
// the current booked-seat set from the backend.
func (s *WorkflowService) StartSession(ctx context.Context, userID int64, registration string) (*models.Session, error) {
	vehicle, err := s.backend.GetVehicle(ctx, registration)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("fetch vehicle: %w", err)
	}

	booked, err := s.backend.GetBookedSeats(ctx, registration)
	if err != nil {
		return nil, fmt.Errorf("fetch booked seats: %w", err)
	}

	seats := seatmap.New(vehicle.Capacity, s.logger)
	seats.SetBooked(booked)

	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Vehicle:   registration,
		Step:      models.StepSelectingSeats,
		CreatedAt: now,
		UpdatedAt: now,
	}

	act := &activeSession{
		session:   session,
		vehicle:   vehicle,
		seats:     seats,
		submitter: booking.NewSubmitter(s.backend, s.logger),
	}

	s.mu.Lock()
	s.active[session.ID] = act
	s.mu.Unlock()

	s.persist(ctx, act)
	s.logger.Info().Str("session_id", session.ID).Int64("user_id", userID).Str("vehicle", registration).Msg("session started")
	return s.snapshot(act), nil
}

// BookedSeats returns the backend's current booked-seat set for a vehicle,
// independent of any session.
func (s *WorkflowService) BookedSeats(ctx context.Context, registration string) ([]string, error) {
	seats, err := s.backend.GetBookedSeats(ctx, registration)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("fetch booked seats: %w", err)
	}
	return seats, nil
}

// GetSession returns the current snapshot of a session, falling back to the
// repository for sessions this process no longer holds live.
func (s *WorkflowService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if act := s.lookup(id); act != nil {
		return s.snapshot(act), nil
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ToggleSeat flips a seat in the session's selection. Booked, confirmed and
// driver seats are untouched; the returned snapshot reflects the result
// either way.
func (s *WorkflowService) ToggleSeat(ctx context.Context, id, label string) (*models.Session, error) {
	act, err := s.live(ctx, id)
	if err != nil {
		return nil, err
	}

	act.seats.Toggle(label)
	s.persist(ctx, act)
	return s.snapshot(act), nil
}

// RemainingCapacity reports the free-seat count for a session's vehicle.
func (s *WorkflowService) RemainingCapacity(ctx context.Context, id string) (int, error) {
	act, err := s.live(ctx, id)
	if err != nil {
		return 0, err
	}
	return act.seats.RemainingCapacity(), nil
}

// SubmitBooking validates the session's selection and creates a pending
// booking on the backend. The selection survives a failed submission.
func (s *WorkflowService) SubmitBooking(ctx context.Context, id string, departureDate time.Time) (*models.Booking, error) {
	act, err := s.live(ctx, id)
	if err != nil {
		return nil, err
	}

	b, err := act.submitter.Submit(ctx, booking.Request{
		UserID:        act.session.UserID,
		Vehicle:       act.vehicle,
		Seats:         act.seats.Selected(),
		DepartureDate: departureDate,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	act.session.BookingID = b.ID
	act.session.Amount = b.TotalPrice
	act.session.Step = models.StepBookingCreated
	s.mu.Unlock()

	metrics.IncBookingCreated()
	s.persist(ctx, act)
	_ = s.eventBus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{
		SessionID:  act.session.ID,
		BookingID:  b.ID,
		UserID:     b.UserID,
		Vehicle:    b.Vehicle,
		Seats:      b.Seats,
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		Date:       b.DepartureDate,
	})
	return b, nil
}

// InitiatePayment validates the phone number and starts the payment
// orchestrator in the background. Progress is observed via GetSession; a
// running payment is cancelled with CancelPayment.
func (s *WorkflowService) InitiatePayment(ctx context.Context, id, phone string) error {
	act, err := s.live(ctx, id)
	if err != nil {
		return err
	}

	if !payment.ValidPhone(phone) {
		return payment.ErrInvalidPhone
	}

	s.mu.Lock()
	if act.session.BookingID == 0 {
		s.mu.Unlock()
		return ErrNoBooking
	}
	if act.running {
		s.mu.Unlock()
		return ErrPaymentInFlight
	}

	// The run is detached from the request context: dismissing the caller's
	// request must not cancel a payment the user already authorised.
	runCtx, cancel := context.WithCancel(context.Background())
	act.running = true
	act.cancel = cancel
	act.session.Step = models.StepPaymentPending
	act.session.PaymentState = string(payment.StateInitiating)
	req := payment.ChargeRequest{Phone: phone, Amount: act.session.Amount, BookingID: act.session.BookingID}
	s.mu.Unlock()

	s.persist(ctx, act)

	orch := payment.NewOrchestrator(s.gateway, s.backend, s.scheduler, s.paymentCfg, s.logger)
	go s.runPayment(runCtx, act, orch, req)
	return nil
}

func (s *WorkflowService) runPayment(ctx context.Context, act *activeSession, orch *payment.Orchestrator, req payment.ChargeRequest) {
	outcome, err := orch.Run(ctx, req)

	s.mu.Lock()
	act.running = false
	act.cancel = nil
	s.mu.Unlock()

	if err != nil {
		// Cancelled mid-run: no terminal state was reached and no booking
		// mutation happened; the session stays where it was.
		s.logger.Info().Err(err).Str("session_id", act.session.ID).Msg("payment run stopped")
		return
	}

	s.settlePayment(context.Background(), act, req, outcome)
}

// settlePayment applies the terminal outcome to the seat map and the session,
// records the attempt, and publishes exactly one notification event.
func (s *WorkflowService) settlePayment(ctx context.Context, act *activeSession, req payment.ChargeRequest, outcome *payment.Outcome) {
	if outcome.CheckoutID != "" {
		attempt := &models.PaymentAttempt{
			CheckoutID: outcome.CheckoutID,
			BookingID:  req.BookingID,
			Phone:      req.Phone,
			Amount:     req.Amount,
		}
		if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
			s.logger.Error().Err(err).Str("checkout_id", outcome.CheckoutID).Msg("failed to record payment attempt")
		} else if err := s.attempts.ResolveAttempt(ctx, outcome.CheckoutID, string(outcome.State), outcome.PollCycles); err != nil {
			s.logger.Error().Err(err).Str("checkout_id", outcome.CheckoutID).Msg("failed to resolve payment attempt")
		}
	}

	eventType := events.EventPaymentFailed
	s.mu.Lock()
	act.session.PaymentState = string(outcome.State)
	act.session.CheckoutID = outcome.CheckoutID
	switch outcome.State {
	case payment.StateSucceeded:
		act.seats.ConfirmSelected()
		act.session.Step = models.StepPaymentSettled
		act.session.FailureReason = ""
		eventType = events.EventPaymentSucceeded
	case payment.StateTimedOut:
		act.seats.ReleaseSelected()
		act.session.Step = models.StepPaymentTimedOut
		act.session.FailureReason = outcome.Message
		eventType = events.EventPaymentTimedOut
	default:
		act.seats.ReleaseSelected()
		act.session.Step = models.StepPaymentFailed
		act.session.FailureReason = outcome.Message
	}
	s.mu.Unlock()

	// Whatever the outcome, the cached booked-seat set is stale now.
	s.backend.InvalidateSeats(ctx, act.session.Vehicle)
	if booked, err := s.backend.GetBookedSeats(ctx, act.session.Vehicle); err == nil {
		act.seats.SetBooked(booked)
	} else {
		s.logger.Warn().Err(err).Str("vehicle", act.session.Vehicle).Msg("failed to refresh booked seats after payment")
	}

	s.persist(ctx, act)
	_ = s.eventBus.PublishJSON(eventType, events.PaymentEventPayload{
		SessionID:  act.session.ID,
		BookingID:  req.BookingID,
		CheckoutID: outcome.CheckoutID,
		Amount:     req.Amount,
		PollCount:  outcome.PollCycles,
		Message:    outcome.Message,
	})

	// non-success reverts the booking to pending; emit the lifecycle event
	if outcome.State != payment.StateSucceeded {
		_ = s.eventBus.PublishJSON(events.EventBookingReverted, events.BookingEventPayload{
			SessionID: act.session.ID,
			BookingID: req.BookingID,
			UserID:    act.session.UserID,
			Vehicle:   act.session.Vehicle,
			Status:    models.StatusPending,
		})
	}
}

// CancelPayment stops a running poll loop, the equivalent of dismissing the
// payment dialog. No-op when nothing is running.
func (s *WorkflowService) CancelPayment(ctx context.Context, id string) error {
	act, err := s.live(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel := act.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// CloseSession cancels any running payment and drops the session.
func (s *WorkflowService) CloseSession(ctx context.Context, id string) error {
	if err := s.CancelPayment(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()

	return s.sessions.ClearSession(ctx, id)
}

func (s *WorkflowService) lookup(id string) *activeSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

// live returns the in-memory side of a session, rebuilding it from the
// repository snapshot when another replica (or a restart) created it.
func (s *WorkflowService) live(ctx context.Context, id string) (*activeSession, error) {
	if act := s.lookup(id); act != nil {
		return act, nil
	}

	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	vehicle, err := s.backend.GetVehicle(ctx, session.Vehicle)
	if err != nil {
		return nil, fmt.Errorf("rebuild session %s: %w", id, err)
	}
	booked, err := s.backend.GetBookedSeats(ctx, session.Vehicle)
	if err != nil {
		return nil, fmt.Errorf("rebuild session %s: %w", id, err)
	}

	seats := seatmap.New(vehicle.Capacity, s.logger)
	seats.SetBooked(booked)
	// Confirmed seats are seeded directly: the backend reports paid seats as
	// booked, which would make Toggle skip them.
	seats.SetConfirmed(session.Confirmed)
	for _, label := range session.Selected {
		seats.Toggle(label)
	}

	act := &activeSession{
		session:   session,
		vehicle:   vehicle,
		seats:     seats,
		submitter: booking.NewSubmitter(s.backend, s.logger),
	}

	s.mu.Lock()
	s.active[id] = act
	s.mu.Unlock()
	return act, nil
}

// snapshot copies the live state into the session record.
func (s *WorkflowService) snapshot(act *activeSession) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *act.session
	copied.Selected = act.seats.Selected()
	copied.Confirmed = act.seats.Confirmed()
	copied.UpdatedAt = time.Now()
	return &copied
}

func (s *WorkflowService) persist(ctx context.Context, act *activeSession) {
	session := s.snapshot(act)
	if err := s.sessions.SetSession(ctx, session); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("failed to persist session")
	}
}
