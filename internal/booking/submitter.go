package booking

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrNoSeatsSelected = errors.New("booking: seats must not be empty")
	ErrDepartureDate   = errors.New("booking: departure_date must be on or after booking_date")
	ErrSubmitInFlight  = errors.New("booking: a submission is already in flight")
)

// Creator is the backend call that persists a booking and issues its id.
type Creator interface {
	CreateBooking(ctx context.Context, booking *models.Booking) (int64, error)
}

// Submitter validates a booking request and submits it once. The booking date
// is always taken from the clock, never from the caller, and the total price
// is always recomputed from the vehicle cost.
type Submitter struct {
	creator    Creator
	logger     *zerolog.Logger
	now        func() time.Time
	submitting atomic.Bool
}

func NewSubmitter(creator Creator, logger *zerolog.Logger) *Submitter {
	return &Submitter{
		creator: creator,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Submitter) WithNow(now func() time.Time) *Submitter {
	s.now = now
	return s
}

// Request carries caller input for one submission. Price and booking date are
// deliberately absent: both are computed here.
type Request struct {
	UserID        int64
	Vehicle       *models.Vehicle
	Seats         []string
	DepartureDate time.Time
}

// Submit validates and creates a pending booking. Only one submission may be
// in flight per Submitter; overlapping calls fail with ErrSubmitInFlight. On
// backend failure no booking exists and the caller's selection is untouched;
// no retry is attempted.
func (s *Submitter) Submit(ctx context.Context, req Request) (*models.Booking, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}
	defer s.submitting.Store(false)

	if len(req.Seats) == 0 {
		return nil, ErrNoSeatsSelected
	}

	bookingDate := truncateToDay(s.now())
	if truncateToDay(req.DepartureDate).Before(bookingDate) {
		return nil, ErrDepartureDate
	}

	b := &models.Booking{
		UserID:        req.UserID,
		Vehicle:       req.Vehicle.Registration,
		Seats:         append([]string(nil), req.Seats...),
		BookingDate:   bookingDate,
		DepartureDate: truncateToDay(req.DepartureDate),
		TotalPrice:    int64(len(req.Seats)) * req.Vehicle.Cost,
		Status:        models.StatusPending,
	}

	id, err := s.creator.CreateBooking(ctx, b)
	if err != nil {
		s.logger.Error().Err(err).
			Str("vehicle", req.Vehicle.Registration).
			Int("seats", len(req.Seats)).
			Msg("booking submission failed")
		return nil, err
	}

	b.ID = id
	s.logger.Info().
		Int64("booking_id", id).
		Str("vehicle", b.Vehicle).
		Strs("seats", b.Seats).
		Int64("total_price", b.TotalPrice).
		Msg("booking created")
	return b, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
