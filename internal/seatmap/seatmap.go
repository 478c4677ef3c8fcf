package seatmap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/rs/zerolog"
)

// SeatMap partitions a vehicle's seat labels into three disjoint sets:
// booked (authoritative from the backend), selected (this session's tentative
// picks) and confirmed (this session's paid seats). S1 is the driver seat and
// never enters any set.
type SeatMap struct {
	mu        sync.Mutex
	capacity  int
	booked    map[string]struct{}
	selected  map[string]struct{}
	confirmed map[string]struct{}
	logger    *zerolog.Logger
}

func New(capacity int, logger *zerolog.Logger) *SeatMap {
	return &SeatMap{
		capacity:  capacity,
		booked:    make(map[string]struct{}),
		selected:  make(map[string]struct{}),
		confirmed: make(map[string]struct{}),
		logger:    logger,
	}
}

// SetBooked replaces the booked set from a backend refresh. Any local
// selection that collided with a fresh booking is dropped, keeping
// selected ∩ booked empty.
func (m *SeatMap) SetBooked(labels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.booked = make(map[string]struct{}, len(labels))
	for _, label := range labels {
		m.booked[label] = struct{}{}
		if _, ok := m.selected[label]; ok {
			delete(m.selected, label)
			m.logger.Warn().Str("seat", label).Msg("selected seat was booked elsewhere, dropping selection")
		}
	}
}

// SetConfirmed seeds the confirmed set from a persisted snapshot. Confirmed
// seats are this session's own paid seats, which the backend also reports as
// booked, so they bypass the booked check entirely.
func (m *SeatMap) SetConfirmed(labels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmed = make(map[string]struct{}, len(labels))
	for _, label := range labels {
		m.confirmed[label] = struct{}{}
		delete(m.selected, label)
	}
}

// Toggle flips a seat's membership in the selected set. Booked, confirmed,
// driver and out-of-range seats are left untouched; the return value reports
// whether the selection changed.
func (m *SeatMap) Toggle(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.valid(label) || label == models.DriverSeat {
		return false
	}
	if _, ok := m.booked[label]; ok {
		return false
	}
	if _, ok := m.confirmed[label]; ok {
		return false
	}

	if _, ok := m.selected[label]; ok {
		delete(m.selected, label)
	} else {
		m.selected[label] = struct{}{}
	}
	return true
}

// RemainingCapacity reports how many seats are still takeable, permanently
// excluding the driver seat. A negative intermediate value indicates
// inconsistent backend data: it is clamped to 0 and logged.
func (m *SeatMap) RemainingCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.capacity - len(m.booked) - len(m.selected) - 1
	if remaining < 0 {
		m.logger.Error().
			Int("capacity", m.capacity).
			Int("booked", len(m.booked)).
			Int("selected", len(m.selected)).
			Msg("remaining capacity went negative, clamping to 0")
		return 0
	}
	return remaining
}

// ConfirmSelected moves the whole selection into the confirmed set after a
// successful payment.
func (m *SeatMap) ConfirmSelected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for label := range m.selected {
		m.confirmed[label] = struct{}{}
	}
	m.selected = make(map[string]struct{})
}

// ReleaseSelected clears the selection after a failed or timed-out payment.
// Release is client-local; the backend frees seats when the booking reverts.
func (m *SeatMap) ReleaseSelected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = make(map[string]struct{})
}

// Selected returns the selection in seat order.
func (m *SeatMap) Selected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedLabels(m.selected)
}

// Confirmed returns this session's paid seats in seat order.
func (m *SeatMap) Confirmed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedLabels(m.confirmed)
}

// IsBooked reports whether a seat is held by another user.
func (m *SeatMap) IsBooked(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.booked[label]
	return ok
}

// Labels returns every seat label for the vehicle, S1 first.
func (m *SeatMap) Labels() []string {
	labels := make([]string, 0, m.capacity)
	for i := 1; i <= m.capacity; i++ {
		labels = append(labels, fmt.Sprintf("S%d", i))
	}
	return labels
}

func (m *SeatMap) valid(label string) bool {
	if !strings.HasPrefix(label, "S") {
		return false
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil {
		return false
	}
	return n >= 1 && n <= m.capacity
}

func sortedLabels(set map[string]struct{}) []string {
	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(labels[i], "S"))
		nj, _ := strconv.Atoi(strings.TrimPrefix(labels[j], "S"))
		return ni < nj
	})
	return labels
}
