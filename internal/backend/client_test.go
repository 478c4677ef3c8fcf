package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVehicle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/vehicles/KDA%20123A", r.URL.EscapedPath())
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(models.Vehicle{
			Registration: "KDA 123A",
			Capacity:     14,
			Cost:         750,
			Departure:    "Nairobi",
			Destination:  "Eldoret",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	vehicle, err := client.GetVehicle(context.Background(), "KDA 123A")
	require.NoError(t, err)

	assert.Equal(t, "KDA 123A", vehicle.Registration)
	assert.Equal(t, 14, vehicle.Capacity)
	assert.Equal(t, int64(750), vehicle.Cost)
}

func TestGetVehicleNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	_, err := client.GetVehicle(context.Background(), "KXX 000X")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBookedSeatsUsesRedisCache(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string][]string{"booked_seats": {"S3", "S7"}})
	}))
	defer server.Close()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	client := NewClient(server.URL, "", 5*time.Second)
	client.UseRedisCache(redisClient, 30*time.Second)

	seats, err := client.GetBookedSeats(context.Background(), "KDA 123A")
	require.NoError(t, err)
	assert.Equal(t, []string{"S3", "S7"}, seats)

	seats, err = client.GetBookedSeats(context.Background(), "KDA 123A")
	require.NoError(t, err)
	assert.Equal(t, []string{"S3", "S7"}, seats)
	assert.Equal(t, int64(1), hits.Load(), "second read must come from cache")

	client.InvalidateSeats(context.Background(), "KDA 123A")

	_, err = client.GetBookedSeats(context.Background(), "KDA 123A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load(), "invalidation must force a refetch")
}

func TestCreateBooking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/bookings", r.URL.Path)

		var body createBookingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"S2", "S3"}, body.Seats)
		assert.Equal(t, int64(1500), body.TotalPrice)
		assert.Equal(t, "2026-09-01", body.DepartureDate)

		_ = json.NewEncoder(w).Encode(createBookingResponse{ID: 42, Status: models.StatusPending})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	b := &models.Booking{
		UserID:        5,
		Vehicle:       "KDA 123A",
		Seats:         []string{"S2", "S3"},
		BookingDate:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		DepartureDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		TotalPrice:    1500,
	}

	id, err := client.CreateBooking(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
}

func TestCreateBookingRejectsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	_, err := client.CreateBooking(context.Background(), &models.Booking{Vehicle: "KDA 123A"})
	assert.Error(t, err)
}

func TestUpdateBookingStatus(t *testing.T) {
	var gotPath string
	var gotStatus string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotStatus = body["status"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	require.NoError(t, client.UpdateBookingStatus(context.Background(), 42, models.StatusConfirmed))

	assert.Equal(t, "/api/v1/bookings/42/status", gotPath)
	assert.Equal(t, models.StatusConfirmed, gotStatus)
}

func TestBackendErrorsAreSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	err := client.UpdateBookingStatus(context.Background(), 42, models.StatusPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
}
