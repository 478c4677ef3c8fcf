package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the backend reports an unknown vehicle or booking.
var ErrNotFound = errors.New("backend: not found")

// Client is a JSON HTTP client for the remote seat-booking backend. It owns
// vehicles and bookings; the engine only reads vehicles and creates or
// re-statuses bookings through it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL, API key and request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetVehicle fetches a vehicle record by registration number.
func (c *Client) GetVehicle(ctx context.Context, registration string) (*models.Vehicle, error) {
	endpoint := fmt.Sprintf("%s/api/v1/vehicles/%s", c.baseURL, url.PathEscape(registration))
	cacheKey := fmt.Sprintf("vehicle:%s", registration)
	var vehicle models.Vehicle

	if c.readCache(ctx, cacheKey, &vehicle) {
		return &vehicle, nil
	}

	if err := c.doGet(ctx, endpoint, &vehicle); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, vehicle)
	return &vehicle, nil
}

// GetBookedSeats returns the current set of occupied seat labels for a vehicle.
func (c *Client) GetBookedSeats(ctx context.Context, registration string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/vehicles/%s/seats", c.baseURL, url.PathEscape(registration))
	cacheKey := fmt.Sprintf("booked_seats:%s", registration)
	var wrap struct {
		Seats []string `json:"booked_seats"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Seats, nil
	}

	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Seats, nil
}

// InvalidateSeats drops the cached booked-seat set for a vehicle. Called after
// every payment outcome so the next read reflects the backend.
func (c *Client) InvalidateSeats(ctx context.Context, registration string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, fmt.Sprintf("booked_seats:%s", registration)).Err()
}

type createBookingRequest struct {
	UserID        int64    `json:"user_id"`
	Vehicle       string   `json:"vehicle_registration"`
	Seats         []string `json:"seats"`
	BookingDate   string   `json:"booking_date"`
	DepartureDate string   `json:"departure_date"`
	TotalPrice    int64    `json:"total_price"`
}

type createBookingResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// CreateBooking submits a booking payload; the backend answers with the new
// booking id and its status (always pending on creation).
func (c *Client) CreateBooking(ctx context.Context, booking *models.Booking) (int64, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bookings", c.baseURL)
	body := createBookingRequest{
		UserID:        booking.UserID,
		Vehicle:       booking.Vehicle,
		Seats:         booking.Seats,
		BookingDate:   booking.BookingDate.Format("2006-01-02"),
		DepartureDate: booking.DepartureDate.Format("2006-01-02"),
		TotalPrice:    booking.TotalPrice,
	}

	var resp createBookingResponse
	if err := c.doPost(ctx, endpoint, body, &resp); err != nil {
		return 0, err
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("backend returned no booking id")
	}
	booking.ID = resp.ID
	booking.Status = resp.Status
	return resp.ID, nil
}

// UpdateBookingStatus re-statuses an existing booking (confirm after payment
// success, revert to pending after failure).
func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	endpoint := fmt.Sprintf("%s/api/v1/bookings/%d/status", c.baseURL, bookingID)
	body := map[string]string{"status": status}
	return c.doPost(ctx, endpoint, body, nil)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
