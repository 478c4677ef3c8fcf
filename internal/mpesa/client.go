package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/config"
)

// Status is the gateway-reported state of one checkout request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrCheckoutNotFound means the gateway no longer knows the checkout request,
// which in practice means the push was cancelled before it registered.
var ErrCheckoutNotFound = errors.New("mpesa: checkout request not found")

// GatewayError is an explicit rejection from the gateway, carrying the raw
// result code and the user-facing message mapped from the configured table.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("mpesa: gateway error %s: %s", e.Code, e.Message)
}

// GenericFailureMessage is used when the gateway rejects a charge with a code
// outside the configured table.
const GenericFailureMessage = "Payment failed. Please try again."

// Client talks to the STK-push gateway: one call to fire the PIN prompt at
// the payer's phone, then status queries keyed by the checkout-request id.
type Client struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	httpClient     *http.Client
	messages       map[string]string
}

func NewClient(cfg config.MpesaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	messages := cfg.ResultMessages
	if messages == nil {
		messages = config.DefaultResultMessages
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		httpClient:     &http.Client{Timeout: timeout},
		messages:       messages,
	}
}

type stkPushRequest struct {
	Phone     string `json:"phone"`
	Amount    int64  `json:"amount"`
	BookingID int64  `json:"booking_id"`
	ShortCode string `json:"short_code,omitempty"`
}

// stkPushResponse carries every error-shaped field the gateway is known to
// use, so classification happens in exactly one place.
type stkPushResponse struct {
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// InitiateSTKPush requests a charge for the booking. On acceptance it returns
// the checkout-request id used for later status queries; on rejection it
// returns a *GatewayError; transport failures come back unwrapped.
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amount int64, bookingID int64) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/stkpush", c.baseURL)
	body := stkPushRequest{Phone: phone, Amount: amount, BookingID: bookingID, ShortCode: c.shortCode}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("mpesa: decode response: %w", err)
	}

	if gwErr := c.classify(resp.StatusCode, parsed); gwErr != nil {
		return "", gwErr
	}
	if parsed.CheckoutRequestID == "" {
		return "", fmt.Errorf("mpesa: response carried no CheckoutRequestID")
	}
	return parsed.CheckoutRequestID, nil
}

// classify maps a raw gateway response to the closed GatewayError taxonomy.
// It is the only place error-shaped fields are inspected.
func (c *Client) classify(statusCode int, resp stkPushResponse) *GatewayError {
	code := resp.ErrorCode
	if code == "" && resp.ResponseCode != "" && resp.ResponseCode != "0" {
		code = resp.ResponseCode
	}
	if code == "" && statusCode < 300 {
		return nil
	}
	if code == "" {
		code = fmt.Sprintf("http_%d", statusCode)
	}

	if msg, ok := c.messages[code]; ok {
		return &GatewayError{Code: code, Message: msg}
	}
	return &GatewayError{Code: code, Message: GenericFailureMessage}
}

type statusResponse struct {
	Status string `json:"status"`
}

// QueryStatus returns the current state of a checkout request. A 404 comes
// back as ErrCheckoutNotFound; callers treat it as terminal, not retryable.
func (c *Client) QueryStatus(ctx context.Context, checkoutID string) (Status, error) {
	endpoint := fmt.Sprintf("%s/api/v1/stkpush/%s/status", c.baseURL, url.PathEscape(checkoutID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	c.addAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrCheckoutNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("mpesa: http %d", resp.StatusCode)
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("mpesa: decode status: %w", err)
	}

	switch Status(parsed.Status) {
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

func (c *Client) addAuth(req *http.Request) {
	if c.consumerKey != "" {
		req.SetBasicAuth(c.consumerKey, c.consumerSecret)
	}
}
