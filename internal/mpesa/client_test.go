package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ngetich-86/autoseat-engine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.MpesaConfig{
		BaseURL:        server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		ResultMessages: config.DefaultResultMessages,
	})
}

func TestInitiateSTKPushReturnsCheckoutID(t *testing.T) {
	var got stkPushRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/stkpush", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":      "0",
			"CheckoutRequestID": "ws_CO_191220191020363925",
		})
	})

	checkoutID, err := client.InitiateSTKPush(context.Background(), "254712345678", 1500, 42)
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", checkoutID)
	assert.Equal(t, "254712345678", got.Phone)
	assert.Equal(t, int64(1500), got.Amount)
	assert.Equal(t, int64(42), got.BookingID)
	assert.Equal(t, "174379", got.ShortCode)
}

func TestInitiateSTKPushClassifiesKnownCodes(t *testing.T) {
	cases := []struct {
		name string
		body map[string]string
		code string
		want string
	}{
		{"error code field", map[string]string{"errorCode": "1", "errorMessage": "whatever"}, "1", "insufficient funds"},
		{"response code field", map[string]string{"ResponseCode": "1032"}, "1032", "cancelled by user"},
		{"wrong pin", map[string]string{"errorCode": "2001"}, "2001", "wrong PIN"},
		{"pin timeout", map[string]string{"errorCode": "1037"}, "1037", "PIN entry timed out"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(tc.body)
			})

			_, err := client.InitiateSTKPush(context.Background(), "254712345678", 100, 1)
			require.Error(t, err)

			var gwErr *GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tc.code, gwErr.Code)
			assert.Contains(t, gwErr.Message, tc.want)
		})
	}
}

func TestInitiateSTKPushFallsBackToGenericMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorCode": "9999"})
	})

	_, err := client.InitiateSTKPush(context.Background(), "254712345678", 100, 1)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "9999", gwErr.Code)
	assert.Equal(t, GenericFailureMessage, gwErr.Message)
}

func TestInitiateSTKPushRejectsEmptyBodyErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})

	_, err := client.InitiateSTKPush(context.Background(), "254712345678", 100, 1)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "http_500", gwErr.Code)
	assert.Equal(t, GenericFailureMessage, gwErr.Message)
}

func TestQueryStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"pending", StatusPending},
		{"processing", StatusPending}, // anything unknown counts as pending
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/stkpush/ws_CO_1/status", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": tc.raw})
		})

		status, err := client.QueryStatus(context.Background(), "ws_CO_1")
		require.NoError(t, err)
		assert.Equal(t, tc.want, status, "raw status %q", tc.raw)
	}
}

func TestQueryStatusNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.QueryStatus(context.Background(), "ws_CO_gone")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
}

func TestQueryStatusServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.QueryStatus(context.Background(), "ws_CO_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCheckoutNotFound)
}
