package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Ngetich-86/autoseat-engine/internal/booking"
	"github.com/Ngetich-86/autoseat-engine/internal/config"
	"github.com/Ngetich-86/autoseat-engine/internal/metrics"
	"github.com/Ngetich-86/autoseat-engine/internal/payment"
	"github.com/Ngetich-86/autoseat-engine/internal/service"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer exposes the booking workflow over a small JSON API: start a
// session, toggle seats, submit the booking, fire the payment, observe.
type HTTPServer struct {
	cfg      config.APIConfig
	workflow *service.WorkflowService
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, workflow *service.WorkflowService, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, workflow: workflow, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/sessions", srv.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", srv.handleSession)
	mux.HandleFunc("/api/v1/vehicles/", srv.handleVehicle)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sessions")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		UserID       int64  `json:"user_id"`
		Registration string `json:"vehicle_registration"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(body.Registration) == "" {
		writeError(w, http.StatusBadRequest, "vehicle_registration is required")
		return
	}

	session, err := s.workflow.StartSession(r.Context(), body.UserID, strings.TrimSpace(body.Registration))
	if err != nil {
		if errors.Is(err, service.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// handleSession routes /api/v1/sessions/{id}[/seats/toggle|/booking|/payment|/payment/cancel].
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/sessions/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.getSession(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.closeSession(w, r, id)
	case len(parts) == 3 && parts[1] == "seats" && parts[2] == "toggle" && r.Method == http.MethodPost:
		s.toggleSeat(w, r, id)
	case len(parts) == 2 && parts[1] == "booking" && r.Method == http.MethodPost:
		s.submitBooking(w, r, id)
	case len(parts) == 2 && parts[1] == "payment" && r.Method == http.MethodPost:
		s.initiatePayment(w, r, id)
	case len(parts) == 3 && parts[1] == "payment" && parts[2] == "cancel" && r.Method == http.MethodPost:
		s.cancelPayment(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleVehicle serves GET /api/v1/vehicles/{reg}/seats.
func (s *HTTPServer) handleVehicle(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/vehicles/"
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "seats" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	metrics.IncHTTP("vehicle_seats")
	seats, err := s.workflow.BookedSeats(r.Context(), parts[0])
	if err != nil {
		if errors.Is(err, service.ErrVehicleNotFound) {
			writeError(w, http.StatusNotFound, "vehicle not found")
			return
		}
		writeError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	if seats == nil {
		seats = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle_registration": parts[0],
		"booked_seats":         seats,
	})
}

func (s *HTTPServer) getSession(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("session_get")
	session, err := s.workflow.GetSession(r.Context(), id)
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) closeSession(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("session_close")
	if err := s.workflow.CloseSession(r.Context(), id); err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *HTTPServer) toggleSeat(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("seat_toggle")

	var body struct {
		Seat string `json:"seat"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Seat) == "" {
		writeError(w, http.StatusBadRequest, "seat is required")
		return
	}

	session, err := s.workflow.ToggleSeat(r.Context(), id, strings.TrimSpace(body.Seat))
	if err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) submitBooking(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("booking_submit")

	var body struct {
		DepartureDate string `json:"departure_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	departure, err := time.Parse("2006-01-02", strings.TrimSpace(body.DepartureDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid departure_date; expected YYYY-MM-DD")
		return
	}

	b, err := s.workflow.SubmitBooking(r.Context(), id, departure)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrNoSeatsSelected),
			errors.Is(err, booking.ErrDepartureDate):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, booking.ErrSubmitInFlight):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeWorkflowError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) initiatePayment(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("payment_initiate")

	var body struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.workflow.InitiatePayment(r.Context(), id, strings.TrimSpace(body.Phone))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidPhone):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrNoBooking):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrPaymentInFlight):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeWorkflowError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "initiated"})
}

func (s *HTTPServer) cancelPayment(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("payment_cancel")
	if err := s.workflow.CancelPayment(r.Context(), id); err != nil {
		s.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *HTTPServer) writeWorkflowError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Error().Err(err).Msg("workflow request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderAPIKey))
	extra := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderExtra))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}
	return nil
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.cfg.Auth.HeaderAPIKey)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
