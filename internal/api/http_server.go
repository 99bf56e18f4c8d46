package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/domain"
	"hotelbook/internal/metrics"
	"hotelbook/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// BookingCreator places holds. The API passes creates through the retrying
// wrapper, so this is narrower than domain.BookingService.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.BookingHold, error)
}

type Exporter interface {
	Write(ctx context.Context, w io.Writer, stay models.DateRange, actor models.Actor) error
}

// HealthCheck is one readiness check, such as a database or redis ping.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func runChecks(ctx context.Context, checks []HealthCheck) error {
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// Services are the operations exposed over HTTP.
type Services struct {
	Bookings     domain.BookingService
	Creator      BookingCreator
	Payments     domain.PaymentService
	Availability domain.AvailabilityService
	Exporter     Exporter
	Checks       []HealthCheck
}

// HTTPServer serves the booking API, the payment webhook, health probes and
// prometheus metrics.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	tokens   *TokenAuth
	keys     *APIKeyAuth
	limiter  *rateLimiter
	validate *validator.Validate
	log      zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if svc.Creator == nil {
		svc.Creator = svc.Bookings
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	s := &HTTPServer{
		cfg:      *cfg,
		svc:      svc,
		tokens:   NewTokenAuth(cfg.JWT),
		keys:     NewAPIKeyAuth(cfg.Auth),
		limiter:  newRateLimiter(cfg.RateLimit),
		validate: validator.New(),
		log:      log,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}

	s.handle(router, http.MethodPost, "/api/v1/bookings", s.withUser(s.createBooking))
	s.handle(router, http.MethodGet, "/api/v1/bookings", s.withUser(s.listBookings))
	s.handle(router, http.MethodGet, "/api/v1/bookings/:id", s.withUser(s.getBooking))
	s.handle(router, http.MethodPost, "/api/v1/bookings/:id/cancel", s.withUser(s.cancelBooking))
	s.handle(router, http.MethodPost, "/api/v1/bookings/:id/payments", s.withUser(s.createPayment))
	s.handle(router, http.MethodGet, "/api/v1/rooms/availability", s.withUser(s.availability))
	s.handle(router, http.MethodGet, "/api/v1/admin/bookings/export", s.withUser(s.exportBookings))
	s.handle(router, http.MethodPost, "/webhook/payment/:id/confirm", s.withAPIKey(permWebhookPayment, s.confirmPayment))

	router.GET("/healthz", s.healthz)
	router.GET("/readyz", s.readyz)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return s.loggingMiddleware(s.rateLimitMiddleware(router))
}

// handle registers h and counts requests under the route pattern.
func (s *HTTPServer) handle(router *httprouter.Router, method, path string, h httprouter.Handle) {
	endpoint := method + " " + path
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.IncHTTP(endpoint)
		h(w, r, ps)
	})
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

type userHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, p *Principal)

func (s *HTTPServer) withUser(h userHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		principal, err := s.tokens.Authenticate(r)
		if err != nil {
			s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("token rejected")
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r, ps, principal)
	}
}

func (s *HTTPServer) withAPIKey(permission string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if s.cfg.Auth.Enabled {
			client, err := s.keys.Authenticate(r, permission)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				s.log.Warn().Err(err).Str("client", client.Name).Str("path", r.URL.Path).Msg("api key rejected")
				writeMessage(w, statusCode, err.Error())
				return
			}
		}
		h(w, r, ps)
	}
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(s.clientKey(r)) {
			writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets configured machine clients by key and everyone else by
// remote host. Unknown or forged api keys fall into the host bucket.
func (s *HTTPServer) clientKey(r *http.Request) string {
	if client, ok := s.keys.identify(r); ok {
		return "key:" + client.Key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.log.Info().
			Str("request_id", requestID).
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

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// writeError maps a service error onto its status and public reason.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := domain.HTTPStatus(err)
	if statusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, statusCode, errorResponse{Error: domain.PublicMessage(err), Kind: string(domain.Kind(err))})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
