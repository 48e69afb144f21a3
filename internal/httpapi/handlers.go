package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"selco.dev/staffauth/internal/auth"
	"selco.dev/staffauth/internal/obs"
)

const (
	serviceName = "staffauth"

	defaultRateBurst    = 10
	defaultRatePerSec   = 5.0
	defaultMaxBodyBytes = 1 << 20
)

// Service is the credential lifecycle the HTTP layer drives.
type Service interface {
	Register(ctx context.Context, reg auth.Registration) (string, error)
	Login(ctx context.Context, email, password string, caller auth.Caller) (auth.LoginResult, error)
	Logout(ctx context.Context, token string, caller auth.Caller) error
	Validate(ctx context.Context, token string, caller auth.Caller) (auth.ValidationResult, error)
}

var _ Service = (*auth.Service)(nil)

// Check is one named readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ReadyProbe reports ready only when every check passes.
type ReadyProbe struct {
	Checks  []Check
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	var errs []error
	for _, c := range rp.Checks {
		if c.Fn == nil {
			continue
		}
		if err := c.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        Service
	readyProbe ReadyProbe
	version    string
	logger     *zap.Logger

	rateBurst      int
	ratePerSec     float64
	maxBodyBytes   int64
	allowedOrigins []string
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-IP token bucket for the credential endpoints.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec = perSecond
			a.rateBurst = burst
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithAllowedOrigins lists CORS origins in addition to localhost.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = append([]string(nil), origins...) }
}

// WithLogger overrides the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func New(svc Service, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:          http.NewServeMux(),
		svc:          svc,
		readyProbe:   rp,
		version:      version,
		logger:       obs.Logger(),
		rateBurst:    defaultRateBurst,
		ratePerSec:   defaultRatePerSec,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("http")

	limited := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.rateBurst, a.ratePerSec)
	}

	// credential lifecycle
	a.mux.Handle("POST /auth/register", limited(a.handleRegister))
	a.mux.Handle("POST /auth/login", limited(a.handleLogin))
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /auth/validate", a.handleValidate)
	a.mux.Handle("GET /auth/me", a.withAuth(http.HandlerFunc(a.handleMe)))
	a.mux.HandleFunc("GET /auth/health", a.handleAuthHealth)

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h, a.allowedOrigins...)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
