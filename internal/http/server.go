package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/ports"
	"spendwise/internal/services"
)

// Services are the use cases the handlers call.
type Services struct {
	Auth      *services.AuthService
	Ledger    *services.LedgerService
	Recurring *services.RecurringService
	Processor *services.RecurringProcessor
	Analytics *services.AnalyticsService
	Budgets   *services.BudgetService
}

// Options configure the server around its services.
type Options struct {
	Issuer             *auth.Issuer
	Logger             *log.Logger
	Clock              core.Clock
	CORSAllowedOrigins []string
	// AuthRequestsPerMinute throttles the register and login routes per client.
	AuthRequestsPerMinute int
	// Ping checks the store for the readiness probe; nil skips the check.
	Ping func(ctx context.Context) error
}

type Server struct {
	http.Server
	svc      Services
	logger   *log.Logger
	clock    core.Clock
	ping     func(ctx context.Context) error
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	detector := security.NewDetector(logger)
	s := &Server{
		svc:      svc,
		logger:   logger.WithComponent(log.ComponentHTTP),
		clock:    clock,
		ping:     opts.Ping,
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Requests: opts.AuthRequestsPerMinute,
			Period:   time.Minute,
		}, logger),
		started: clock.Now(),
	}

	mux := http.NewServeMux()
	protect := auth.Middleware(opts.Issuer, svc.Auth, logger)
	throttle := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "Too many requests, please try again later").Write(w)
	})

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)

	mux.Handle("POST /api/auth/register", throttle(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /api/auth/login", throttle(http.HandlerFunc(s.handleLogin)))
	handle("GET /api/auth/me", s.handleMe)
	handle("PUT /api/auth/me", s.handleUpdateProfile)
	handle("PUT /api/auth/change-password", s.handleChangePassword)

	handle("POST /api/transactions", s.handleCreateTransaction)
	handle("GET /api/transactions", s.handleListTransactions)
	handle("GET /api/transactions/export", s.handleExportTransactions)
	handle("GET /api/transactions/{id}", s.handleGetTransaction)
	handle("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	handle("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	handle("GET /api/analytics/summary", s.handleSummary)
	handle("GET /api/analytics/by-category", s.handleByCategory)
	handle("GET /api/analytics/trend", s.handleTrend)
	handle("GET /api/analytics/month-compare", s.handleMonthCompare)

	handle("POST /api/budgets", s.handleCreateBudget)
	handle("GET /api/budgets", s.handleListBudgets)
	handle("PUT /api/budgets/{id}", s.handleUpdateBudget)
	handle("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	handle("POST /api/recurring", s.handleCreateRule)
	handle("GET /api/recurring", s.handleListRules)
	handle("POST /api/recurring/run", s.handleRunRecurring)
	handle("GET /api/recurring/{id}", s.handleGetRule)
	handle("PUT /api/recurring/{id}", s.handleUpdateRule)
	handle("PATCH /api/recurring/{id}/status", s.handleSetRuleStatus)
	handle("DELETE /api/recurring/{id}", s.handleDeleteRule)
	handle("GET /api/recurring/{id}/next", s.handlePreviewRule)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Route not found").Write(w)
	})

	var h http.Handler = mux
	h = security.NewCORS(opts.CORSAllowedOrigins).Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = detector.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// resource names the entity a handler works on, for error messages.
type resource string

const (
	resUser        resource = "User"
	resTransaction resource = "Transaction"
	resBudget      resource = "Budget"
	resRule        resource = "Recurring rule"
)

var conflictMessages = map[resource]string{
	resUser:   "User with this email already exists",
	resBudget: "A budget for this category and month already exists",
}

// fail maps err onto a status code and writes the error envelope. Unknown
// errors are logged and reported as "Server error while <action>".
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, res resource, action string) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		BadRequestError(ve.Error()).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials):
		UnauthorizedError("Invalid email or password").Write(w)
	case errors.Is(err, services.ErrWrongPassword):
		UnauthorizedError("Current password is incorrect").Write(w)
	case errors.Is(err, ports.ErrNotFound):
		NotFoundError(string(res) + " not found").Write(w)
	case errors.Is(err, ports.ErrConflict):
		msg, ok := conflictMessages[res]
		if !ok {
			msg = string(res) + " already exists"
		}
		ConflictError(msg).Write(w)
	default:
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"))
		if id := userID(r); id != "" {
			fields = fields.WithUser(id)
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, action, fields)
		InternalServerError("Server error while " + action).Write(w)
	}
}

// userID returns the caller set by the auth middleware.
func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
