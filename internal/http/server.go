package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"crowdfund/internal/cache"
	"crowdfund/internal/core"
	"crowdfund/internal/ledger"
	"crowdfund/internal/log"
	"crowdfund/internal/middleware/ratelimit"
	"crowdfund/internal/middleware/security"
	"crowdfund/internal/middleware/trace"
)

// Pinger reports whether a dependency is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DevAssets is the asset bank exposed for local use: it lets a
// client fund accounts and grant the ledger an allowance.
type DevAssets interface {
	Mint(ctx context.Context, owner core.Identity, asset core.AssetID, amount core.Amount) error
	Approve(ctx context.Context, owner, spender core.Identity, asset core.AssetID, amount core.Amount) error
	BalanceOf(ctx context.Context, owner core.Identity, asset core.AssetID) (core.Amount, error)
}

type Deps struct {
	Ledger  *ledger.Ledger
	Journal *ledger.Journal
	// Ready is checked by /readyz; nil means always ready.
	Ready Pinger
	// Assets mounts the /dev/assets endpoints when set.
	Assets DevAssets
	Logger *log.Logger

	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger  *ledger.Ledger
	journal *ledger.Journal
	ready   Pinger
	assets  DevAssets
	logger  *log.Logger

	limiter     *ratelimit.Limiter
	detector    *security.Detector
	idempotency *Idempotency
	caches      *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:      deps.Ledger,
		journal:     deps.Journal,
		ready:       deps.Ready,
		assets:      deps.Assets,
		logger:      logger,
		limiter:     ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:    security.NewDetector(),
		idempotency: NewIdempotency(1000, 24*time.Hour, logger),
		caches:      cache.NewManager(logger),
	}
	s.caches.Register(s.idempotency.Cache())
	s.caches.StartCleanup(10 * time.Minute)

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	tracing := trace.NewMiddleware(s.detector.ExtractClientIP, s.logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.logger, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded").Write(w)
	})

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(headers.Middleware)
	r.Use(s.detector.Middleware(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, KindBadRequest, "no such route").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, KindBadRequest, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/events", s.handleListEvents)

	writes := r.With(limited, s.idempotency.Middleware)

	r.Get("/projects", s.handleListProjects)
	writes.Post("/projects", s.handleCreateProject)
	r.Route("/projects/{id}", func(r chi.Router) {
		writes := r.With(limited, s.idempotency.Middleware)

		r.Get("/", s.handleGetProject)
		r.Get("/events", s.handleProjectEvents)
		r.Get("/donations", s.handleListDonations)
		r.Get("/donations/{donor}", s.handleGetDonation)
		writes.Post("/donations", s.handleDonate)
		writes.Post("/withdrawals/owner", s.handleWithdrawOwner)
		writes.Post("/withdrawals/donor", s.handleWithdrawDonor)
	})

	if s.assets != nil {
		r.Route("/dev/assets", func(r chi.Router) {
			r.Use(limited)
			r.Post("/mint", s.handleMint)
			r.Post("/approve", s.handleApprove)
			r.Get("/{asset}/balances/{owner}", s.handleBalance)
		})
	}

	return r
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
