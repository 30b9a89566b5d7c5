package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"llamad/internal/supervisor"
	"llamad/pkg/types"
)

// Resolver is the alias lookup surface the gateway needs.
type Resolver interface {
	Resolve(name string) (types.Alias, error)
	List() []types.Alias
	UpdatedAt(name string) time.Time
	Len() int
}

// Lease grants access to one ready engine until released.
type Lease interface {
	BaseURL() string
	Release()
}

// Pool hands out engine leases and answers status queries.
type Pool interface {
	Acquire(ctx context.Context, a types.Alias) (Lease, error)
	Handles() []types.HandleStatus
	MaxReady() int
	Uptime() time.Duration
	StopAlias(ctx context.Context, alias string) error
	Reset(alias string) error
}

// SupervisorPool adapts *supervisor.Supervisor to the Pool interface.
type SupervisorPool struct {
	S *supervisor.Supervisor
}

func (p SupervisorPool) Acquire(ctx context.Context, a types.Alias) (Lease, error) {
	l, err := p.S.Acquire(ctx, a)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (p SupervisorPool) Handles() []types.HandleStatus { return p.S.Handles() }
func (p SupervisorPool) MaxReady() int                 { return p.S.MaxReady() }
func (p SupervisorPool) Uptime() time.Duration         { return p.S.Uptime() }
func (p SupervisorPool) StopAlias(ctx context.Context, alias string) error {
	return p.S.StopAlias(ctx, alias)
}
func (p SupervisorPool) Reset(alias string) error { return p.S.Reset(alias) }

// CORSConfig enables opt-in CORS handling. Disabled means no CORS middleware.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Config carries the gateway tunables wired from the daemon config.
type Config struct {
	// Model used when a request omits the "model" field. Empty means the
	// field is required.
	DefaultModel string
	// Upper bound for one proxied request, queue wait included.
	RequestTimeout time.Duration
	// Maximum accepted JSON body size in bytes.
	MaxBodyBytes int64
	// Engine build variant, reported in /status.
	Variant string
	CORS    CORSConfig
}

const defaultMaxBodyBytes = 10 << 20

// Server routes OpenAI-style requests to supervised engines.
type Server struct {
	registry Resolver
	pool     Pool
	cfg      Config
	log      zerolog.Logger
	client   *http.Client
	events   *supervisor.MemoryPublisher
	ready    atomic.Bool
}

// New constructs the gateway. events may be nil; the event feed then serves
// an empty list.
func New(registry Resolver, pool Pool, cfg Config, events *supervisor.MemoryPublisher, log zerolog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		registry: registry,
		pool:     pool,
		cfg:      cfg,
		log:      log,
		// Per-request contexts carry the deadlines; streaming responses must
		// not be cut by a client-level timeout.
		client: &http.Client{Timeout: 0},
		events: events,
	}
}

// MarkReady flips /readyz to 200. Called by main once startup completed.
func (s *Server) MarkReady() { s.ready.Store(true) }

// Router assembles the chi mux with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(requestIDMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, req)
		})
	})
	if s.cfg.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
			AllowedMethods: s.cfg.CORS.AllowedMethods,
			AllowedHeaders: s.cfg.CORS.AllowedHeaders,
		}))
	}
	r.Use(metricsMiddleware)
	r.Use(s.logMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", s.handleInference("/v1/chat/completions"))
		r.Post("/completions", s.handleInference("/v1/completions"))
		r.Post("/embeddings", s.handleInference("/v1/embeddings"))
		// llama-server serves tokenize endpoints without the /v1 prefix.
		r.Post("/tokenize", s.handleInference("/tokenize"))
		r.Post("/detokenize", s.handleInference("/detokenize"))
		r.Get("/models", s.handleListModels)
		r.Get("/models/{id}", s.handleGetModel)
	})

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/aliases/{alias}/reset", s.handleResetAlias)
		r.Post("/aliases/{alias}/stop", s.handleStopAlias)
		r.Get("/events", s.handleEvents)
	})

	r.Get("/swagger/*", httpSwagger.Handler())
	return r
}
