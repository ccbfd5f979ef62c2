package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"yogastudio/internal/adapters/http/middleware"
	"yogastudio/internal/adapters/http/perf"
	"yogastudio/internal/adapters/interceptor"
)

// ControlPrefix is where the harness's own endpoints live. It must not
// overlap the mocked API prefix.
const ControlPrefix = "/__harness"

// DefaultAPIPrefix is mounted when Deps.APIPrefix is empty.
const DefaultAPIPrefix = "/api"

// Deps holds the control server's dependencies.
type Deps struct {
	Engine    *interceptor.Engine
	APIPrefix string
	// Collector is optional; without it /perf answers 404.
	Collector *perf.Collector
	// AllowedOrigins restricts CORS; empty reflects any origin.
	AllowedOrigins []string
}

type server struct {
	engine    *interceptor.Engine
	collector *perf.Collector
	started   time.Time
}

// NewMux wires the mocked API and the control endpoints.
// PRE: d.Engine is non-nil
// POST: Calls under the API prefix are answered by the engine; calls under
// ControlPrefix drive it
func NewMux(d Deps) http.Handler {
	prefix := strings.TrimRight(d.APIPrefix, "/")
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	s := &server{engine: d.Engine, collector: d.Collector, started: time.Now()}

	r := chi.NewRouter()
	// Timing -> Recoverer -> CORS -> SecurityHeaders -> routes
	r.Use(
		middleware.Timing(d.Collector, ControlPrefix),
		chimw.Recoverer,
		middleware.CORS(d.AllowedOrigins),
		middleware.SecurityHeaders,
	)

	r.Route(ControlPrefix, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleRegisterRules)
		r.Delete("/rules", s.handleReset)
		r.Put("/scenario", s.handleScenario)
		r.Get("/await/{alias}", s.handleAwait)
		r.Get("/hits/{alias}", s.handleHits)
		r.Get("/unmatched", s.handleUnmatched)
		r.Get("/perf", s.handlePerf)
		r.Get("/events", s.handleEvents)
	})

	r.Handle(prefix, d.Engine)
	r.Handle(prefix+"/*", d.Engine)
	return r
}
