package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ServerOptions configures the operations endpoint.
type ServerOptions struct {
	Addr string
	// Ready reports readiness; nil means always ready.
	Ready func() bool
	// Sessions reports the number of live assistant sessions; optional.
	Sessions func() int
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server serves /metrics, /healthz and /readyz on a port separate from the API.
type Server struct {
	server *http.Server
	opts   ServerOptions
}

type readiness struct {
	Ready    bool `json:"ready"`
	Sessions *int `json:"sessions,omitempty"`
}

func NewServer(opts ServerOptions) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", s.readyz)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	body := readiness{Ready: s.opts.Ready == nil || s.opts.Ready()}
	if s.opts.Sessions != nil {
		n := s.opts.Sessions()
		body.Sessions = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if !body.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in a goroutine; listen errors are logged, not returned.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("Operations endpoint listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Operations endpoint failed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
