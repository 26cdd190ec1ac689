package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ReadinessFunc reports whether the application can serve requests.
type ReadinessFunc func() error

// DiagnosticsServer exposes health, readiness and metrics over HTTP.
type DiagnosticsServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewDiagnosticsServer builds the diagnostics mux. metrics may be nil.
func NewDiagnosticsServer(addr string, metrics http.Handler, ready ReadinessFunc, log zerolog.Logger) *DiagnosticsServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	return &DiagnosticsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "diagnostics").Logger(),
	}
}

func (s *DiagnosticsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves in the background.
func (s *DiagnosticsServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("diagnostics listening")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("diagnostics server failed")
		}
	}()
	return nil
}

func (s *DiagnosticsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
