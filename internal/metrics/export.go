package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends every registered metric to a Prometheus pushgateway.
// A batch run is usually gone before a scrape would reach it.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Server exposes /metrics while a run is in progress.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics listener on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background. Errors other than a clean shutdown are sent on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
