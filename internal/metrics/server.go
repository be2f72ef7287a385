package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"firestige.xyz/pcapscan/internal/log"
)

// DefaultPath is the scrape path used when none is configured.
const DefaultPath = "/metrics"

// Server serves the default prometheus registry for the lifetime of one
// command. It is not restartable.
type Server struct {
	path string
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
	stop func() bool
}

// NewServer prepares a server on addr; path defaults to DefaultPath.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = DefaultPath
	}
	handler := promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	return &Server{
		path: path,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		done: make(chan struct{}),
	}
}

// Start listens and serves in the background. Cancelling ctx closes the
// server without waiting for in-flight scrapes.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.stop = context.AfterFunc(ctx, func() { s.srv.Close() })

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"addr": ln.Addr().String(),
		"path": s.path,
	})
	logger.Info("serving metrics")

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Addr is the bound address once started, which resolves port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down, waiting for the serve loop to return.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	if !s.stop() {
		// already closed by the start context
		<-s.done
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	<-s.done
	return nil
}
