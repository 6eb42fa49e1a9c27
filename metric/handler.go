package metric

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lorepanichi/pdh/errors"
)

// Server exposes the registry over HTTP while watch mode runs. Start binds
// the listener synchronously so address problems surface immediately, then
// serves in the background.
type Server struct {
	addr     string
	path     string
	server   *http.Server
	listener net.Listener
	registry *Registry
	mu       sync.Mutex // protects server and listener fields
}

// NewServer creates a metrics server for the given listen address.
func NewServer(addr string, registry *Registry) *Server {
	return &Server{
		addr:     addr,
		path:     "/metrics",
		registry: registry,
	}
}

// Start binds the address and begins serving metrics.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapConfig(
			fmt.Errorf("server already running"),
			"Server", "Start", "check running state")
	}
	if s.registry == nil {
		return errors.WrapConfig(
			fmt.Errorf("nil registry"),
			"Server", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapConfig(err, "Server", "Start",
			fmt.Sprintf("listen on %s", s.addr))
	}

	s.listener = listener
	s.server = &http.Server{Handler: mux}
	go func() {
		_ = s.server.Serve(listener)
	}()

	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		err := s.server.Close()
		s.server = nil // reset server field to allow restart
		s.listener = nil
		if err != nil {
			return errors.WrapTransient(err, "Server", "Stop",
				"close HTTP server")
		}
	}
	return nil
}
