package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"syncpad/internal/pkg/engine"
	"syncpad/internal/pkg/metrics"
	"syncpad/internal/pkg/registry"
	"syncpad/internal/pkg/session"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

const shutdownTimeout = 5 * time.Second

// Server accepts websocket connections and runs one session handler per
// connection against the shared engine and registry.
type Server struct {
	addr     string
	engine   *engine.Engine
	registry *registry.Registry
	upgrader websocket.Upgrader

	sessions sync.WaitGroup
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithListenAddr sets the address the server listens on.
func WithListenAddr(addr string) Cfg {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithEngine sets the synchronization engine.
func WithEngine(eng *engine.Engine) Cfg {
	return func(s *Server) error {
		s.engine = eng
		return nil
	}
}

// WithRegistry sets the client registry.
func WithRegistry(reg *registry.Registry) Cfg {
	return func(s *Server) error {
		s.registry = reg
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	server := &Server{}
	for _, cfg := range cfgs {
		if err := cfg(server); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	if server.addr == "" || server.engine == nil || server.registry == nil {
		return nil, errors.New("listen address, engine and registry are required")
	}
	return server, nil
}

// Run serves until the context is cancelled, then shuts down and waits
// for the active sessions to finish their cleanup.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, w, req)
			logger.WithFields(logrus.Fields{
				"method":   req.Method,
				"url":      req.URL.String(),
				"status":   m.Code,
				"duration": m.Duration,
			}).Debug("handled request")
		})
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.handleWS(ctx, w, req)
	})
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.Handler())

	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: r,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown failed")
		}
	}()

	logger.WithField("addr", s.addr).Info("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen and serve failed")
	}
	// Shutdown does not cover hijacked websocket connections; each
	// session sees the cancelled context, closes its connection and runs
	// its cleanup before Run returns.
	s.sessions.Wait()
	return nil
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, req *http.Request) {
	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	metrics.ConnectionsTotal.Inc()
	metrics.ActiveConnections.Inc()
	s.sessions.Add(1)
	defer func() {
		metrics.ActiveConnections.Dec()
		s.sessions.Done()
	}()

	handler, err := session.NewHandler(
		session.WithConn(session.NewWSConn(ws)),
		session.WithEngine(s.engine),
		session.WithRegistry(s.registry),
	)
	if err != nil {
		logger.WithError(err).Error("create session handler failed")
		_ = ws.Close()
		return
	}
	if err := handler.Run(ctx); err != nil {
		logger.WithError(err).Warn("session ended with error")
	}
}
