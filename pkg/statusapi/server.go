// Package statusapi exposes a Session over HTTP for a local UI.
//
// Routes:
//
//	GET  /health
//	GET  /v1/state                 current snapshot
//	GET  /v1/peers                 available hosts
//	POST /v1/host                  StartHosting
//	POST /v1/join                  StartJoining
//	POST /v1/peers/:id/connect     ConnectToPeer
//	POST /v1/disconnect            Disconnect
//	GET  /v1/events                WebSocket stream of snapshots
package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/backkem/peerlink/pkg/discovery"
	"github.com/backkem/peerlink/pkg/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8780"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Controller is the part of a Session the API drives. *session.Session
// implements it.
type Controller interface {
	StartHosting() error
	StartJoining() error
	ConnectToPeer(peerID string) error
	Disconnect() error
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address (default DefaultAddr).
	Addr string

	// Session is the controlled session. Required.
	Session Controller

	// PingInterval is the WebSocket keepalive period (default 30s).
	PingInterval time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Server serves the status API.
type Server struct {
	config   Config
	log      logging.LeveledLogger
	router   *gin.Engine
	upgrader websocket.Upgrader

	mu   sync.Mutex
	addr net.Addr
}

// ErrNoSession is returned by New without a session.
var ErrNoSession = errors.New("statusapi: no session")

// New creates a Server.
func New(config Config) (*Server, error) {
	if config.Session == nil {
		return nil, ErrNoSession
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	s := &Server{
		config: config,
		log:    config.LoggerFactory.NewLogger("statusapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API binds to a local address for an on-device UI.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/state", s.getState)
		v1.GET("/peers", s.getPeers)
		v1.POST("/host", s.action(s.config.Session.StartHosting))
		v1.POST("/join", s.action(s.config.Session.StartJoining))
		v1.POST("/peers/:id/connect", s.connect)
		v1.POST("/disconnect", s.action(s.config.Session.Disconnect))
		v1.GET("/events", s.events)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves on Config.Addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	s.addr = l.Addr()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	s.log.Infof("Status API on http://%s", l.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.config.Session.Snapshot())
}

func (s *Server) getPeers(c *gin.Context) {
	peers := s.config.Session.Snapshot().Peers
	if peers == nil {
		peers = []discovery.Peer{}
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

// action runs a session operation and answers with the resulting snapshot.
func (s *Server) action(op func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(); err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.config.Session.Snapshot())
	}
}

func (s *Server) connect(c *gin.Context) {
	if err := s.config.Session.ConnectToPeer(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.config.Session.Snapshot())
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if kind := session.KindOf(err); kind != 0 {
		body["kind"] = kind.String()
	}
	if status >= http.StatusInternalServerError {
		s.log.Warnf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrPeerNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotJoining):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrDisconnected):
		return http.StatusServiceUnavailable
	case session.KindOf(err) != 0:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
