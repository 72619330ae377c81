// Package control serves the HTTP control surface of a running pipeline:
// status, pause/resume, a websocket progress stream and Prometheus metrics.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-state-lab/internal/logging"
	"market-state-lab/internal/task"
)

// Config configures a Server. Control and Progress are required.
type Config struct {
	Addr     string
	Control  *task.Control
	Progress *Broadcaster
	Metrics  http.Handler       // optional, served on /metrics
	Status   func() string      // optional, reports the pipeline state
	Logger   *zap.SugaredLogger // optional
}

// Server exposes the control endpoints with gin.
type Server struct {
	addr     string
	control  *task.Control
	progress *Broadcaster
	status   func() string
	logger   *zap.SugaredLogger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Control == nil || cfg.Progress == nil {
		return nil, errors.New("control server needs a control and a progress broadcaster")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9780"
	}
	if cfg.Status == nil {
		cfg.Status = func() string { return "" }
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		control:  cfg.Control,
		progress: cfg.Progress,
		status:   cfg.Status,
		logger:   logging.OrNop(cfg.Logger).With("component", "control"),
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.registerRoutes(cfg.Metrics)
	return s, nil
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.router.GET("/status", s.handleStatus)
	s.router.POST("/pause", s.handlePause)
	s.router.POST("/resume", s.handleResume)
	s.router.GET("/progress", s.handleProgress)
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}
}

// Handler returns the router for embedding and tests.
func (s *Server) Handler() http.Handler { return s.router }

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State  string          `json:"state,omitempty"`
	Paused bool            `json:"paused"`
	Stages []task.Snapshot `json:"stages"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		State:  s.status(),
		Paused: s.control.Paused(),
		Stages: s.progress.Snapshots(),
	})
}

func (s *Server) handlePause(c *gin.Context) {
	s.control.Pause()
	s.logger.Infow("paused")
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.control.Resume()
	s.logger.Infow("resumed")
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

const writeTimeout = 5 * time.Second

// handleProgress upgrades to a websocket, sends a snapshot of every stage and
// then streams events until the client goes away.
func (s *Server) handleProgress(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.progress.Subscribe()
	defer unsubscribe()

	// Drain client frames so close messages are seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(ev) == nil
	}
	if !send(Event{Type: EventSnapshot, Step: -1, Snapshots: s.progress.Snapshots()}) {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case ev := <-events:
			if !send(ev) {
				return
			}
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Infow("listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
