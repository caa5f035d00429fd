// Package server exposes the state of a running scan over HTTP and streams
// its events to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roman-kulish/rtlsdr-scanner/internal/scan"
	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

const (
	DefaultListen = ":8080"

	shutdownTimeout = 5 * time.Second
)

// Config holds the HTTP server settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func (c *Config) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.New("server.Config: listen address is required")
	}
	return nil
}

// Source is the scan the server reports on.
type Source interface {
	Status() scan.Status
	History() []spectrum.Spectrum
	Session() scan.SessionConfig
}

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

type Server struct {
	config   Config
	source   Source
	engine   *gin.Engine
	hub      *hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func New(config Config, source Source, options ...func(s *Server)) *Server {
	s := Server{
		config: config,
		source: source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	for _, option := range options {
		option(&s)
	}

	s.logger = s.logger.With(slog.String("component", "http"))
	s.hub = newHub(s.logger)

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.logRequests)

	api := s.engine.Group("/api/v1")
	api.GET("/status", s.handleStatus)
	api.GET("/spectrum", s.handleSpectrum)
	api.GET("/measure", s.handleMeasure)
	api.GET("/events", s.handleEvents)

	return &s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := http.Server{
		Addr:    s.config.Listen,
		Handler: s.engine,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("address", s.config.Listen))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Broadcast forwards a scan event to every websocket client.
func (s *Server) Broadcast(e scan.Event) {
	if s.hub.count() == 0 {
		return
	}

	msg, err := json.Marshal(e)
	if err != nil {
		s.logger.Error(fmt.Sprintf("error marshaling event: %s", err.Error()))
		return
	}
	s.hub.broadcast(msg)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	s.logger.Debug("request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  s.source.Status(),
		"session": s.source.Session(),
	})
}

// handleSpectrum returns the latest spectrum, or the whole history with
// ?all=true.
func (s *Server) handleSpectrum(c *gin.Context) {
	history := s.source.History()

	if all, _ := strconv.ParseBool(c.Query("all")); all {
		c.JSON(http.StatusOK, history)
		return
	}

	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no spectrum available yet"})
		return
	}
	c.JSON(http.StatusOK, history[len(history)-1])
}

// handleMeasure summarises the latest spectrum between ?start= and ?stop=,
// both in MHz and defaulting to the whole spectrum.
func (s *Server) handleMeasure(c *gin.Context) {
	history := s.source.History()
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no spectrum available yet"})
		return
	}
	latest := history[len(history)-1]

	lo, hi, _ := spectrum.Extent(latest.Bins)

	var err error
	if v := c.Query("start"); v != "" {
		if lo, err = strconv.ParseFloat(v, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid start: %s", v)})
			return
		}
	}
	if v := c.Query("stop"); v != "" {
		if hi, err = strconv.ParseFloat(v, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid stop: %s", v)})
			return
		}
	}

	m, ok := spectrum.Measure(latest.Bins, lo, hi)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bins in range"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":   latest.Timestamp,
		"start":       lo,
		"stop":        hi,
		"measurement": m,
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("websocket upgrade failed: %s", err.Error()))
		return
	}

	client := s.hub.register(conn)
	s.logger.Info("websocket client connected", slog.String("remote", conn.RemoteAddr().String()))

	go client.writeLoop()
	client.readLoop()

	s.hub.unregister(client)
	s.logger.Info("websocket client disconnected", slog.String("remote", conn.RemoteAddr().String()))
}
