package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

const (
	DefaultGPSDAddress = "localhost:2947"

	gpsdRetryDelay = 5 * time.Second
	gpsdMode2D     = 2
)

var gpsdWatch = []byte("?WATCH={\"enable\":true,\"json\":true};\n")

// GPSDConfig selects a gpsd daemon to take fixes from.
type GPSDConfig struct {
	Address string `yaml:"address"`
}

func (c *GPSDConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("telemetry.GPSDConfig: invalid address '%s': %w", c.Address, err)
	}
	return nil
}

// gpsdReport is the subset of a gpsd JSON report we care about.
type gpsdReport struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Alt   *float64 `json:"alt"`
	Speed *float64 `json:"speed"`
	Track *float64 `json:"track"`
}

// WithGPSDLogger sets the logger for the gpsd client
func WithGPSDLogger(logger *slog.Logger) func(g *GPSD) {
	return func(g *GPSD) {
		g.logger = logger
	}
}

// WithRetryDelay sets the pause between reconnection attempts.
func WithRetryDelay(d time.Duration) func(g *GPSD) {
	return func(g *GPSD) {
		g.retryDelay = d
	}
}

// GPSD follows the position reports of a gpsd daemon.
type GPSD struct {
	address    string
	retryDelay time.Duration
	logger     *slog.Logger

	latest atomic.Pointer[Telemetry]
}

func NewGPSD(config GPSDConfig, options ...func(g *GPSD)) *GPSD {
	g := GPSD{
		address:    config.Address,
		retryDelay: gpsdRetryDelay,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&g)
	}

	g.logger = g.logger.With(slog.String("component", "gpsd"), slog.String("address", g.address))
	return &g
}

// Get returns the latest fix with at least a 2D position.
func (g *GPSD) Get() *Telemetry {
	return g.latest.Load()
}

// Run keeps a connection to gpsd open until ctx is done, reconnecting after
// failures.
func (g *GPSD) Run(ctx context.Context) error {
	for {
		err := g.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}

		g.logger.Warn(fmt.Sprintf("gpsd connection lost: %s", err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.retryDelay):
		}
	}
}

func (g *GPSD) follow(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", g.address)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if _, err = conn.Write(gpsdWatch); err != nil {
		return err
	}

	g.logger.Info("following gpsd")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if t, ok := parseReport(scanner.Bytes()); ok {
			g.latest.Store(t)
		}
	}
	if err = scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// parseReport turns a TPV report with a 2D or 3D fix into telemetry.
func parseReport(line []byte) (*Telemetry, bool) {
	var r gpsdReport
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, false
	}
	if r.Class != "TPV" || r.Mode < gpsdMode2D || r.Lat == nil || r.Lon == nil {
		return nil, false
	}

	ts, err := time.Parse(time.RFC3339Nano, r.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	t := Telemetry{
		Timestamp:    ts,
		Latitude:     r.Lat,
		Longitude:    r.Lon,
		GroundSpeed:  r.Speed,
		GroundCourse: r.Track,
	}
	if r.Mode > gpsdMode2D {
		t.Altitude = r.Alt
	}
	return &t, true
}
