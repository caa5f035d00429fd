package rtltcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rtlsdr-scanner/internal/sdr"
)

const (
	// DefaultTimeout bounds the handshake and every socket read.
	DefaultTimeout = 5 * time.Second

	// idleChunk is the read size used to drain the stream while no read is outstanding.
	idleChunk = 4096

	// idlePoll bounds a single idle read so queued commands are flushed promptly.
	idlePoll = 100 * time.Millisecond

	// settleTime is the portion of the stream dropped after a frequency change.
	settleTime = 0.1
)

var ErrClosed = errors.New("connection closed")

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the handshake and read timeout
func WithTimeout(timeout time.Duration) func(c *Client) {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client is a Tuner backed by a remote rtl_tcp server.
//
// A single reader goroutine owns the socket. While no read is outstanding it
// drains the sample stream; when ReadSamples posts a request it collects
// exactly the requested number of bytes and hands them over through a
// condition variable. Commands are queued by the caller and written by the
// same goroutine between reads.
type Client struct {
	conn    net.Conn
	header  Header
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	pending    []Command
	sampleRate float64
	want       int    // bytes requested by the caller, 0 when idle
	buf        []byte // completed request
	settle     int    // bytes still to drop after a frequency change
	odd        bool   // an odd number of bytes has been consumed so far
	err        error
	closed     bool

	done chan struct{}
}

// Dial connects to an rtl_tcp server, reads the dongle info header and starts
// the reader goroutine.
func Dial(ctx context.Context, address string, options ...func(c *Client)) (*Client, error) {
	c := Client{
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		sampleRate: sdr.SampleRate,
		done:       make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	for _, option := range options {
		option(&c)
	}

	c.logger = c.logger.With(slog.String("device", sdr.DeviceRemote.String()), slog.String("address", address))

	var dialer net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, sdr.NewTransportError("dial", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	header := make([]byte, HeaderSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.timeout))
	if _, err = io.ReadFull(conn, header); err != nil {
		_ = conn.Close()
		return nil, sdr.NewTransportError("reading header", err)
	}

	if c.header, err = ParseHeader(header); err != nil {
		_ = conn.Close()
		return nil, sdr.NewTransportError("parsing header", err)
	}

	c.conn = conn
	c.logger.Info("connected", slog.String("tuner", c.header.Tuner.String()), slog.Uint64("gains", uint64(c.header.GainCount)))

	go c.readLoop()

	return &c, nil
}

// TunerType returns the tuner reported in the handshake.
func (c *Client) TunerType() sdr.TunerType {
	return c.header.Tuner
}

func (c *Client) SetSampleRate(hz float64) error {
	c.mu.Lock()
	c.sampleRate = hz
	c.mu.Unlock()

	return c.send(Command{ID: CmdSetSampleRate, Param: int32(hz)})
}

func (c *Client) SetCenterFreq(hz float64) error {
	if hz <= 0 || hz > math.MaxInt32 {
		return sdr.NewDeviceError("tune", fmt.Errorf("frequency out of range: %.0f Hz", hz))
	}
	return c.send(Command{ID: CmdSetFreq, Param: int32(hz)})
}

// SetGain selects manual gain, snapped to the nearest value supported by the
// tuner, or automatic gain when db is nil.
func (c *Client) SetGain(db *float64) error {
	if db == nil {
		return c.send(Command{ID: CmdSetGainMode, Param: 0})
	}

	gain := sdr.NearestGain(*db, c.header.Tuner.Gains())
	return c.send(
		Command{ID: CmdSetGainMode, Param: 1},
		Command{ID: CmdSetGain, Param: int32(math.Round(gain * 10))},
	)
}

// ReadSamples blocks until n samples are received or the connection fails.
func (c *Client) ReadSamples(n int) ([]complex128, error) {
	if n <= 0 {
		return nil, sdr.NewDeviceError("read", fmt.Errorf("invalid sample count: %d", n))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}

	c.want = n * 2
	c.buf = nil
	for c.buf == nil && c.err == nil {
		c.cond.Wait()
	}
	if c.err != nil {
		return nil, c.err
	}

	raw := c.buf
	c.buf = nil
	return sdr.ConvertIQ(raw), nil
}

// Close closes the connection and waits for the reader goroutine to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.done

	c.logger.Info("disconnected")
	return err
}

func (c *Client) send(commands ...Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.pending = append(c.pending, commands...)
	return nil
}

func (c *Client) fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.err = sdr.NewTransportError(op, ErrClosed)
	} else {
		c.err = sdr.NewTransportError(op, err)
		c.logger.Error(c.err.Error())
	}
	c.cond.Broadcast()
}

func (c *Client) readLoop() {
	defer close(c.done)

	idle := make([]byte, idleChunk)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.fail("read", ErrClosed)
			return
		}
		commands := c.pending
		c.pending = nil
		want := c.want
		sampleRate := c.sampleRate
		c.mu.Unlock()

		if err := c.writeCommands(commands, sampleRate); err != nil {
			c.fail("write", err)
			return
		}

		if want > 0 {
			buf, err := c.collect(want)
			if err != nil {
				c.fail("read", err)
				return
			}

			c.mu.Lock()
			c.want = 0
			c.buf = buf
			c.cond.Broadcast()
			c.mu.Unlock()
			continue
		}

		if err := c.drain(idle); err != nil {
			c.fail("read", err)
			return
		}
	}
}

func (c *Client) writeCommands(commands []Command, sampleRate float64) error {
	for _, cmd := range commands {
		frame, _ := cmd.MarshalBinary()

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
		if _, err := c.conn.Write(frame); err != nil {
			return fmt.Errorf("sending %s: %w", cmd, err)
		}

		if cmd.ID == CmdSetFreq {
			c.mu.Lock()
			c.settle = int(sampleRate*2*settleTime) &^ 1
			c.mu.Unlock()

			c.logger.Debug("tuned", slog.String("frequency", humanize.SIWithDigits(float64(cmd.Param), 3, "Hz")))
		}
	}
	return nil
}

// drain discards whatever the server has sent while no read is outstanding.
func (c *Client) drain(idle []byte) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(idlePoll))

	n, err := c.conn.Read(idle)
	c.consumed(n)

	c.mu.Lock()
	c.settle = max(0, c.settle-n) &^ 1
	c.mu.Unlock()

	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	return nil
}

// collect reads exactly n bytes of IQ data, first dropping the settle
// period and realigning to an I sample if needed.
func (c *Client) collect(n int) ([]byte, error) {
	c.mu.Lock()
	skip := c.settle
	if c.odd {
		skip++
	}
	c.settle = 0
	c.mu.Unlock()

	r := &timeoutReader{conn: c.conn, timeout: c.timeout}

	if skip > 0 {
		discarded, err := io.CopyN(io.Discard, r, int64(skip))
		c.consumed(int(discarded))
		if err != nil {
			return nil, err
		}
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	c.consumed(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// timeoutReader applies the read timeout to every read from the socket, so a
// long capture only fails when the stream stalls.
type timeoutReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	return r.conn.Read(p)
}

func (c *Client) consumed(n int) {
	if n%2 == 0 {
		return
	}

	c.mu.Lock()
	c.odd = !c.odd
	c.mu.Unlock()
}
