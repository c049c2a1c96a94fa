package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"time"
)

var (
	// ErrNotConnected is returned when no RC connection could be opened.
	ErrNotConnected = errors.New("rc: not connected")

	// ErrQueryTimeout is returned when a query response does not match
	// within the network timeout.
	ErrQueryTimeout = errors.New("rc: no matching response before timeout")
)

const (
	// DefaultNetTimeout bounds dialing, writing and query responses.
	DefaultNetTimeout = 3 * time.Second

	// lineEnd terminates every RC command.
	lineEnd = "\r\n"

	// drainWindow is how long drain waits for already buffered output.
	drainWindow = 5 * time.Millisecond

	// redialBackoff separates reconnect attempts within one send.
	redialBackoff = 100 * time.Millisecond

	// maxResponseBuffer caps the bytes kept while matching a response.
	maxResponseBuffer = 64 << 10

	// maxDrainReads bounds drain against a player that never goes quiet.
	maxDrainReads = 64
)

// TimePattern matches the answer to "get_time": a bare decimal line.
var TimePattern = regexp.MustCompile(`(?m)^(?:> )?(\d+)\r?\n`)

// DialFunc opens a stream connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// RCOptions configures an RCClient.
type RCOptions struct {
	// Timeout bounds dialing, each write and query responses.
	Timeout time.Duration
	// MaxAttempts is the number of dial attempts per send.
	MaxAttempts int
	// Dial defaults to a net.Dialer.
	Dial DialFunc
	// OnState is called on every connection state change.
	OnState func(ConnState, error)
}

// RCClient is a lazily opened, persistent connection to one player's RC
// interface. It is owned by a single controller and is not safe for
// concurrent use.
//
// States move Disconnected -> Connecting -> Connected. A dial that fails
// MaxAttempts times leaves the client Failed; the next Send starts over.
type RCClient struct {
	addr string
	opts RCOptions

	conn  net.Conn
	state ConnState
}

// NewRCClient returns a disconnected client for addr.
func NewRCClient(addr string, opts RCOptions) *RCClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNetTimeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Dial == nil {
		d := &net.Dialer{}
		opts.Dial = d.DialContext
	}
	return &RCClient{addr: addr, opts: opts, state: ConnDisconnected}
}

// State returns the current connection state.
func (c *RCClient) State() ConnState {
	return c.state
}

// Send writes one command line, opening the connection if needed.
// Pending player output is discarded first so a later Query only sees
// the response to its own command.
func (c *RCClient) Send(ctx context.Context, line string) error {
	if err := c.ensureConn(ctx); err != nil {
		return err
	}
	if err := c.drain(); err != nil {
		// The player closed the connection since the last send.
		c.reset(ConnDisconnected, err)
		if err := c.ensureConn(ctx); err != nil {
			return err
		}
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
		c.reset(ConnFailed, err)
		return fmt.Errorf("rc %s: set write deadline: %w", c.addr, err)
	}
	if _, err := io.WriteString(c.conn, line+lineEnd); err != nil {
		c.reset(ConnFailed, err)
		return fmt.Errorf("rc %s: write %q: %w", c.addr, line, err)
	}
	return nil
}

// Query sends line and waits for output matching pattern. It returns the
// submatches of the first match. On timeout it returns ErrQueryTimeout and
// keeps the connection open.
func (c *RCClient) Query(ctx context.Context, line string, pattern *regexp.Regexp) ([]string, error) {
	if err := c.Send(ctx, line); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.reset(ConnFailed, err)
		return nil, fmt.Errorf("rc %s: set read deadline: %w", c.addr, err)
	}

	var buf []byte
	chunk := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if len(buf) > maxResponseBuffer {
				buf = buf[len(buf)-maxResponseBuffer:]
			}
			if m := pattern.FindSubmatch(buf); m != nil {
				out := make([]string, len(m))
				for i, b := range m {
					out[i] = string(b)
				}
				return out, nil
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("rc %s: %q: %w", c.addr, line, ErrQueryTimeout)
			}
			c.reset(ConnFailed, err)
			return nil, fmt.Errorf("rc %s: read: %w", c.addr, err)
		}
	}
}

// Close closes the connection if open.
func (c *RCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.setState(ConnDisconnected, nil)
	return err
}

func (c *RCClient) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				c.setState(ConnFailed, ctx.Err())
				return ctx.Err()
			case <-time.After(redialBackoff):
			}
		}

		c.setState(ConnConnecting, nil)
		dctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		conn, err := c.opts.Dial(dctx, "tcp", c.addr)
		cancel()
		if err == nil {
			c.conn = conn
			c.setState(ConnConnected, nil)
			return nil
		}
		lastErr = err
	}

	c.setState(ConnFailed, lastErr)
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrNotConnected, c.addr, c.opts.MaxAttempts, lastErr)
}

// drain discards output already sent by the player. It returns an error
// only when the connection is gone.
func (c *RCClient) drain() error {
	chunk := make([]byte, 1024)
	for i := 0; i < maxDrainReads; i++ {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainWindow)); err != nil {
			return err
		}
		n, err := c.conn.Read(chunk)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (c *RCClient) reset(state ConnState, err error) {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.setState(state, err)
}

func (c *RCClient) setState(s ConnState, err error) {
	c.state = s
	if c.opts.OnState != nil {
		c.opts.OnState(s, err)
	}
}

// WaitReady dials addr until it accepts a connection or timeout elapses.
func WaitReady(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := &net.Dialer{}
	ticker := time.NewTicker(redialBackoff)
	defer ticker.Stop()

	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rc %s not accepting connections after %s: %w", addr, timeout, err)
		case <-ticker.C:
		}
	}
}
