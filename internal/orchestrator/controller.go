package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"vlcsync/internal/platform/metrics"
)

// DefaultTimeQuery asks the player for its playback position in seconds.
const DefaultTimeQuery = "get_time"

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	RC RCOptions
	// TimeQuery and TimePattern form the master clock query.
	TimeQuery   string
	TimePattern *regexp.Regexp
}

// Controller drives one player over its RC connection. It consumes
// directives from its inbox until the shutdown context is cancelled.
//
// The master answers "jump" by jumping and then publishing its new
// position on the sync channel. Slaves never forward "jump"; they wait
// for the "seek" the dispatcher relays from the master's position, so
// every slave converges on the same timestamp.
type Controller struct {
	instance Instance
	inbox    <-chan Command
	syncOut  chan<- int
	client   *RCClient
	opts     ControllerOptions
	registry *Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewController returns a controller for one instance. syncOut is only
// written by the master.
func NewController(in Instance, inbox <-chan Command, syncOut chan<- int, opts ControllerOptions, registry *Registry, m *metrics.Metrics, log *slog.Logger) *Controller {
	if opts.TimeQuery == "" {
		opts.TimeQuery = DefaultTimeQuery
	}
	if opts.TimePattern == nil {
		opts.TimePattern = TimePattern
	}

	c := &Controller{
		instance: in,
		inbox:    inbox,
		syncOut:  syncOut,
		opts:     opts,
		registry: registry,
		metrics:  m,
		log:      log.With("instance", in.Index, "addr", in.Addr(), "master", in.IsMaster()),
	}

	rcOpts := opts.RC
	onState := rcOpts.OnState
	rcOpts.OnState = func(s ConnState, err error) {
		registry.SetConn(in.Index, s, err)
		if onState != nil {
			onState(s, err)
		}
	}
	c.client = NewRCClient(in.Addr(), rcOpts)
	return c
}

// Run processes directives until ctx is cancelled or the inbox is closed.
// The RC connection is closed on every exit path.
func (c *Controller) Run(ctx context.Context) {
	c.log.Info("controller started")
	defer func() {
		if err := c.client.Close(); err != nil {
			c.log.Debug("close rc connection", "error", err)
		}
		c.log.Info("controller stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.inbox:
			if !ok {
				return
			}
			c.handle(ctx, cmd)
		}
	}
}

func (c *Controller) handle(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case KindSleep:
		c.log.Debug("pausing controller", "delay", cmd.Delay)
		select {
		case <-ctx.Done():
		case <-time.After(cmd.Delay):
		}

	case KindJump:
		if !c.instance.IsMaster() {
			c.log.Debug("slave skips jump, waiting for seek", "command", cmd.Text)
			return
		}
		if err := c.send(ctx, cmd.Text); err != nil {
			return
		}
		c.emitSync(ctx)

	default:
		c.send(ctx, cmd.Text)
	}
}

// send forwards one line. Failures are contained here: the next directive
// reopens the connection.
func (c *Controller) send(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if err := c.client.Send(ctx, line); err != nil {
		if ctx.Err() == nil {
			c.log.Warn("rc send failed", "command", line, "error", err)
			c.metrics.IncRCSendErrors(c.instance.Index)
		}
		return err
	}
	c.log.Debug("rc command sent", "command", line)
	c.registry.RecordSent(c.instance.Index)
	return nil
}

// emitSync queries the player's position and publishes it. A query
// without an answer skips this sync; the next jump retries.
func (c *Controller) emitSync(ctx context.Context) {
	ts, err := c.queryTime(ctx)
	if err != nil {
		if errors.Is(err, ErrQueryTimeout) {
			c.metrics.IncQueryTimeouts()
		}
		if ctx.Err() == nil {
			c.log.Warn("clock query failed, skipping sync", "error", err)
		}
		return
	}

	select {
	case <-ctx.Done():
		return
	case c.syncOut <- ts:
	}
	c.registry.RecordSync(c.instance.Index, ts)
	c.log.Debug("emitted sync timestamp", "timestamp", ts)
}

func (c *Controller) queryTime(ctx context.Context) (int, error) {
	m, err := c.client.Query(ctx, c.opts.TimeQuery, c.opts.TimePattern)
	if err != nil {
		return 0, err
	}
	if len(m) < 2 {
		return 0, fmt.Errorf("time pattern %q has no capture group", c.opts.TimePattern)
	}
	ts, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", m[1], err)
	}
	return ts, nil
}
