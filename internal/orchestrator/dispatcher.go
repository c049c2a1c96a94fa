package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"vlcsync/internal/platform/metrics"
)

// DefaultPollInterval is how long one dispatcher tick waits for a batch.
const DefaultPollInterval = 50 * time.Millisecond

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	PollInterval time.Duration
	// Now is the wall clock used for deferral; time.Now by default.
	Now func() time.Time
}

// Dispatcher turns raw batches and master timestamps into directives and
// broadcasts them to every instance inbox. It owns the PendingQueue.
type Dispatcher struct {
	batches <-chan Batch
	sync    <-chan int
	inboxes []chan<- Command
	pending *PendingQueue
	// held keeps master timestamps received mid-broadcast for the next tick.
	held    []int
	opts    DispatcherOptions
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewDispatcher returns a dispatcher fanning out to inboxes, indexed by
// instance.
func NewDispatcher(batches <-chan Batch, sync <-chan int, inboxes []chan<- Command, opts DispatcherOptions, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		batches: batches,
		sync:    sync,
		inboxes: inboxes,
		pending: NewPendingQueue(),
		opts:    opts,
		metrics: m,
		log:     log.With("component", "dispatcher"),
	}
}

// Run loops until ctx is cancelled. Each tick waits at most one poll
// interval for a batch or a master timestamp, then collects every
// timestamp already waiting.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("dispatcher started", "instances", len(d.inboxes), "poll_interval", d.opts.PollInterval)
	defer d.log.Info("dispatcher stopped", "pending", d.pending.Len())

	timer := time.NewTimer(d.opts.PollInterval)
	defer timer.Stop()

	for {
		var batch *Batch
		timer.Reset(d.opts.PollInterval)
		select {
		case <-ctx.Done():
			return
		case b, ok := <-d.batches:
			if !ok {
				d.batches = nil
				continue
			}
			batch = &b
		case ts := <-d.sync:
			d.held = append(d.held, ts)
		case <-timer.C:
		}

		if err := d.broadcast(ctx, d.Tick(d.opts.Now(), batch, d.takeSync())); err != nil {
			return
		}
	}
}

// Tick computes the directives of one tick at now, in order: due
// deferred commands, then the batch's immediate commands, then one seek per
// master timestamp in arrival order. batch may be nil.
func (d *Dispatcher) Tick(now time.Time, batch *Batch, timestamps []int) []Command {
	out := d.pending.PopDue(now)

	if batch != nil {
		immediate, deferred := SplitBatch(batch.Raw, now)
		d.pending.Push(deferred...)
		out = append(out, immediate...)
		d.log.Debug("batch split",
			"batch_id", batch.ID,
			"immediate", len(immediate),
			"deferred", len(deferred))
	}

	for _, ts := range timestamps {
		out = append(out, Seek(ts))
		d.metrics.IncSyncEvents()
		d.log.Debug("relaying master timestamp", "timestamp", ts)
	}

	d.metrics.SetPendingCommands(d.pending.Len())
	return out
}

// takeSync returns the held timestamps plus every one waiting on the sync
// channel, and clears the hold.
func (d *Dispatcher) takeSync() []int {
	for {
		select {
		case ts := <-d.sync:
			d.held = append(d.held, ts)
		default:
			out := d.held
			d.held = nil
			return out
		}
	}
}

// broadcast delivers every command in order. An instance inbox that is
// full blocks the dispatcher rather than dropping directives; meanwhile
// the sync channel keeps being read so the master never waits on it.
func (d *Dispatcher) broadcast(ctx context.Context, cmds []Command) error {
	sent := 0
	for _, cmd := range cmds {
		if cmd.Targeted() {
			if cmd.Target >= len(d.inboxes) {
				d.log.Warn("dropping command for unknown instance", "target", cmd.Target, "command", cmd.Text)
				continue
			}
			if err := d.deliver(ctx, d.inboxes[cmd.Target], cmd); err != nil {
				return err
			}
			sent++
			continue
		}
		for _, inbox := range d.inboxes {
			if err := d.deliver(ctx, inbox, cmd); err != nil {
				return err
			}
		}
		sent++
	}
	d.metrics.AddCommandsDispatched(sent)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, inbox chan<- Command, cmd Command) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inbox <- cmd:
			return nil
		case ts := <-d.sync:
			d.held = append(d.held, ts)
		}
	}
}
