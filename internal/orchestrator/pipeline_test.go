package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"vlcsync/internal/platform/logger"
)

// pipeline runs real controllers, each on its own fake RC console, behind
// a real dispatcher.
type pipeline struct {
	rcs      []*fakeRC
	batches  chan Batch
	registry *Registry
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func startPipeline(t *testing.T, n, inboxSize, syncSize int) *pipeline {
	t.Helper()
	p := &pipeline{batches: make(chan Batch, 8)}

	instances := make([]Instance, n)
	for i := range n {
		rc := newFakeRC(t)
		p.rcs = append(p.rcs, rc)
		instances[i] = instanceAt(t, i, rc.addr())
	}
	p.registry = NewRegistry(instances)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	log := logger.Discard()

	syncCh := make(chan int, syncSize)
	sends := make([]chan<- Command, n)
	for i, in := range instances {
		inbox := make(chan Command, inboxSize)
		sends[i] = inbox
		var syncOut chan<- int
		if in.IsMaster() {
			syncOut = syncCh
		}
		c := NewController(in, inbox, syncOut, ControllerOptions{RC: RCOptions{Timeout: time.Second}}, p.registry, nil, log)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			c.Run(ctx)
		}()
	}

	d := NewDispatcher(p.batches, syncCh, sends, DispatcherOptions{PollInterval: 10 * time.Millisecond}, nil, log)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		d.Run(ctx)
	}()

	t.Cleanup(p.stop)
	return p
}

func (p *pipeline) stop() {
	p.cancel()
	p.wg.Wait()
}

func TestPipeline_jump_converges_on_master_position(t *testing.T) {
	p := startPipeline(t, 3, 64, 8)
	p.rcs[0].setPosition(42)

	p.batches <- Batch{Raw: "jump 30"}

	master := p.rcs[0]
	for _, want := range []string{"jump 30", DefaultTimeQuery, "seek 42"} {
		if got := master.next(t); got != want {
			t.Fatalf("master received %q, want %q", got, want)
		}
	}
	for i, rc := range p.rcs[1:] {
		if got := rc.next(t); got != "seek 42" {
			t.Errorf("slave %d received %q, want seek 42 and no jump", i+1, got)
		}
		rc.expectNone(t, 20*time.Millisecond)
	}
}

func TestPipeline_shutdown_closes_every_connection(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d instances", n), func(t *testing.T) {
			p := startPipeline(t, n, 64, 8)

			p.batches <- Batch{Raw: "play"}
			for i, rc := range p.rcs {
				if got := rc.next(t); got != "play" {
					t.Fatalf("instance %d received %q, want play", i, got)
				}
			}

			stopped := make(chan struct{})
			go func() {
				p.stop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(2 * time.Second):
				t.Fatal("workers did not stop within the grace period")
			}

			for _, rc := range p.rcs {
				rc.waitClosed(t)
			}
			for _, st := range p.registry.Snapshot() {
				if st.Conn != ConnDisconnected {
					t.Errorf("instance %d conn = %s, want disconnected", st.Index, st.Conn)
				}
			}
		})
	}
}

func TestPipeline_jump_burst_does_not_stall(t *testing.T) {
	const jumps = 100
	p := startPipeline(t, 1, 64, 8)
	p.rcs[0].setPosition(7)

	p.batches <- Batch{Raw: strings.TrimSuffix(strings.Repeat("jump 1,", jumps), ",")}

	seeks := 0
	deadline := time.After(10 * time.Second)
	for seeks < jumps {
		select {
		case line := <-p.rcs[0].lines:
			if strings.HasPrefix(line, "seek ") {
				seeks++
			}
		case <-deadline:
			t.Fatalf("player received %d of %d seeks", seeks, jumps)
		}
	}
}
