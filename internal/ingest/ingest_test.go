package ingest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"vlcsync/internal/orchestrator"
	"vlcsync/internal/platform/logger"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	batches []string
	err     error
}

func (f *fakeSubmitter) Submit(raw string) (orchestrator.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return orchestrator.Batch{}, f.err
	}
	if raw == "" {
		return orchestrator.Batch{}, orchestrator.ErrEmptyBatch
	}
	f.batches = append(f.batches, raw)
	return orchestrator.Batch{ID: "b", Raw: raw}, nil
}

func (f *fakeSubmitter) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.batches...)
}

type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return DefaultMQTTTopic }
func (m fakeMessage) MessageID() uint16 { return 7 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()             {}

func TestMQTTSource_handleMessage(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewMQTTSource(MQTTOptions{Broker: "localhost:1883"}, sub, logger.Discard())

	s.handleMessage(nil, fakeMessage{payload: []byte("play,sleep 1,pause\n")})
	s.handleMessage(nil, fakeMessage{payload: []byte("   ")})

	want := []string{"play,sleep 1,pause"}
	if got := sub.got(); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %q, want %q", got, want)
	}
}

func TestMQTTSource_handleMessage_queue_full(t *testing.T) {
	sub := &fakeSubmitter{err: orchestrator.ErrQueueFull}
	s := NewMQTTSource(MQTTOptions{Broker: "localhost:1883"}, sub, logger.Discard())

	s.handleMessage(nil, fakeMessage{payload: []byte("play")})
	if got := sub.got(); len(got) != 0 {
		t.Errorf("expected dropped batch, got %q", got)
	}
}

func TestNewMQTTSource_defaults(t *testing.T) {
	s := NewMQTTSource(MQTTOptions{Broker: "b:1883", QoS: 9}, &fakeSubmitter{}, logger.Discard())
	if s.opts.Topic != DefaultMQTTTopic {
		t.Errorf("topic = %q, want %q", s.opts.Topic, DefaultMQTTTopic)
	}
	if s.opts.QoS != 1 {
		t.Errorf("qos = %d, want 1", s.opts.QoS)
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"localhost:1883", "tcp://localhost:1883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"ws://broker:9001/mqtt", "ws://broker:9001/mqtt"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.in); got != tt.want {
			t.Errorf("brokerURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSpoolSource_process(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	s := NewSpoolSource(dir, sub, logger.Discard())

	path := filepath.Join(dir, "batch.txt")
	writeFile(t, path, "play\n\n  @1 pause  \nseek 10,sleep 1,play\n")

	if n := s.process(path); n != 3 {
		t.Errorf("accepted = %d, want 3", n)
	}
	want := []string{"play", "@1 pause", "seek 10,sleep 1,play"}
	if got := sub.got(); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %q, want %q", got, want)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
}

func TestSpoolSource_process_ignores(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	s := NewSpoolSource(dir, sub, logger.Discard())

	hidden := filepath.Join(dir, ".partial")
	writeFile(t, hidden, "play\n")
	sub2 := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub2, 0o755); err != nil {
		t.Fatal(err)
	}

	t.Run("dot file", func(t *testing.T) {
		if n := s.process(hidden); n != 0 {
			t.Errorf("accepted = %d, want 0", n)
		}
		if _, err := os.Stat(hidden); err != nil {
			t.Errorf("dot file should stay: %v", err)
		}
	})
	t.Run("directory", func(t *testing.T) {
		if n := s.process(sub2); n != 0 {
			t.Errorf("accepted = %d, want 0", n)
		}
	})
	t.Run("missing", func(t *testing.T) {
		if n := s.process(filepath.Join(dir, "gone")); n != 0 {
			t.Errorf("accepted = %d, want 0", n)
		}
	})
	if got := sub.got(); len(got) != 0 {
		t.Errorf("expected no batches, got %q", got)
	}
}

func TestSpoolSource_Run(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "01-existing"), "play\n")

	sub := &fakeSubmitter{}
	s := NewSpoolSource(dir, sub, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return len(sub.got()) == 1 })

	tmp := filepath.Join(dir, ".incoming")
	writeFile(t, tmp, "pause\n")
	if err := os.Rename(tmp, filepath.Join(dir, "02-new")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(sub.got()) == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	want := []string{"play", "pause"}
	if got := sub.got(); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %q, want %q", got, want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
