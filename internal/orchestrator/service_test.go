package orchestrator

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewService_defaultQueueSize(t *testing.T) {
	svc := NewService(0, NewRegistry(nil), nil)
	if cap(svc.batches) != DefaultQueueSize {
		t.Errorf("queue size = %d, want %d", cap(svc.batches), DefaultQueueSize)
	}
}

func TestService_Submit(t *testing.T) {
	svc := NewService(4, NewRegistry(nil), nil)

	b, err := svc.Submit("  play, sleep 1, pause \n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := uuid.Parse(b.ID); err != nil {
		t.Errorf("batch ID %q is not a uuid: %v", b.ID, err)
	}
	if b.Raw != "play, sleep 1, pause" {
		t.Errorf("Raw = %q", b.Raw)
	}
	if b.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}

	got := <-svc.Batches()
	if got.ID != b.ID {
		t.Errorf("queued batch %q, want %q", got.ID, b.ID)
	}
}

func TestService_Submit_empty(t *testing.T) {
	svc := NewService(4, NewRegistry(nil), nil)
	for _, raw := range []string{"", "   ", ", ,"} {
		if _, err := svc.Submit(raw); !errors.Is(err, ErrEmptyBatch) {
			t.Errorf("Submit(%q): got %v, want ErrEmptyBatch", raw, err)
		}
	}
	if len(svc.Batches()) != 0 {
		t.Error("empty batches must not be queued")
	}
}

func TestService_Submit_queue_full(t *testing.T) {
	svc := NewService(2, NewRegistry(nil), nil)
	for range 2 {
		if _, err := svc.Submit("play"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if _, err := svc.Submit("pause"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}

	<-svc.Batches()
	if _, err := svc.Submit("pause"); err != nil {
		t.Errorf("Submit after drain: %v", err)
	}
}

func TestService_Submit_forwards_unknown_verbs(t *testing.T) {
	svc := NewService(1, NewRegistry(nil), nil)
	if _, err := svc.Submit("frobnicate --hard"); err != nil {
		t.Errorf("unrecognized commands must be accepted: %v", err)
	}
}

func TestService_Instances(t *testing.T) {
	svc := NewService(1, NewRegistry(testInstances()), nil)
	if got := svc.Instances(); len(got) != 3 {
		t.Errorf("Instances len = %d, want 3", len(got))
	}
	if _, ok := svc.Instance(2); !ok {
		t.Error("Instance(2) not found")
	}
	if _, ok := svc.Instance(5); ok {
		t.Error("Instance(5) found")
	}
}
