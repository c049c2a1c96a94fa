package orchestrator

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"vlcsync/internal/platform/metrics"
)

// DefaultQueueSize is the default capacity of the batch inbox.
const DefaultQueueSize = 64

var (
	// ErrEmptyBatch is returned for a batch with no command text.
	ErrEmptyBatch = errors.New("empty command batch")

	// ErrQueueFull is returned when the dispatcher is not keeping up.
	ErrQueueFull = errors.New("command queue full")
)

// Service is the entry point shared by every external command source.
// It never blocks: batches go to a bounded inbox read by the Dispatcher.
type Service struct {
	batches  chan Batch
	registry *Registry
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService returns a Service with an inbox of queueSize batches.
// If queueSize <= 0, DefaultQueueSize is used.
func NewService(queueSize int, registry *Registry, m *metrics.Metrics) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Service{
		batches:  make(chan Batch, queueSize),
		registry: registry,
		metrics:  m,
		now:      time.Now,
	}
}

// Batches is the inbox consumed by the Dispatcher.
func (s *Service) Batches() <-chan Batch {
	return s.batches
}

// Submit enqueues one raw comma separated batch and returns it with its
// assigned ID. Command text is not validated.
func (s *Service) Submit(raw string) (Batch, error) {
	raw = strings.TrimSpace(raw)
	if len(ParseBatch(raw)) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	b := Batch{
		ID:         uuid.NewString(),
		Raw:        raw,
		ReceivedAt: s.now().UTC(),
	}
	select {
	case s.batches <- b:
	default:
		return Batch{}, ErrQueueFull
	}
	s.metrics.IncBatches()
	return b, nil
}

// Instances returns the status of every instance ordered by index.
func (s *Service) Instances() []InstanceStatus {
	return s.registry.Snapshot()
}

// Instance returns the status of one instance.
func (s *Service) Instance(index int) (InstanceStatus, bool) {
	return s.registry.Get(index)
}
