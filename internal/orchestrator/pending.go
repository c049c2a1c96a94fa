package orchestrator

import "time"

// DeferredEntry is a command held until its due time arrives.
type DeferredEntry struct {
	Due     time.Time
	Command Command
}

// PendingQueue holds deferred entries across dispatcher ticks.
// It is owned by a single Dispatcher and is not safe for concurrent use.
type PendingQueue struct {
	entries []DeferredEntry
}

// NewPendingQueue returns an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Push appends entries to the queue.
func (q *PendingQueue) Push(entries ...DeferredEntry) {
	q.entries = append(q.entries, entries...)
}

// PopDue removes and returns the commands whose due time is at or before
// now, in insertion order. Entries not yet due stay queued.
func (q *PendingQueue) PopDue(now time.Time) []Command {
	if len(q.entries) == 0 {
		return nil
	}

	var due []Command
	remaining := q.entries[:0]
	for _, e := range q.entries {
		if e.Due.After(now) {
			remaining = append(remaining, e)
			continue
		}
		due = append(due, e.Command)
	}

	// Clear the tail so released commands can be collected.
	for i := len(remaining); i < len(q.entries); i++ {
		q.entries[i] = DeferredEntry{}
	}
	q.entries = remaining
	return due
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queued entries.
func (q *PendingQueue) Entries() []DeferredEntry {
	out := make([]DeferredEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
