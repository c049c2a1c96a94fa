// Package ingest feeds command batches from sources other than HTTP into
// the orchestrator: an MQTT topic and a spool directory.
package ingest

import (
	"errors"
	"log/slog"

	"vlcsync/internal/orchestrator"
)

// Submitter accepts one raw command batch.
type Submitter interface {
	Submit(raw string) (orchestrator.Batch, error)
}

// submit hands raw to svc and logs the outcome. It reports whether the
// batch was accepted.
func submit(svc Submitter, log *slog.Logger, raw string) bool {
	b, err := svc.Submit(raw)
	switch {
	case err == nil:
		log.Info("command batch accepted", "batch_id", b.ID, "command", b.Raw)
		return true
	case errors.Is(err, orchestrator.ErrQueueFull):
		log.Warn("command queue full, dropping batch", "command", raw)
	case errors.Is(err, orchestrator.ErrEmptyBatch):
		log.Debug("ignoring empty batch")
	default:
		log.Error("submit batch failed", "command", raw, "error", err)
	}
	return false
}
