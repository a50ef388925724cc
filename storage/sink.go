package storage

import (
	"context"
	"log/slog"
	"time"

	"custodia/core/events"
	"custodia/core/types"
)

// payloadCarrier is implemented by the engine event wrappers, exposing the
// attribute payload behind the emitter interface.
type payloadCarrier interface {
	Event() *types.Event
}

// Sink adapts the audit store to the ledger emitter interface. Persistence
// failures are logged and dropped; the state transition has already
// committed by the time the sink observes the event.
type Sink struct {
	store   *Storage
	logger  *slog.Logger
	timeout time.Duration
}

// NewSink wraps the store in an event emitter.
func NewSink(store *Storage, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger, timeout: 5 * time.Second}
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || s.store == nil || evt == nil {
		return
	}
	var attrs map[string]string
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			attrs = payload.Attributes
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.RecordEvent(ctx, evt.EventType(), attrs); err != nil {
		s.logger.Error("audit event dropped", "type", evt.EventType(), "error", err)
	}
}
