package reputation

import (
	"fmt"

	"custodia/core/events"
	"custodia/core/types"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	ReputationGet(user [20]byte) (*Reputation, bool)
	ReputationPut(*Reputation) error
}

type reputationEvent struct {
	evt *types.Event
}

func (e reputationEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e reputationEvent) Event() *types.Event { return e.evt }

// Ledger persists per-user trade outcome counters.
type Ledger struct {
	store   storage
	emitter events.Emitter
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(reputationEvent{evt: evt})
}

// Initialize creates the record for the supplied user when absent. The
// operation is idempotent: an existing record is returned unchanged.
func (l *Ledger) Initialize(user [20]byte) (*Reputation, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	if user == ([20]byte{}) {
		return nil, ErrInvalidUser
	}
	if existing, ok := l.store.ReputationGet(user); ok {
		return existing.Clone(), nil
	}
	record := &Reputation{User: user}
	if err := l.store.ReputationPut(record); err != nil {
		return nil, err
	}
	l.emit(NewReputationUpdatedEvent(record))
	return record.Clone(), nil
}

// Get fetches the record for the supplied user.
func (l *Ledger) Get(user [20]byte) (*Reputation, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, ErrNilState
	}
	record, ok := l.store.ReputationGet(user)
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

// Update applies the supplied outcome to an existing record. Counters
// saturate instead of wrapping. Authorization is enforced by the caller.
func (l *Ledger) Update(user [20]byte, outcome Outcome) (*Reputation, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	if !outcome.Valid() {
		return nil, fmt.Errorf("reputation: invalid outcome %d", outcome)
	}
	record, ok := l.store.ReputationGet(user)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, user)
	}
	record = record.Clone()
	switch outcome {
	case OutcomeSuccessful:
		record.IncrementSuccessful()
	case OutcomeFailed:
		record.IncrementFailed()
	}
	if err := l.store.ReputationPut(record); err != nil {
		return nil, err
	}
	l.emit(NewReputationUpdatedEvent(record))
	return record.Clone(), nil
}
