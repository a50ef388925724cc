package registry

import (
	"fmt"
	"time"

	"custodia/core/events"
	"custodia/core/types"
)

type engineState interface {
	ConfigGet() (*Config, bool)
	ConfigPut(*Config) error
	ArbiterGet(addr [20]byte) (*Arbiter, bool)
	ArbiterPut(*Arbiter) error
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the protocol configuration singleton and the arbiter registry.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// InitializeConfig bootstraps the singleton configuration. The caller becomes
// the admin. The operation may run exactly once.
func (e *Engine) InitializeConfig(admin [20]byte, feeBasisPoints uint16, feeVault [20]byte) (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, ok := e.state.ConfigGet(); ok {
		return nil, ErrAlreadyInitialized
	}
	if feeBasisPoints > MaxFeeBasisPoints {
		return nil, fmt.Errorf("%w: %d", ErrFeeTooHigh, feeBasisPoints)
	}
	if feeVault == ([20]byte{}) {
		return nil, ErrInvalidFeeCollector
	}
	if admin == ([20]byte{}) {
		return nil, fmt.Errorf("registry: invalid admin address")
	}
	cfg := &Config{
		Admin:          admin,
		FeeBasisPoints: feeBasisPoints,
		FeeVault:       feeVault,
		CreatedAt:      e.now(),
	}
	if err := e.state.ConfigPut(cfg); err != nil {
		return nil, err
	}
	e.emit(NewConfigInitializedEvent(cfg))
	return cfg.Clone(), nil
}

// Config returns the bootstrap configuration, or ErrNotInitialized when the
// bootstrap has not run yet.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg.Clone(), nil
}

func (e *Engine) requireAdmin(caller [20]byte) (*Config, error) {
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	if !cfg.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

// AddArbiter registers (or re-activates) an arbiter. Admin only.
func (e *Engine) AddArbiter(caller, arbiter [20]byte) (*Arbiter, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if arbiter == ([20]byte{}) {
		return nil, ErrInvalidArbiter
	}
	record := &Arbiter{
		Arbiter: arbiter,
		AddedBy: caller,
		AddedAt: e.now(),
		Active:  true,
	}
	if err := e.state.ArbiterPut(record); err != nil {
		return nil, err
	}
	e.emit(NewArbiterAddedEvent(record))
	return record.Clone(), nil
}

// RemoveArbiter deactivates an arbiter without deleting the record, keeping
// past resolutions attributable. Admin only.
func (e *Engine) RemoveArbiter(caller, arbiter [20]byte) (*Arbiter, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	record, ok := e.state.ArbiterGet(arbiter)
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrArbiterNotFound, arbiter)
	}
	record = record.Clone()
	record.Active = false
	if err := e.state.ArbiterPut(record); err != nil {
		return nil, err
	}
	e.emit(NewArbiterRemovedEvent(record, caller))
	return record.Clone(), nil
}

// Arbiter fetches the registry record for the supplied address.
func (e *Engine) Arbiter(addr [20]byte) (*Arbiter, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	record, ok := e.state.ArbiterGet(addr)
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}
