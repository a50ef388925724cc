package registry

import (
	"bytes"
	"errors"
	"testing"

	"custodia/core/events"
)

type mockState struct {
	config   *Config
	arbiters map[[20]byte]*Arbiter
}

func newMockState() *mockState {
	return &mockState{arbiters: make(map[[20]byte]*Arbiter)}
}

func (m *mockState) ConfigGet() (*Config, bool) {
	if m.config == nil {
		return nil, false
	}
	return m.config.Clone(), true
}

func (m *mockState) ConfigPut(cfg *Config) error {
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) ArbiterGet(addr [20]byte) (*Arbiter, bool) {
	record, ok := m.arbiters[addr]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) ArbiterPut(record *Arbiter) error {
	m.arbiters[record.Arbiter] = record.Clone()
	return nil
}

type capturedEvents struct {
	types []string
}

func (c *capturedEvents) Emit(evt events.Event) {
	c.types = append(c.types, evt.EventType())
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	admin    = newTestAddress(0x01)
	arbiter  = newTestAddress(0x02)
	outsider = newTestAddress(0x03)
	feeVault = newTestAddress(0x04)
)

func newTestEngine() (*Engine, *mockState, *capturedEvents) {
	state := newMockState()
	emitted := &capturedEvents{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitted)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, emitted
}

func mustInitialize(t *testing.T, engine *Engine, feeBps uint16) *Config {
	t.Helper()
	cfg, err := engine.InitializeConfig(admin, feeBps, feeVault)
	if err != nil {
		t.Fatalf("initialize config: %v", err)
	}
	return cfg
}

func TestInitializeConfig(t *testing.T) {
	engine, _, emitted := newTestEngine()

	cfg := mustInitialize(t, engine, 250)
	if cfg.Admin != admin || cfg.FeeBasisPoints != 250 || cfg.FeeVault != feeVault {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.CreatedAt != 1_700_000_000 {
		t.Fatalf("creation time not taken from clock: %d", cfg.CreatedAt)
	}
	if len(emitted.types) == 0 || emitted.types[0] != EventTypeConfigInitialized {
		t.Fatalf("initialization event missing: %v", emitted.types)
	}

	if _, err := engine.InitializeConfig(admin, 250, feeVault); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second init: got %v, want ErrAlreadyInitialized", err)
	}
}

func TestInitializeConfigValidation(t *testing.T) {
	engine, _, _ := newTestEngine()

	if _, err := engine.InitializeConfig(admin, MaxFeeBasisPoints+1, feeVault); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("fee 1001: got %v, want ErrFeeTooHigh", err)
	}
	if _, err := engine.InitializeConfig(admin, 0, [20]byte{}); !errors.Is(err, ErrInvalidFeeCollector) {
		t.Fatalf("zero fee vault: got %v, want ErrInvalidFeeCollector", err)
	}
	if _, err := engine.InitializeConfig([20]byte{}, 0, feeVault); err == nil {
		t.Fatal("zero admin accepted")
	}
	// The cap itself is allowed.
	if _, err := engine.InitializeConfig(admin, MaxFeeBasisPoints, feeVault); err != nil {
		t.Fatalf("fee at cap rejected: %v", err)
	}
}

func TestConfigRequiresInitialization(t *testing.T) {
	engine, _, _ := newTestEngine()
	if _, err := engine.Config(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}

func TestAddArbiter(t *testing.T) {
	engine, _, _ := newTestEngine()

	if _, err := engine.AddArbiter(admin, arbiter); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("add before init: got %v, want ErrNotInitialized", err)
	}
	mustInitialize(t, engine, 0)

	if _, err := engine.AddArbiter(outsider, arbiter); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin add: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.AddArbiter(admin, [20]byte{}); !errors.Is(err, ErrInvalidArbiter) {
		t.Fatalf("zero arbiter: got %v, want ErrInvalidArbiter", err)
	}

	record, err := engine.AddArbiter(admin, arbiter)
	if err != nil {
		t.Fatalf("add arbiter: %v", err)
	}
	if !record.Active || record.AddedBy != admin {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.CanResolveDisputes() {
		t.Fatal("active arbiter cannot resolve")
	}
}

func TestRemoveArbiterSoftDeletes(t *testing.T) {
	engine, state, _ := newTestEngine()
	mustInitialize(t, engine, 0)

	if _, err := engine.RemoveArbiter(admin, arbiter); !errors.Is(err, ErrArbiterNotFound) {
		t.Fatalf("remove unknown: got %v, want ErrArbiterNotFound", err)
	}

	if _, err := engine.AddArbiter(admin, arbiter); err != nil {
		t.Fatalf("add arbiter: %v", err)
	}
	removed, err := engine.RemoveArbiter(admin, arbiter)
	if err != nil {
		t.Fatalf("remove arbiter: %v", err)
	}
	if removed.Active {
		t.Fatal("removal must deactivate, not delete")
	}
	if _, ok := state.arbiters[arbiter]; !ok {
		t.Fatal("record deleted instead of deactivated")
	}

	// Re-adding reactivates the same address.
	readded, err := engine.AddArbiter(admin, arbiter)
	if err != nil {
		t.Fatalf("re-add arbiter: %v", err)
	}
	if !readded.Active {
		t.Fatal("re-added arbiter inactive")
	}
}

func TestArbiterLookup(t *testing.T) {
	engine, _, _ := newTestEngine()
	mustInitialize(t, engine, 0)

	if _, found, err := engine.Arbiter(arbiter); err != nil || found {
		t.Fatalf("unknown arbiter lookup: found=%v err=%v", found, err)
	}
	if _, err := engine.AddArbiter(admin, arbiter); err != nil {
		t.Fatalf("add arbiter: %v", err)
	}
	record, found, err := engine.Arbiter(arbiter)
	if err != nil || !found {
		t.Fatalf("lookup after add: found=%v err=%v", found, err)
	}
	if record.Arbiter != arbiter {
		t.Fatalf("unexpected record %+v", record)
	}
}
