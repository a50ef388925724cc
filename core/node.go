package core

import (
	"math/big"
	"strconv"
	"sync"

	"custodia/core/events"
	"custodia/core/state"
	"custodia/core/types"
	"custodia/native/escrow"
	"custodia/native/registry"
	"custodia/native/reputation"
	"custodia/observability/metrics"
)

// Node owns the state manager and the native engines and gives every entry
// point the execution guarantees the engines assume: operations run one at a
// time, and each one either commits all of its mutations or none of them.
// Events are buffered per operation and forwarded to the sink only after the
// operation commits, so the audit log never records a reverted mutation.
type Node struct {
	mu         sync.Mutex
	state      *state.Manager
	escrow     *escrow.Engine
	registry   *registry.Engine
	reputation *reputation.Ledger
	sink       events.Emitter
	buffer     *bufferEmitter
}

type bufferEmitter struct {
	pending []events.Event
}

func (b *bufferEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

func (b *bufferEmitter) reset() { b.pending = b.pending[:0] }

// NewNode wires the engines to a fresh state manager. Events are discarded
// until SetEventSink is called.
func NewNode() *Node {
	n := &Node{
		state:      state.NewManager(),
		escrow:     escrow.NewEngine(),
		registry:   registry.NewEngine(),
		reputation: reputation.NewLedger(nil),
		sink:       events.NoopEmitter{},
		buffer:     &bufferEmitter{},
	}
	n.escrow.SetState(n.state)
	n.escrow.SetEmitter(n.buffer)
	n.registry.SetState(n.state)
	n.registry.SetEmitter(n.buffer)
	n.reputation = reputation.NewLedger(n.state)
	n.reputation.SetEmitter(n.buffer)
	return n
}

// SetEventSink configures the downstream audit consumer. Passing nil resets
// the sink to a no-op implementation.
func (n *Node) SetEventSink(sink events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sink == nil {
		n.sink = events.NoopEmitter{}
		return
	}
	n.sink = sink
}

// SetNowFunc overrides the time source across all engines, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.escrow.SetNowFunc(now)
	n.registry.SetNowFunc(now)
}

// SetBalance seeds an account balance, used for genesis funding.
func (n *Node) SetBalance(addr [20]byte, balance *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	defer n.state.Commit()
	return n.state.SetBalance(addr, balance)
}

// BalanceOf reads the current balance of an address.
func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}

// withSnapshot runs fn against a state snapshot, reverting every mutation and
// dropping buffered events when fn fails.
func (n *Node) withSnapshot(op string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := n.state.Snapshot()
	n.buffer.reset()
	if err := fn(); err != nil {
		n.state.RevertToSnapshot(snap)
		n.buffer.reset()
		metrics.Ledger().ObserveOperation(op, "error")
		return err
	}
	n.state.Commit()
	for _, evt := range n.buffer.pending {
		observeFee(evt)
		n.sink.Emit(evt)
	}
	n.buffer.reset()
	metrics.Ledger().ObserveOperation(op, "ok")
	return nil
}

// observeFee picks fee accruals out of the committed event stream.
func observeFee(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil || payload.Type != escrow.EventTypeFundsReleased {
		return
	}
	fee, err := strconv.ParseFloat(payload.Attributes["fee"], 64)
	if err != nil {
		return
	}
	metrics.Ledger().ObserveFee(fee)
}

// InitializeConfig bootstraps the protocol configuration with the derived fee
// vault binding. The caller becomes the admin.
func (n *Node) InitializeConfig(admin [20]byte, feeBasisPoints uint16) (*registry.Config, error) {
	var cfg *registry.Config
	err := n.withSnapshot("initialize_config", func() error {
		var err error
		cfg, err = n.registry.InitializeConfig(admin, feeBasisPoints, escrow.FeeVaultAddress())
		return err
	})
	return cfg, err
}

// Config returns the bootstrap configuration.
func (n *Node) Config() (*registry.Config, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Config()
}

// AddArbiter registers an arbiter. Admin only.
func (n *Node) AddArbiter(caller, arbiter [20]byte) (*registry.Arbiter, error) {
	var record *registry.Arbiter
	err := n.withSnapshot("add_arbiter", func() error {
		var err error
		record, err = n.registry.AddArbiter(caller, arbiter)
		return err
	})
	return record, err
}

// RemoveArbiter deactivates an arbiter. Admin only.
func (n *Node) RemoveArbiter(caller, arbiter [20]byte) (*registry.Arbiter, error) {
	var record *registry.Arbiter
	err := n.withSnapshot("remove_arbiter", func() error {
		var err error
		record, err = n.registry.RemoveArbiter(caller, arbiter)
		return err
	})
	return record, err
}

// Arbiter fetches an arbiter record.
func (n *Node) Arbiter(addr [20]byte) (*registry.Arbiter, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Arbiter(addr)
}

// CreateEscrow custodies amount plus the record deposit from the buyer.
func (n *Node) CreateEscrow(buyer, seller [20]byte, amount *big.Int) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("create_escrow", func() error {
		var err error
		esc, err = n.escrow.Create(buyer, seller, amount)
		return err
	})
	if err == nil {
		metrics.Ledger().IncOpenEscrows()
	}
	return esc, err
}

// Escrow fetches an escrow by identifier.
func (n *Node) Escrow(id [32]byte) (*escrow.Escrow, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.escrow.Get(id)
}

// ReleaseFunds settles the escrow in favour of the seller. Buyer only.
func (n *Node) ReleaseFunds(id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("release_funds", func() error {
		var err error
		esc, err = n.escrow.Release(id, caller)
		return err
	})
	if err == nil {
		observeSettlement(esc)
	}
	return esc, err
}

// CancelEscrow returns the full amount to the buyer. Buyer only.
func (n *Node) CancelEscrow(id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("cancel_escrow", func() error {
		var err error
		esc, err = n.escrow.Cancel(id, caller)
		return err
	})
	if err == nil {
		observeSettlement(esc)
	}
	return esc, err
}

// RaiseDispute flags an active escrow as disputed. Either party may call.
func (n *Node) RaiseDispute(id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("raise_dispute", func() error {
		var err error
		esc, err = n.escrow.Dispute(id, caller)
		return err
	})
	return esc, err
}

// RefundBuyer returns the vault balance minus the record deposit to the
// buyer of a disputed escrow.
func (n *Node) RefundBuyer(id [32]byte, caller [20]byte) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("refund_buyer", func() error {
		var err error
		esc, err = n.escrow.RefundBuyer(id, caller)
		return err
	})
	if err == nil {
		observeSettlement(esc)
	}
	return esc, err
}

// ResolveDispute settles a disputed escrow per the arbiter's outcome.
func (n *Node) ResolveDispute(id [32]byte, caller [20]byte, resolution escrow.DisputeResolution) (*escrow.Escrow, error) {
	var esc *escrow.Escrow
	err := n.withSnapshot("resolve_dispute", func() error {
		var err error
		esc, err = n.escrow.Resolve(id, caller, resolution)
		return err
	})
	if err == nil {
		observeSettlement(esc)
	}
	return esc, err
}

// WithdrawFees moves accumulated platform fees to the admin. Admin only.
func (n *Node) WithdrawFees(caller [20]byte, amount *big.Int) error {
	return n.withSnapshot("withdraw_fees", func() error {
		return n.escrow.WithdrawFees(caller, amount)
	})
}

// InitializeReputation lazily creates the reputation record for a user.
func (n *Node) InitializeReputation(user [20]byte) (*reputation.Reputation, error) {
	var record *reputation.Reputation
	err := n.withSnapshot("initialize_reputation", func() error {
		var err error
		record, err = n.reputation.Initialize(user)
		return err
	})
	return record, err
}

// Reputation fetches the reputation record for a user.
func (n *Node) Reputation(user [20]byte) (*reputation.Reputation, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reputation.Get(user)
}

// UpdateReputation applies an outcome to a user's counters. The authority
// must be the config admin; escrow settlement updates counters internally
// without this entry point.
func (n *Node) UpdateReputation(authority, user [20]byte, outcome reputation.Outcome) (*reputation.Reputation, error) {
	var record *reputation.Reputation
	err := n.withSnapshot("update_reputation", func() error {
		cfg, err := n.registry.Config()
		if err != nil {
			return err
		}
		if !cfg.IsAdmin(authority) {
			return registry.ErrUnauthorized
		}
		record, err = n.reputation.Update(user, outcome)
		return err
	})
	return record, err
}

func observeSettlement(esc *escrow.Escrow) {
	if esc == nil || esc.Amount == nil {
		return
	}
	metrics.Ledger().DecOpenEscrows()
	if esc.Amount.IsUint64() {
		metrics.Ledger().ObserveSettledValue(float64(esc.Amount.Uint64()))
	}
}
