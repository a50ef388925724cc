package escrow

import (
	"fmt"
	"math/big"
	"time"

	"custodia/core/events"
	"custodia/core/types"
	"custodia/native/registry"
	"custodia/native/reputation"
)

// engineState is the slice of ledger state the settlement engine needs. The
// host serializes access per record; atomicity across the accounts touched by
// one operation is provided by the caller's snapshot/revert boundary.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool)
	EscrowCredit(id [32]byte, amt *big.Int) error
	EscrowDebit(id [32]byte, amt *big.Int) error
	EscrowBalance(id [32]byte) (*big.Int, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	ConfigGet() (*registry.Config, bool)
	ArbiterGet(addr [20]byte) (*registry.Arbiter, bool)
	ReputationGet(user [20]byte) (*reputation.Reputation, bool)
	ReputationPut(*reputation.Reputation) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow settlement logic with external state and event
// emitters. Value only ever moves through the transfer primitive, so every
// operation shares the same conservation checks.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter and the derived
// module vault address. Callers can override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   ModuleVaultAddress(),
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
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.state.EscrowPut(esc)
}

// transfer is the single value-movement primitive shared by every operation.
// A debit that would underflow fails with ErrInsufficientFunds before any
// mutation.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrInvalidAmount)
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: balance %s below transfer %s", ErrInsufficientFunds, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func (e *Engine) feeBasisPoints() uint16 {
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return 0
	}
	return cfg.FeeBasisPoints
}

func (e *Engine) feeVault() [20]byte {
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return FeeVaultAddress()
	}
	return cfg.FeeVault
}

// computeFee returns floor(amount * feeBps / 10000) using arbitrary-precision
// arithmetic so the multiplication cannot wrap. The fee never exceeds the
// amount for any feeBps within the config bound.
func computeFee(amount *big.Int, feeBps uint16) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: fee base must be non-negative", ErrInvalidAmount)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	if fee.Cmp(amount) > 0 {
		return nil, fmt.Errorf("%w: fee exceeds amount", ErrOverflow)
	}
	return fee, nil
}

// recordOutcome updates the user's reputation counters when a record exists.
// Reputation records are created lazily elsewhere; an absent record simply
// skips the side effect.
func (e *Engine) recordOutcome(user [20]byte, success bool) error {
	rep, ok := e.state.ReputationGet(user)
	if !ok {
		return nil
	}
	rep = rep.Clone()
	if success {
		rep.IncrementSuccessful()
	} else {
		rep.IncrementFailed()
	}
	if err := e.state.ReputationPut(rep); err != nil {
		return err
	}
	e.emit(reputation.NewReputationUpdatedEvent(rep))
	return nil
}

// Create validates the parties and amount, moves amount plus the record
// deposit from the buyer into the module vault and persists the escrow in the
// Active state.
func (e *Engine) Create(buyer, seller [20]byte, amount *big.Int) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if buyer == ([20]byte{}) || seller == ([20]byte{}) || buyer == seller {
		return nil, ErrInvalidParties
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(new(big.Int).SetUint64(MinEscrowAmount)) < 0 || amt.Cmp(new(big.Int).SetUint64(MaxEscrowAmount)) > 0 {
		return nil, fmt.Errorf("%w: %s outside [%d, %d]", ErrInvalidAmount, amt, MinEscrowAmount, MaxEscrowAmount)
	}
	id := DeriveEscrowID(buyer, seller)
	if _, ok := e.state.EscrowGet(id); ok {
		return nil, ErrEscrowExists
	}
	total := new(big.Int).Add(amt, new(big.Int).SetUint64(RecordDeposit))
	if err := e.transfer(buyer, e.vault, total); err != nil {
		return nil, err
	}
	if err := e.state.EscrowCredit(id, total); err != nil {
		return nil, err
	}
	now := e.now()
	esc := &Escrow{
		ID:        id,
		Buyer:     buyer,
		Seller:    seller,
		Amount:    amt,
		Status:    StatusActive,
		CreatedAt: now,
		DisputeBy: now + DisputeWindow,
		TimeoutAt: now + TimeoutPeriod,
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(esc))
	return esc.Clone(), nil
}

// Get fetches the escrow record for the supplied identifier.
func (e *Engine) Get(id [32]byte) (*Escrow, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

// Release settles the escrow in favour of the seller. The configured fee is
// routed to the fee vault, the remainder to the seller; both reputations are
// credited with a success. Only the buyer may release.
func (e *Engine) Release(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.IsFinalized() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyFinalized, esc.Status)
	}
	if !esc.CanRelease() {
		return nil, fmt.Errorf("%w: cannot release in status %s", ErrInvalidState, esc.Status)
	}
	if caller != esc.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may release", ErrUnauthorized)
	}
	amount := cloneBigInt(esc.Amount)
	fee, err := computeFee(amount, e.feeBasisPoints())
	if err != nil {
		return nil, err
	}
	sellerAmount := new(big.Int).Sub(amount, fee)
	if err := e.transfer(e.vault, esc.Seller, sellerAmount); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := e.transfer(e.vault, e.feeVault(), fee); err != nil {
			return nil, err
		}
	}
	if err := e.state.EscrowDebit(id, amount); err != nil {
		return nil, err
	}
	esc.Status = StatusCompleted
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	if err := e.recordOutcome(esc.Buyer, true); err != nil {
		return nil, err
	}
	if err := e.recordOutcome(esc.Seller, true); err != nil {
		return nil, err
	}
	e.emit(NewReleasedEvent(esc, fee, sellerAmount, e.now()))
	return esc.Clone(), nil
}

// Cancel returns the full amount to the buyer while the escrow is still
// cancellable. Only the buyer may cancel. The record deposit stays in the
// vault to keep the record allocated.
func (e *Engine) Cancel(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.IsFinalized() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadyFinalized, esc.Status)
	}
	if !esc.CanCancel() {
		return nil, fmt.Errorf("%w: cannot cancel in status %s", ErrInvalidState, esc.Status)
	}
	if caller != esc.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may cancel", ErrUnauthorized)
	}
	amount := cloneBigInt(esc.Amount)
	if err := e.transfer(e.vault, esc.Buyer, amount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowDebit(id, amount); err != nil {
		return nil, err
	}
	esc.Status = StatusCancelled
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewCancelledEvent(esc, e.now()))
	return esc.Clone(), nil
}

// Dispute flags an active escrow as disputed. Either party may raise it.
func (e *Engine) Dispute(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return nil, fmt.Errorf("%w: only a party may dispute", ErrUnauthorized)
	}
	if esc.Status != StatusActive {
		if esc.IsFinalized() {
			return nil, fmt.Errorf("%w: status %s", ErrAlreadyFinalized, esc.Status)
		}
		return nil, fmt.Errorf("%w: cannot dispute in status %s", ErrInvalidState, esc.Status)
	}
	esc.Status = StatusDisputed
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewDisputeRaisedEvent(esc, caller, e.now()))
	return esc.Clone(), nil
}

// RefundBuyer returns the vault balance minus the record deposit to the buyer
// of a disputed escrow and cancels it. Both reputations take a failure.
func (e *Engine) RefundBuyer(id [32]byte, caller [20]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusDisputed {
		if esc.IsFinalized() {
			return nil, fmt.Errorf("%w: status %s", ErrAlreadyFinalized, esc.Status)
		}
		return nil, fmt.Errorf("%w: refund requires a disputed escrow", ErrInvalidState)
	}
	if caller != esc.Buyer {
		return nil, fmt.Errorf("%w: only the buyer may take the refund", ErrUnauthorized)
	}
	balance, err := e.state.EscrowBalance(id)
	if err != nil {
		return nil, err
	}
	refund := new(big.Int).Sub(cloneBigInt(balance), new(big.Int).SetUint64(RecordDeposit))
	if refund.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing left above the retained balance", ErrInsufficientFunds)
	}
	if err := e.transfer(e.vault, esc.Buyer, refund); err != nil {
		return nil, err
	}
	if err := e.state.EscrowDebit(id, refund); err != nil {
		return nil, err
	}
	esc.Status = StatusCancelled
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	if err := e.recordOutcome(esc.Buyer, false); err != nil {
		return nil, err
	}
	if err := e.recordOutcome(esc.Seller, false); err != nil {
		return nil, err
	}
	e.emit(NewRefundIssuedEvent(esc, refund, "disputed escrow refund", e.now()))
	return esc.Clone(), nil
}

// Resolve settles a disputed escrow according to the arbiter's outcome. The
// caller must be a registered, active arbiter. Every outcome conserves the
// amount exactly and concludes with status Completed.
func (e *Engine) Resolve(id [32]byte, caller [20]byte, resolution DisputeResolution) (*Escrow, error) {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusDisputed {
		if esc.IsFinalized() {
			return nil, fmt.Errorf("%w: status %s", ErrAlreadyFinalized, esc.Status)
		}
		return nil, fmt.Errorf("%w: resolution requires a disputed escrow", ErrInvalidState)
	}
	arbiter, ok := e.state.ArbiterGet(caller)
	if !ok || !arbiter.CanResolveDisputes() {
		return nil, ErrUnauthorizedArbiter
	}
	amount := cloneBigInt(esc.Amount)
	var buyerAmount, sellerAmount *big.Int
	switch resolution {
	case ResolveFavorBuyer:
		buyerAmount = amount
		sellerAmount = big.NewInt(0)
	case ResolveFavorSeller:
		buyerAmount = big.NewInt(0)
		sellerAmount = amount
	case ResolveSplit:
		// The seller absorbs the odd unit.
		buyerAmount = new(big.Int).Div(amount, big.NewInt(2))
		sellerAmount = new(big.Int).Sub(amount, buyerAmount)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, resolution)
	}
	if err := e.transfer(e.vault, esc.Buyer, buyerAmount); err != nil {
		return nil, err
	}
	if err := e.transfer(e.vault, esc.Seller, sellerAmount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowDebit(id, amount); err != nil {
		return nil, err
	}
	esc.Status = StatusCompleted
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	switch resolution {
	case ResolveFavorBuyer:
		err = firstErr(e.recordOutcome(esc.Buyer, true), e.recordOutcome(esc.Seller, false))
	case ResolveFavorSeller:
		err = firstErr(e.recordOutcome(esc.Buyer, false), e.recordOutcome(esc.Seller, true))
	case ResolveSplit:
		// Shared-responsibility policy: neither party wins a split.
		err = firstErr(e.recordOutcome(esc.Buyer, false), e.recordOutcome(esc.Seller, false))
	}
	if err != nil {
		return nil, err
	}
	e.emit(NewDisputeResolvedEvent(esc, caller, resolution, buyerAmount, sellerAmount, e.now()))
	return esc.Clone(), nil
}

// WithdrawFees moves accumulated platform fees from the fee vault to the
// admin. Admin only.
func (e *Engine) WithdrawFees(caller [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	cfg, ok := e.state.ConfigGet()
	if !ok {
		return registry.ErrNotInitialized
	}
	if !cfg.IsAdmin(caller) {
		return fmt.Errorf("%w: only the admin may withdraw fees", ErrUnauthorized)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	if err := e.transfer(cfg.FeeVault, caller, amt); err != nil {
		return err
	}
	e.emit(NewFeesWithdrawnEvent(caller, cfg.FeeVault, amt, e.now()))
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
