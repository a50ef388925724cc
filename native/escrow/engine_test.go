package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"custodia/core/events"
	"custodia/core/types"
	"custodia/native/registry"
	"custodia/native/reputation"
)

const (
	minAmount = int64(MinEscrowAmount)
	maxAmount = int64(MaxEscrowAmount)
	deposit   = int64(RecordDeposit)
)

type mockState struct {
	escrows     map[[32]byte]*Escrow
	vaults      map[[32]byte]*big.Int
	accounts    map[[20]byte]*types.Account
	config      *registry.Config
	arbiters    map[[20]byte]*registry.Arbiter
	reputations map[[20]byte]*reputation.Reputation
}

func newMockState() *mockState {
	return &mockState{
		escrows:     make(map[[32]byte]*Escrow),
		vaults:      make(map[[32]byte]*big.Int),
		accounts:    make(map[[20]byte]*types.Account),
		arbiters:    make(map[[20]byte]*registry.Arbiter),
		reputations: make(map[[20]byte]*reputation.Reputation),
	}
}

func (m *mockState) EscrowPut(e *Escrow) error {
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	m.escrows[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false
	}
	return esc.Clone(), true
}

func (m *mockState) EscrowCredit(id [32]byte, amt *big.Int) error {
	current, ok := m.vaults[id]
	if !ok {
		current = big.NewInt(0)
	}
	m.vaults[id] = new(big.Int).Add(current, amt)
	return nil
}

func (m *mockState) EscrowDebit(id [32]byte, amt *big.Int) error {
	current, ok := m.vaults[id]
	if !ok || current.Cmp(amt) < 0 {
		return errors.New("vault underflow")
	}
	m.vaults[id] = new(big.Int).Sub(current, amt)
	return nil
}

func (m *mockState) EscrowBalance(id [32]byte) (*big.Int, error) {
	bal, ok := m.vaults[id]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (m *mockState) GetAccount(addr [20]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) ConfigGet() (*registry.Config, bool) {
	if m.config == nil {
		return nil, false
	}
	return m.config.Clone(), true
}

func (m *mockState) ArbiterGet(addr [20]byte) (*registry.Arbiter, bool) {
	record, ok := m.arbiters[addr]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) ReputationGet(user [20]byte) (*reputation.Reputation, bool) {
	record, ok := m.reputations[user]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

func (m *mockState) ReputationPut(record *reputation.Reputation) error {
	m.reputations[record.User] = record.Clone()
	return nil
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[addr]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

func (m *mockState) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

type capturedEvents struct {
	types []string
}

func (c *capturedEvents) Emit(evt events.Event) {
	c.types = append(c.types, evt.EventType())
}

func (c *capturedEvents) contains(eventType string) bool {
	for _, t := range c.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	buyer   = newTestAddress(0x01)
	seller  = newTestAddress(0x02)
	arbiter = newTestAddress(0x03)
	admin   = newTestAddress(0x04)
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

func configureFees(state *mockState, feeBps uint16) {
	state.config = &registry.Config{
		Admin:          admin,
		FeeBasisPoints: feeBps,
		FeeVault:       FeeVaultAddress(),
		CreatedAt:      1_700_000_000,
	}
}

func activateArbiter(state *mockState, addr [20]byte) {
	state.arbiters[addr] = &registry.Arbiter{Arbiter: addr, AddedBy: admin, AddedAt: 1_700_000_000, Active: true}
}

func initReputations(state *mockState, users ...[20]byte) {
	for _, user := range users {
		state.reputations[user] = &reputation.Reputation{User: user}
	}
}

func mustCreate(t *testing.T, engine *Engine, state *mockState, amount int64) *Escrow {
	t.Helper()
	state.fund(buyer, amount+deposit)
	esc, err := engine.Create(buyer, seller, big.NewInt(amount))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return esc
}

func TestCreateValidatesParties(t *testing.T) {
	engine, state, _ := newTestEngine()
	state.fund(buyer, maxAmount)

	cases := []struct {
		name  string
		buyer [20]byte
		sell  [20]byte
	}{
		{"zero buyer", [20]byte{}, seller},
		{"zero seller", buyer, [20]byte{}},
		{"same party", buyer, buyer},
	}
	for _, tc := range cases {
		if _, err := engine.Create(tc.buyer, tc.sell, big.NewInt(minAmount)); !errors.Is(err, ErrInvalidParties) {
			t.Errorf("%s: got %v, want ErrInvalidParties", tc.name, err)
		}
	}
}

func TestCreateEnforcesAmountBounds(t *testing.T) {
	engine, state, _ := newTestEngine()
	state.fund(buyer, 2*maxAmount)

	if _, err := engine.Create(buyer, seller, big.NewInt(minAmount-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("below minimum: got %v, want ErrInvalidAmount", err)
	}
	if _, err := engine.Create(buyer, seller, big.NewInt(maxAmount+1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("above maximum: got %v, want ErrInvalidAmount", err)
	}
	if _, err := engine.Create(buyer, seller, big.NewInt(minAmount)); err != nil {
		t.Fatalf("minimum amount rejected: %v", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	engine, state, _ := newTestEngine()
	mustCreate(t, engine, state, minAmount)
	state.fund(buyer, minAmount+deposit)
	if _, err := engine.Create(buyer, seller, big.NewInt(minAmount)); !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("duplicate create: got %v, want ErrEscrowExists", err)
	}
}

func TestCreateRequiresFunding(t *testing.T) {
	engine, state, _ := newTestEngine()
	// Amount alone is covered but the record deposit is not.
	state.fund(buyer, minAmount)
	if _, err := engine.Create(buyer, seller, big.NewInt(minAmount)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("underfunded create: got %v, want ErrInsufficientFunds", err)
	}
}

func TestCreateCustodiesAmountAndDeposit(t *testing.T) {
	engine, state, emitted := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)

	if got := state.balance(buyer); got.Sign() != 0 {
		t.Fatalf("buyer balance after create = %s, want 0", got)
	}
	vaultBalance, _ := state.EscrowBalance(esc.ID)
	want := big.NewInt(minAmount + deposit)
	if vaultBalance.Cmp(want) != 0 {
		t.Fatalf("vault balance = %s, want %s", vaultBalance, want)
	}
	if esc.Status != StatusActive {
		t.Fatalf("status = %s, want active", esc.Status)
	}
	if esc.DisputeBy != esc.CreatedAt+DisputeWindow || esc.TimeoutAt != esc.CreatedAt+TimeoutPeriod {
		t.Fatalf("deadlines not derived from creation time: %+v", esc)
	}
	if !emitted.contains(EventTypeEscrowCreated) {
		t.Fatal("created event not emitted")
	}
}

func TestReleaseFeeConservation(t *testing.T) {
	for _, feeBps := range []uint16{0, 1, 250, 999, 1000} {
		engine, state, _ := newTestEngine()
		configureFees(state, feeBps)
		esc := mustCreate(t, engine, state, minAmount)

		if _, err := engine.Release(esc.ID, buyer); err != nil {
			t.Fatalf("feeBps=%d release: %v", feeBps, err)
		}

		sellerBalance := state.balance(seller)
		feeBalance := state.balance(FeeVaultAddress())
		total := new(big.Int).Add(sellerBalance, feeBalance)
		if total.Cmp(big.NewInt(minAmount)) != 0 {
			t.Fatalf("feeBps=%d: seller %s + fee %s != amount %d", feeBps, sellerBalance, feeBalance, minAmount)
		}
		wantFee := minAmount * int64(feeBps) / 10_000
		if feeBalance.Cmp(big.NewInt(wantFee)) != 0 {
			t.Fatalf("feeBps=%d: fee = %s, want %d", feeBps, feeBalance, wantFee)
		}
	}
}

func TestReleaseAuthorizationAndFinality(t *testing.T) {
	engine, state, emitted := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)

	if _, err := engine.Release(esc.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller release: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !emitted.contains(EventTypeFundsReleased) {
		t.Fatal("released event not emitted")
	}
	if _, err := engine.Release(esc.ID, buyer); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("double release: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestReleaseUpdatesReputations(t *testing.T) {
	engine, state, _ := newTestEngine()
	initReputations(state, buyer, seller)
	esc := mustCreate(t, engine, state, minAmount)

	if _, err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	for _, user := range [][20]byte{buyer, seller} {
		rec := state.reputations[user]
		if rec.SuccessfulTrades != 1 || rec.FailedTrades != 0 {
			t.Fatalf("reputation for %x = %+v, want one success", user, rec)
		}
	}
}

func TestCancelReturnsAmountKeepsDeposit(t *testing.T) {
	engine, state, emitted := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)

	if _, err := engine.Cancel(esc.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller cancel: got %v, want ErrUnauthorized", err)
	}
	cancelled, err := engine.Cancel(esc.ID, buyer)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := state.balance(buyer); got.Cmp(big.NewInt(minAmount)) != 0 {
		t.Fatalf("buyer refund = %s, want %d", got, minAmount)
	}
	vaultBalance, _ := state.EscrowBalance(esc.ID)
	if vaultBalance.Cmp(big.NewInt(deposit)) != 0 {
		t.Fatalf("retained vault balance = %s, want %d", vaultBalance, deposit)
	}
	if !emitted.contains(EventTypeEscrowCancelled) {
		t.Fatal("cancelled event not emitted")
	}
}

func TestDisputeTransitions(t *testing.T) {
	engine, state, emitted := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)

	if _, err := engine.Dispute(esc.ID, arbiter); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider dispute: got %v, want ErrUnauthorized", err)
	}
	disputed, err := engine.Dispute(esc.ID, seller)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != StatusDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}
	if !emitted.contains(EventTypeDisputeRaised) {
		t.Fatal("dispute event not emitted")
	}

	// Plain cancel and release are blocked once disputed.
	if _, err := engine.Cancel(esc.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel disputed: got %v, want ErrInvalidState", err)
	}
	if _, err := engine.Release(esc.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("release disputed: got %v, want ErrInvalidState", err)
	}
	if _, err := engine.Dispute(esc.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double dispute: got %v, want ErrInvalidState", err)
	}
}

func TestRefundBuyerRequiresDispute(t *testing.T) {
	engine, state, _ := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)

	if _, err := engine.RefundBuyer(esc.ID, buyer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("refund active escrow: got %v, want ErrInvalidState", err)
	}
}

func TestRefundBuyerReturnsAmount(t *testing.T) {
	engine, state, emitted := newTestEngine()
	initReputations(state, buyer, seller)
	esc := mustCreate(t, engine, state, minAmount)
	if _, err := engine.Dispute(esc.ID, buyer); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := engine.RefundBuyer(esc.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("seller refund: got %v, want ErrUnauthorized", err)
	}
	refunded, err := engine.RefundBuyer(esc.ID, buyer)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", refunded.Status)
	}
	if got := state.balance(buyer); got.Cmp(big.NewInt(minAmount)) != 0 {
		t.Fatalf("refund = %s, want %d", got, minAmount)
	}
	for _, user := range [][20]byte{buyer, seller} {
		rec := state.reputations[user]
		if rec.FailedTrades != 1 || rec.SuccessfulTrades != 0 {
			t.Fatalf("reputation for %x = %+v, want one failure", user, rec)
		}
	}
	if !emitted.contains(EventTypeRefundIssued) {
		t.Fatal("refund event not emitted")
	}
}

func TestResolveRequiresActiveArbiter(t *testing.T) {
	engine, state, _ := newTestEngine()
	esc := mustCreate(t, engine, state, minAmount)
	if _, err := engine.Dispute(esc.ID, buyer); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := engine.Resolve(esc.ID, arbiter, ResolveSplit); !errors.Is(err, ErrUnauthorizedArbiter) {
		t.Fatalf("unregistered arbiter: got %v, want ErrUnauthorizedArbiter", err)
	}
	activateArbiter(state, arbiter)
	state.arbiters[arbiter].Active = false
	if _, err := engine.Resolve(esc.ID, arbiter, ResolveSplit); !errors.Is(err, ErrUnauthorizedArbiter) {
		t.Fatalf("inactive arbiter: got %v, want ErrUnauthorizedArbiter", err)
	}
}

func TestResolveOutcomes(t *testing.T) {
	const amount = minAmount + 1 // odd, exercises the split remainder

	cases := []struct {
		name         string
		resolution   DisputeResolution
		buyerAmount  int64
		sellerAmount int64
		buyerWins    bool
		sellerWins   bool
	}{
		{"favor buyer", ResolveFavorBuyer, amount, 0, true, false},
		{"favor seller", ResolveFavorSeller, 0, amount, false, true},
		{"split", ResolveSplit, amount / 2, amount - amount/2, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, state, emitted := newTestEngine()
			initReputations(state, buyer, seller)
			activateArbiter(state, arbiter)
			esc := mustCreate(t, engine, state, amount)
			if _, err := engine.Dispute(esc.ID, buyer); err != nil {
				t.Fatalf("dispute: %v", err)
			}
			resolved, err := engine.Resolve(esc.ID, arbiter, tc.resolution)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if resolved.Status != StatusCompleted {
				t.Fatalf("status = %s, want completed", resolved.Status)
			}
			if got := state.balance(buyer); got.Cmp(big.NewInt(tc.buyerAmount)) != 0 {
				t.Fatalf("buyer payout = %s, want %d", got, tc.buyerAmount)
			}
			if got := state.balance(seller); got.Cmp(big.NewInt(tc.sellerAmount)) != 0 {
				t.Fatalf("seller payout = %s, want %d", got, tc.sellerAmount)
			}
			buyerRep := state.reputations[buyer]
			sellerRep := state.reputations[seller]
			if (buyerRep.SuccessfulTrades == 1) != tc.buyerWins || (sellerRep.SuccessfulTrades == 1) != tc.sellerWins {
				t.Fatalf("reputation mismatch: buyer %+v seller %+v", buyerRep, sellerRep)
			}
			if !emitted.contains(EventTypeDisputeResolved) {
				t.Fatal("resolved event not emitted")
			}
		})
	}
}

func TestResolveRejectsInvalidResolution(t *testing.T) {
	engine, state, _ := newTestEngine()
	activateArbiter(state, arbiter)
	esc := mustCreate(t, engine, state, minAmount)
	if _, err := engine.Dispute(esc.ID, buyer); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := engine.Resolve(esc.ID, arbiter, DisputeResolution(42)); !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("invalid resolution: got %v, want ErrInvalidResolution", err)
	}
}

func TestWithdrawFees(t *testing.T) {
	engine, state, emitted := newTestEngine()

	if err := engine.WithdrawFees(admin, big.NewInt(1)); !errors.Is(err, registry.ErrNotInitialized) {
		t.Fatalf("withdraw without config: got %v, want ErrNotInitialized", err)
	}

	configureFees(state, 1000)
	esc := mustCreate(t, engine, state, minAmount)
	if _, err := engine.Release(esc.ID, buyer); err != nil {
		t.Fatalf("release: %v", err)
	}
	accrued := state.balance(FeeVaultAddress())
	if accrued.Sign() <= 0 {
		t.Fatal("no fees accrued")
	}

	if err := engine.WithdrawFees(buyer, accrued); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin withdrawal: got %v, want ErrUnauthorized", err)
	}
	if err := engine.WithdrawFees(admin, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero withdrawal: got %v, want ErrInvalidAmount", err)
	}
	overdraw := new(big.Int).Add(accrued, big.NewInt(1))
	if err := engine.WithdrawFees(admin, overdraw); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw: got %v, want ErrInsufficientFunds", err)
	}
	if err := engine.WithdrawFees(admin, accrued); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := state.balance(admin); got.Cmp(accrued) != 0 {
		t.Fatalf("admin balance = %s, want %s", got, accrued)
	}
	if !emitted.contains(EventTypeFeesWithdrawn) {
		t.Fatal("withdrawal event not emitted")
	}
}
