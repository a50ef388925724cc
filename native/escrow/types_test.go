package escrow

import (
	"math/big"
	"testing"
)

func TestDeriveEscrowIDIsDeterministic(t *testing.T) {
	a := newTestAddress(0x11)
	b := newTestAddress(0x22)

	first := DeriveEscrowID(a, b)
	second := DeriveEscrowID(a, b)
	if first != second {
		t.Fatal("identifier derivation is not deterministic")
	}
	if DeriveEscrowID(b, a) == first {
		t.Fatal("identifier must depend on party order")
	}
	if first == ([32]byte{}) {
		t.Fatal("identifier must not be zero")
	}
}

func TestVaultAddressesAreDistinct(t *testing.T) {
	module := ModuleVaultAddress()
	fees := FeeVaultAddress()
	if module == ([20]byte{}) || fees == ([20]byte{}) {
		t.Fatal("vault addresses must be non-zero")
	}
	if module == fees {
		t.Fatal("module vault and fee vault must differ")
	}
}

func TestStatusPredicates(t *testing.T) {
	cases := []struct {
		status     EscrowStatus
		canRelease bool
		canCancel  bool
		finalized  bool
	}{
		{StatusInitialized, false, true, false},
		{StatusActive, true, true, false},
		{StatusCompleted, false, false, true},
		{StatusCancelled, false, false, true},
		{StatusDisputed, false, false, false},
	}
	for _, tc := range cases {
		esc := &Escrow{Status: tc.status}
		if esc.CanRelease() != tc.canRelease {
			t.Errorf("%s: CanRelease = %v", tc.status, esc.CanRelease())
		}
		if esc.CanCancel() != tc.canCancel {
			t.Errorf("%s: CanCancel = %v", tc.status, esc.CanCancel())
		}
		if esc.IsFinalized() != tc.finalized {
			t.Errorf("%s: IsFinalized = %v", tc.status, esc.IsFinalized())
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	esc := &Escrow{
		ID:     DeriveEscrowID(newTestAddress(0x11), newTestAddress(0x22)),
		Buyer:  newTestAddress(0x11),
		Seller: newTestAddress(0x22),
		Amount: big.NewInt(int64(MinEscrowAmount)),
		Status: StatusActive,
	}
	clone := esc.Clone()
	clone.Amount.SetInt64(1)
	clone.Status = StatusCompleted
	if esc.Amount.Int64() != int64(MinEscrowAmount) {
		t.Fatal("clone shares amount with original")
	}
	if esc.Status != StatusActive {
		t.Fatal("clone shares status with original")
	}
}

func TestSanitizeEscrowRejectsMalformedRecords(t *testing.T) {
	valid := &Escrow{
		ID:     DeriveEscrowID(newTestAddress(0x11), newTestAddress(0x22)),
		Buyer:  newTestAddress(0x11),
		Seller: newTestAddress(0x22),
		Amount: big.NewInt(int64(MinEscrowAmount)),
		Status: StatusActive,
	}
	if _, err := SanitizeEscrow(valid); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	bad := valid.Clone()
	bad.Status = EscrowStatus(99)
	if _, err := SanitizeEscrow(bad); err == nil {
		t.Fatal("invalid status accepted")
	}

	if _, err := SanitizeEscrow(nil); err == nil {
		t.Fatal("nil record accepted")
	}
}

func TestParseResolution(t *testing.T) {
	cases := map[string]DisputeResolution{
		"favor_buyer":  ResolveFavorBuyer,
		"FAVOR_SELLER": ResolveFavorSeller,
		" split ":      ResolveSplit,
	}
	for raw, want := range cases {
		got, err := ParseResolution(raw)
		if err != nil || got != want {
			t.Errorf("ParseResolution(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseResolution("coin-flip"); err == nil {
		t.Fatal("unknown resolution accepted")
	}
}
