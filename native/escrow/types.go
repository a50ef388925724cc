package escrow

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// MinEscrowAmount is the smallest amount an escrow may custody, in base
	// units of the single supported asset.
	MinEscrowAmount uint64 = 10_000_000

	// MaxEscrowAmount caps a single escrow.
	MaxEscrowAmount uint64 = 1_000_000_000_000

	// RecordDeposit is the minimum retained balance: it is debited from the
	// buyer at creation on top of the amount and stays in the vault forever
	// so the record remains allocated. The dispute-path refund returns the
	// vault balance minus this deposit.
	RecordDeposit uint64 = 1_000_000

	// DisputeWindow is the period after creation during which a dispute is
	// expected to be raised, recorded on the escrow for observers.
	DisputeWindow int64 = 7 * 24 * 60 * 60

	// TimeoutPeriod is the observer-facing timeout horizon for an escrow.
	TimeoutPeriod int64 = 30 * 24 * 60 * 60
)

// EscrowStatus represents the lifecycle states of an escrow record.
type EscrowStatus uint8

const (
	StatusInitialized EscrowStatus = iota
	StatusActive
	StatusCompleted
	StatusCancelled
	StatusDisputed
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	switch s {
	case StatusInitialized, StatusActive, StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	default:
		return false
	}
}

// String returns the canonical wire label for the status.
func (s EscrowStatus) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Escrow pairs a buyer and seller with custodied value and a lifecycle
// status. The identifier is derived from the participant addresses, so one
// escrow exists per (buyer, seller) pair. Terminal records are retained, not
// deleted, preserving audit history.
type Escrow struct {
	ID        [32]byte
	Buyer     [20]byte
	Seller    [20]byte
	Amount    *big.Int
	Status    EscrowStatus
	CreatedAt int64
	DisputeBy int64
	TimeoutAt int64
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// IsActive reports whether the escrow currently custodies releasable value.
func (e *Escrow) IsActive() bool {
	return e != nil && e.Status == StatusActive
}

// CanRelease reports whether funds may be released to the seller.
func (e *Escrow) CanRelease() bool {
	return e != nil && e.Status == StatusActive
}

// CanCancel reports whether the buyer may still cancel.
func (e *Escrow) CanCancel() bool {
	if e == nil {
		return false
	}
	switch e.Status {
	case StatusInitialized, StatusActive:
		return true
	default:
		return false
	}
}

// IsFinalized reports whether the escrow reached a terminal state.
func (e *Escrow) IsFinalized() bool {
	if e == nil {
		return false
	}
	switch e.Status {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// SanitizeEscrow validates and normalises the supplied escrow record,
// returning a cloned instance with a non-nil amount. The original value is
// not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("escrow: %w", ErrInvalidParties)
	}
	return clone, nil
}

// DeriveEscrowID computes the stable identifier for the (buyer, seller) pair.
func DeriveEscrowID(buyer, seller [20]byte) [32]byte {
	return [32]byte(ethcrypto.Keccak256Hash([]byte("custodia/escrow"), buyer[:], seller[:]))
}

// ModuleVaultAddress returns the protocol-owned custody address holding all
// escrowed value. The address is a pure function of a namespace seed; the
// capability to move value out of it is an authorization check, not a key.
func ModuleVaultAddress() [20]byte {
	return deriveAddress("custodia/escrow-vault")
}

// FeeVaultAddress returns the protocol-owned address accumulating platform
// fees.
func FeeVaultAddress() [20]byte {
	return deriveAddress("custodia/fee-vault")
}

func deriveAddress(seed string) [20]byte {
	digest := ethcrypto.Keccak256([]byte(seed))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// DisputeResolution enumerates the three-way arbitration outcomes.
type DisputeResolution uint8

const (
	ResolveFavorBuyer DisputeResolution = iota
	ResolveFavorSeller
	ResolveSplit
)

// Valid reports whether the resolution value is within the supported range.
func (r DisputeResolution) Valid() bool {
	switch r {
	case ResolveFavorBuyer, ResolveFavorSeller, ResolveSplit:
		return true
	default:
		return false
	}
}

// String returns the canonical wire label for the resolution.
func (r DisputeResolution) String() string {
	switch r {
	case ResolveFavorBuyer:
		return "favor_buyer"
	case ResolveFavorSeller:
		return "favor_seller"
	case ResolveSplit:
		return "split"
	default:
		return fmt.Sprintf("resolution(%d)", uint8(r))
	}
}

// ParseResolution maps a wire label onto a DisputeResolution.
func ParseResolution(raw string) (DisputeResolution, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "favor_buyer", "favorbuyer":
		return ResolveFavorBuyer, nil
	case "favor_seller", "favorseller":
		return ResolveFavorSeller, nil
	case "split":
		return ResolveSplit, nil
	default:
		return 0, fmt.Errorf("escrow: %w: %q", ErrInvalidResolution, raw)
	}
}
