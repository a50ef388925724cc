package state

import (
	"fmt"
	"math/big"

	"custodia/core/types"
	"custodia/native/escrow"
	"custodia/native/registry"
	"custodia/native/reputation"
)

// Manager is the in-memory record store backing the native engines. It
// implements each engine's state interface and provides snapshot/revert
// journaling so a failed operation leaves no partially-applied mutation
// behind. Callers are responsible for serializing access (the node holds one
// lock across each operation).
type Manager struct {
	accounts    map[[20]byte]*types.Account
	escrows     map[[32]byte]*escrow.Escrow
	vaults      map[[32]byte]*big.Int
	config      *registry.Config
	arbiters    map[[20]byte]*registry.Arbiter
	reputations map[[20]byte]*reputation.Reputation

	journal []func()
}

// NewManager returns an empty state manager.
func NewManager() *Manager {
	return &Manager{
		accounts:    make(map[[20]byte]*types.Account),
		escrows:     make(map[[32]byte]*escrow.Escrow),
		vaults:      make(map[[32]byte]*big.Int),
		arbiters:    make(map[[20]byte]*registry.Arbiter),
		reputations: make(map[[20]byte]*reputation.Reputation),
	}
}

// Snapshot returns a revision token for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every mutation recorded after the supplied
// revision, newest first.
func (m *Manager) RevertToSnapshot(rev int) {
	if rev < 0 || rev > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= rev; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:rev]
}

// Commit discards the undo history accumulated so far, making all recorded
// mutations permanent.
func (m *Manager) Commit() {
	m.journal = m.journal[:0]
}

func (m *Manager) record(undo func()) {
	m.journal = append(m.journal, undo)
}

// GetAccount returns a copy of the account, or nil when the address has never
// been funded.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

// PutAccount stores a copy of the account, journaling the previous value.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	prev, existed := m.accounts[addr]
	m.record(func() {
		if existed {
			m.accounts[addr] = prev
		} else {
			delete(m.accounts, addr)
		}
	})
	m.accounts[addr] = account.Clone()
	return nil
}

// SetBalance seeds an account balance, used for genesis funding.
func (m *Manager) SetBalance(addr [20]byte, balance *big.Int) error {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{Balance: big.NewInt(0)}
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	acc.Balance = new(big.Int).Set(balance)
	return m.PutAccount(addr, acc)
}

// EscrowPut validates and stores a copy of the escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	prev, existed := m.escrows[sanitized.ID]
	id := sanitized.ID
	m.record(func() {
		if existed {
			m.escrows[id] = prev
		} else {
			delete(m.escrows, id)
		}
	})
	m.escrows[id] = sanitized
	return nil
}

// EscrowGet returns a copy of the escrow record.
func (m *Manager) EscrowGet(id [32]byte) (*escrow.Escrow, bool) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false
	}
	return esc.Clone(), true
}

// EscrowCredit adds custodied value to the per-escrow vault balance.
func (m *Manager) EscrowCredit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	prev, existed := m.vaults[id]
	m.record(func() {
		if existed {
			m.vaults[id] = prev
		} else {
			delete(m.vaults, id)
		}
	})
	current := big.NewInt(0)
	if existed {
		current = prev
	}
	m.vaults[id] = new(big.Int).Add(current, amt)
	return nil
}

// EscrowDebit removes custodied value from the per-escrow vault balance,
// failing before any mutation when the balance would underflow.
func (m *Manager) EscrowDebit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	current, existed := m.vaults[id]
	if !existed || current.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow %x vault underflow", id)
	}
	prev := current
	m.record(func() { m.vaults[id] = prev })
	m.vaults[id] = new(big.Int).Sub(current, amt)
	return nil
}

// EscrowBalance returns the custodied balance held against the escrow.
func (m *Manager) EscrowBalance(id [32]byte) (*big.Int, error) {
	bal, ok := m.vaults[id]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// ConfigGet returns a copy of the config singleton.
func (m *Manager) ConfigGet() (*registry.Config, bool) {
	if m.config == nil {
		return nil, false
	}
	return m.config.Clone(), true
}

// ConfigPut stores a copy of the config singleton.
func (m *Manager) ConfigPut(cfg *registry.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	prev := m.config
	m.record(func() { m.config = prev })
	m.config = cfg.Clone()
	return nil
}

// ArbiterGet returns a copy of the arbiter record.
func (m *Manager) ArbiterGet(addr [20]byte) (*registry.Arbiter, bool) {
	record, ok := m.arbiters[addr]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// ArbiterPut stores a copy of the arbiter record.
func (m *Manager) ArbiterPut(record *registry.Arbiter) error {
	if record == nil {
		return fmt.Errorf("state: nil arbiter")
	}
	addr := record.Arbiter
	prev, existed := m.arbiters[addr]
	m.record(func() {
		if existed {
			m.arbiters[addr] = prev
		} else {
			delete(m.arbiters, addr)
		}
	})
	m.arbiters[addr] = record.Clone()
	return nil
}

// ReputationGet returns a copy of the reputation record.
func (m *Manager) ReputationGet(user [20]byte) (*reputation.Reputation, bool) {
	record, ok := m.reputations[user]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// ReputationPut stores a copy of the reputation record.
func (m *Manager) ReputationPut(record *reputation.Reputation) error {
	if record == nil {
		return fmt.Errorf("state: nil reputation")
	}
	user := record.User
	prev, existed := m.reputations[user]
	m.record(func() {
		if existed {
			m.reputations[user] = prev
		} else {
			delete(m.reputations, user)
		}
	})
	m.reputations[user] = record.Clone()
	return nil
}
