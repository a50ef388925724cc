package registry

// MaxFeeBasisPoints caps the protocol fee at 10%.
const MaxFeeBasisPoints uint16 = 1000

// Config is the singleton protocol configuration created once by the admin
// bootstrap operation. It binds the admin identity, the fee rate and the
// protocol-owned fee vault address. It is mutated only by the admin and never
// destroyed.
type Config struct {
	Admin          [20]byte
	FeeBasisPoints uint16
	FeeVault       [20]byte
	CreatedAt      int64
}

// IsAdmin reports whether the supplied address is the configured admin.
func (c *Config) IsAdmin(addr [20]byte) bool {
	if c == nil {
		return false
	}
	return c.Admin == addr
}

// Clone returns a copy of the config so callers can mutate the result without
// affecting the stored instance.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Arbiter records a registered dispute arbiter. Removal flips Active instead
// of deleting the record so resolution history stays attributable.
type Arbiter struct {
	Arbiter [20]byte
	AddedBy [20]byte
	AddedAt int64
	Active  bool
}

// CanResolveDisputes reports whether the arbiter may settle disputes.
func (a *Arbiter) CanResolveDisputes() bool {
	if a == nil {
		return false
	}
	return a.Active
}

// Clone returns a copy of the arbiter record.
func (a *Arbiter) Clone() *Arbiter {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
