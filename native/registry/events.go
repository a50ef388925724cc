package registry

import (
	"encoding/hex"
	"strconv"

	"custodia/core/types"
)

const (
	EventTypeConfigInitialized = "registry.config.initialized"
	EventTypeArbiterAdded      = "registry.arbiter.added"
	EventTypeArbiterRemoved    = "registry.arbiter.removed"
)

// NewConfigInitializedEvent returns the canonical payload for the one-time
// config bootstrap.
func NewConfigInitializedEvent(cfg *Config) *types.Event {
	attrs := make(map[string]string)
	if cfg == nil {
		return &types.Event{Type: EventTypeConfigInitialized, Attributes: attrs}
	}
	attrs["admin"] = hex.EncodeToString(cfg.Admin[:])
	attrs["feeBasisPoints"] = strconv.FormatUint(uint64(cfg.FeeBasisPoints), 10)
	attrs["feeVault"] = hex.EncodeToString(cfg.FeeVault[:])
	attrs["timestamp"] = strconv.FormatInt(cfg.CreatedAt, 10)
	return &types.Event{Type: EventTypeConfigInitialized, Attributes: attrs}
}

// NewArbiterAddedEvent returns the canonical payload emitted when the admin
// registers an arbiter.
func NewArbiterAddedEvent(a *Arbiter) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: EventTypeArbiterAdded, Attributes: attrs}
	}
	attrs["arbiter"] = hex.EncodeToString(a.Arbiter[:])
	attrs["addedBy"] = hex.EncodeToString(a.AddedBy[:])
	attrs["timestamp"] = strconv.FormatInt(a.AddedAt, 10)
	return &types.Event{Type: EventTypeArbiterAdded, Attributes: attrs}
}

// NewArbiterRemovedEvent returns the canonical payload emitted when the admin
// deactivates an arbiter.
func NewArbiterRemovedEvent(a *Arbiter, removedBy [20]byte) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: EventTypeArbiterRemoved, Attributes: attrs}
	}
	attrs["arbiter"] = hex.EncodeToString(a.Arbiter[:])
	attrs["removedBy"] = hex.EncodeToString(removedBy[:])
	return &types.Event{Type: EventTypeArbiterRemoved, Attributes: attrs}
}
