package reputation

import (
	"encoding/hex"
	"strconv"

	"custodia/core/types"
)

const (
	// EventTypeReputationUpdated is emitted when a user's counters change,
	// including the zero-valued record written at initialization.
	EventTypeReputationUpdated = "reputation.updated"
)

// NewReputationUpdatedEvent returns the canonical payload carrying both
// counters after a change.
func NewReputationUpdatedEvent(r *Reputation) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
	}
	attrs["user"] = hex.EncodeToString(r.User[:])
	attrs["successfulTrades"] = strconv.FormatUint(r.SuccessfulTrades, 10)
	attrs["failedTrades"] = strconv.FormatUint(r.FailedTrades, 10)
	return &types.Event{Type: EventTypeReputationUpdated, Attributes: attrs}
}
