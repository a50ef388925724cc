package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"custodia/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeFundsReleased   = "escrow.released"
	EventTypeEscrowCancelled = "escrow.cancelled"
	EventTypeRefundIssued    = "escrow.refunded"
	EventTypeDisputeRaised   = "escrow.disputed"
	EventTypeDisputeResolved = "escrow.resolved"
	EventTypeFeesWithdrawn   = "escrow.fees.withdrawn"
)

func baseAttrs(e *Escrow) map[string]string {
	attrs := make(map[string]string)
	if e == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(e.ID[:])
	attrs["buyer"] = hex.EncodeToString(e.Buyer[:])
	attrs["seller"] = hex.EncodeToString(e.Seller[:])
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	}
	attrs["status"] = e.Status.String()
	return attrs
}

// NewCreatedEvent returns the canonical payload for a newly created escrow.
func NewCreatedEvent(e *Escrow) *types.Event {
	attrs := baseAttrs(e)
	if e != nil {
		attrs["timestamp"] = strconv.FormatInt(e.CreatedAt, 10)
	}
	return &types.Event{Type: EventTypeEscrowCreated, Attributes: attrs}
}

// NewReleasedEvent returns the canonical payload for a release of escrowed
// funds to the seller, carrying the fee split.
func NewReleasedEvent(e *Escrow, fee, sellerAmount *big.Int, ts int64) *types.Event {
	attrs := baseAttrs(e)
	if fee != nil {
		attrs["fee"] = fee.String()
	}
	if sellerAmount != nil {
		attrs["sellerAmount"] = sellerAmount.String()
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeFundsReleased, Attributes: attrs}
}

// NewCancelledEvent returns the canonical payload for a buyer cancellation.
func NewCancelledEvent(e *Escrow, ts int64) *types.Event {
	attrs := baseAttrs(e)
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeEscrowCancelled, Attributes: attrs}
}

// NewRefundIssuedEvent returns the canonical payload for a dispute-path
// refund to the buyer.
func NewRefundIssuedEvent(e *Escrow, refund *big.Int, reason string, ts int64) *types.Event {
	attrs := baseAttrs(e)
	if refund != nil {
		attrs["refund"] = refund.String()
	}
	attrs["reason"] = reason
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeRefundIssued, Attributes: attrs}
}

// NewDisputeRaisedEvent returns the canonical payload emitted when a party
// disputes an escrow.
func NewDisputeRaisedEvent(e *Escrow, raisedBy [20]byte, ts int64) *types.Event {
	attrs := baseAttrs(e)
	attrs["raisedBy"] = hex.EncodeToString(raisedBy[:])
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeDisputeRaised, Attributes: attrs}
}

// NewDisputeResolvedEvent returns the canonical payload emitted when an
// arbiter settles a dispute.
func NewDisputeResolvedEvent(e *Escrow, arbiter [20]byte, resolution DisputeResolution, buyerAmount, sellerAmount *big.Int, ts int64) *types.Event {
	attrs := baseAttrs(e)
	attrs["arbiter"] = hex.EncodeToString(arbiter[:])
	attrs["resolution"] = resolution.String()
	if buyerAmount != nil {
		attrs["buyerAmount"] = buyerAmount.String()
	}
	if sellerAmount != nil {
		attrs["sellerAmount"] = sellerAmount.String()
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}

// NewFeesWithdrawnEvent returns the canonical payload for an admin fee
// withdrawal.
func NewFeesWithdrawnEvent(admin, feeVault [20]byte, amount *big.Int, ts int64) *types.Event {
	attrs := make(map[string]string)
	attrs["admin"] = hex.EncodeToString(admin[:])
	attrs["feeVault"] = hex.EncodeToString(feeVault[:])
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	return &types.Event{Type: EventTypeFeesWithdrawn, Attributes: attrs}
}
