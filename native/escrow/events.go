package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"crosslock/core/types"
)

const (
	EventTypeEscrowDeployed  = "escrow.deployed"
	EventTypeEscrowWithdrawn = "escrow.withdrawn"
	EventTypeEscrowCancelled = "escrow.cancelled"
	EventTypeEscrowRescued   = "escrow.rescued"
)

// NewDeployedEvent returns the canonical payload for a factory deployment,
// including the directory counter the instance was recorded under.
func NewDeployedEvent(inst *Instance, counter uint64) *types.Event {
	evt := newInstanceEvent(EventTypeEscrowDeployed, inst)
	evt.Attributes["counter"] = strconv.FormatUint(counter, 10)
	return evt
}

// NewWithdrawnEvent returns the canonical payload for a successful withdraw,
// naming both the executing caller and the amount recipient.
func NewWithdrawnEvent(inst *Instance, caller, recipient [20]byte) *types.Event {
	evt := newInstanceEvent(EventTypeEscrowWithdrawn, inst)
	evt.Attributes["caller"] = hex.EncodeToString(caller[:])
	evt.Attributes["recipient"] = hex.EncodeToString(recipient[:])
	return evt
}

// NewCancelledEvent returns the canonical payload for a cancellation.
func NewCancelledEvent(inst *Instance, caller, recipient [20]byte) *types.Event {
	evt := newInstanceEvent(EventTypeEscrowCancelled, inst)
	evt.Attributes["caller"] = hex.EncodeToString(caller[:])
	evt.Attributes["recipient"] = hex.EncodeToString(recipient[:])
	return evt
}

// NewRescuedEvent returns the payload for an emergency sweep. The swept asset
// is reported separately because it need not match the escrowed one.
func NewRescuedEvent(inst *Instance, caller [20]byte, asset Asset, amount *big.Int) *types.Event {
	evt := newInstanceEvent(EventTypeEscrowRescued, inst)
	evt.Attributes["caller"] = hex.EncodeToString(caller[:])
	evt.Attributes["rescuedAmount"] = cloneBigInt(amount).String()
	putAssetAttributes(evt.Attributes, "rescued", asset)
	return evt
}

func newInstanceEvent(eventType string, inst *Instance) *types.Event {
	attrs := make(map[string]string)
	if inst == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeInstance(inst)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	im := sanitized.Immutables
	attrs["address"] = hex.EncodeToString(sanitized.Address[:])
	attrs["side"] = sanitized.Side.String()
	attrs["orderHash"] = hex.EncodeToString(im.OrderHash[:])
	attrs["maker"] = hex.EncodeToString(im.Maker[:])
	attrs["taker"] = hex.EncodeToString(im.Taker[:])
	attrs["amount"] = im.Amount.String()
	attrs["safetyDeposit"] = im.SafetyDeposit.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	putAssetAttributes(attrs, "asset", im.Asset)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func putAssetAttributes(attrs map[string]string, prefix string, asset Asset) {
	if asset.IsNative() {
		attrs[prefix] = "native"
		return
	}
	attrs[prefix] = "token"
	attrs[prefix+"Contract"] = hex.EncodeToString(asset.Token.Address[:])
	attrs[prefix+"Id"] = strconv.FormatUint(asset.Token.TokenID, 10)
}
