package esim

import (
	"encoding/hex"
	"strconv"

	"esimchain/core/types"
)

const (
	EventTypeMinted           = "esim.minted"
	EventTypeBandwidthUpdated = "esim.bandwidth_updated"
	EventTypeSuspended        = "esim.suspended"
	EventTypeReactivated      = "esim.reactivated"
	EventTypeExpired          = "esim.expired"
	EventTypeTransferred      = "esim.transferred"
)

func tokenAttributes(t *Token) map[string]string {
	return map[string]string{
		"assetId":   strconv.FormatUint(t.ID, 10),
		"owner":     "0x" + hex.EncodeToString(t.Owner[:]),
		"status":    t.Status.String(),
		"bandwidth": strconv.FormatUint(t.Bandwidth, 10),
	}
}

func newMintedEvent(t *Token) *types.Event {
	attrs := tokenAttributes(t)
	attrs["theme"] = t.Theme
	attrs["rarity"] = strconv.FormatUint(uint64(t.Rarity), 10)
	attrs["expiresAt"] = strconv.FormatInt(t.ExpiresAt, 10)
	return &types.Event{Type: EventTypeMinted, Attributes: attrs}
}

func newBandwidthUpdatedEvent(t *Token, previous uint64) *types.Event {
	attrs := tokenAttributes(t)
	attrs["previous"] = strconv.FormatUint(previous, 10)
	return &types.Event{Type: EventTypeBandwidthUpdated, Attributes: attrs}
}

func newStatusEvent(eventType string, t *Token) *types.Event {
	return &types.Event{Type: eventType, Attributes: tokenAttributes(t)}
}

func newTransferredEvent(t *Token, from [20]byte) *types.Event {
	attrs := tokenAttributes(t)
	attrs["from"] = "0x" + hex.EncodeToString(from[:])
	return &types.Event{Type: EventTypeTransferred, Attributes: attrs}
}
