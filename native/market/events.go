package market

import (
	"encoding/hex"
	"strconv"

	"tokenmart/core/types"
)

const (
	EventTypeListed    = "market.listed"
	EventTypePurchased = "market.purchased"
	EventTypeDelisted  = "market.delisted"
)

// NewListedEvent returns the canonical event payload emitted when an asset is
// placed into escrow and offered for sale.
func NewListedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListed, l, nil)
}

// NewPurchasedEvent returns the canonical event payload emitted when a buyer
// settles a listing.
func NewPurchasedEvent(l *Listing, buyer [20]byte) *types.Event {
	return newListingEvent(EventTypePurchased, l, &buyer)
}

// NewDelistedEvent returns the canonical event payload emitted when the
// seller withdraws an asset from escrow.
func NewDelistedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeDelisted, l, nil)
}

func newListingEvent(eventType string, l *Listing, buyer *[20]byte) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(sanitized.Collection[:])
	attrs["tokenId"] = sanitized.TokenID.String()
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["price"] = sanitized.Price.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	if buyer != nil {
		attrs["buyer"] = hex.EncodeToString((*buyer)[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
