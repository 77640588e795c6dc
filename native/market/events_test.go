package market

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func testListing() *Listing {
	return &Listing{
		Collection: newTestAddress(0xC0),
		TokenID:    big.NewInt(7),
		Seller:     newTestAddress(0x11),
		Price:      big.NewInt(100),
		Active:     true,
		CreatedAt:  42,
	}
}

func TestListedEventAttributes(t *testing.T) {
	listing := testListing()
	evt := NewListedEvent(listing)
	if evt.Type != EventTypeListed {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["collection"] != hex.EncodeToString(listing.Collection[:]) {
		t.Fatalf("unexpected collection attribute")
	}
	if evt.Attributes["tokenId"] != "7" {
		t.Fatalf("unexpected tokenId attribute %q", evt.Attributes["tokenId"])
	}
	if evt.Attributes["seller"] != hex.EncodeToString(listing.Seller[:]) {
		t.Fatalf("unexpected seller attribute")
	}
	if evt.Attributes["price"] != "100" {
		t.Fatalf("unexpected price attribute %q", evt.Attributes["price"])
	}
	if evt.Attributes["createdAt"] != "42" {
		t.Fatalf("unexpected createdAt attribute %q", evt.Attributes["createdAt"])
	}
	if _, ok := evt.Attributes["buyer"]; ok {
		t.Fatalf("listed event must not carry a buyer")
	}
}

func TestPurchasedEventCarriesBuyer(t *testing.T) {
	buyer := newTestAddress(0x22)
	evt := NewPurchasedEvent(testListing(), buyer)
	if evt.Type != EventTypePurchased {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["buyer"] != hex.EncodeToString(buyer[:]) {
		t.Fatalf("unexpected buyer attribute %q", evt.Attributes["buyer"])
	}
}

func TestDelistedEvent(t *testing.T) {
	evt := NewDelistedEvent(testListing())
	if evt.Type != EventTypeDelisted {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["seller"] == "" {
		t.Fatalf("delisted event must carry the seller")
	}
}

func TestEventConstructorsTolerateNil(t *testing.T) {
	if evt := NewListedEvent(nil); evt == nil || len(evt.Attributes) != 0 {
		t.Fatalf("nil listing must produce an empty attribute map")
	}
	if evt := NewDelistedEvent(&Listing{}); len(evt.Attributes) != 0 {
		t.Fatalf("unsanitizable listing must produce an empty attribute map")
	}
}
