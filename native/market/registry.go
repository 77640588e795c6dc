package market

import (
	"math/big"
	"sync"
)

// Registry maps (collection, tokenID) keys to active listings. The engine is
// the sole mutator; external readers only see cloned values. Terminal
// lifecycle paths erase the entry entirely so a stale Active flag can never
// be observed.
type Registry struct {
	mu       sync.RWMutex
	listings map[[32]byte]*Listing
}

// NewRegistry returns an empty listing registry.
func NewRegistry() *Registry {
	return &Registry{listings: make(map[[32]byte]*Listing)}
}

// Get returns a copy of the active listing for the asset, if one exists. The
// read is side-effect-free.
func (r *Registry) Get(collection [20]byte, tokenID *big.Int) (*Listing, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.listings[ListingKey(collection, tokenID)]
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

// Len reports the number of active listings.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listings)
}

func (r *Registry) put(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.listings[sanitized.Key()] = sanitized
	r.mu.Unlock()
	return nil
}

func (r *Registry) remove(collection [20]byte, tokenID *big.Int) {
	r.mu.Lock()
	delete(r.listings, ListingKey(collection, tokenID))
	r.mu.Unlock()
}
