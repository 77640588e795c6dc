package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Listing captures a single asset offered for sale while it sits in the
// module's custody. Collection identifies the originating asset contract and
// is treated as an opaque handle; TokenID identifies the asset within it.
// Price is denominated in the smallest unit of the configured payment token.
type Listing struct {
	Collection [20]byte
	TokenID    *big.Int
	Seller     [20]byte
	Price      *big.Int
	Active     bool
	CreatedAt  int64
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.TokenID != nil {
		clone.TokenID = new(big.Int).Set(l.TokenID)
	} else {
		clone.TokenID = big.NewInt(0)
	}
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// Key returns the registry key for the listing's (collection, tokenID) pair.
func (l *Listing) Key() [32]byte {
	if l == nil {
		return [32]byte{}
	}
	return ListingKey(l.Collection, l.TokenID)
}

// ListingKey derives the deterministic registry key for an asset. The keccak
// hash keeps the key fixed-width regardless of token id magnitude.
func ListingKey(collection [20]byte, tokenID *big.Int) [32]byte {
	id := tokenID
	if id == nil {
		id = big.NewInt(0)
	}
	return ethcrypto.Keccak256Hash(collection[:], id.Bytes())
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil numeric fields. The function does not mutate
// the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	if clone.TokenID.Sign() < 0 {
		return nil, fmt.Errorf("market: token id must be non-negative")
	}
	if clone.Price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if !clone.Active {
		return nil, fmt.Errorf("market: inactive listings must not be stored")
	}
	return clone, nil
}
