package market

import (
	"math/big"

	coreerrors "esimchain/core/errors"
	"esimchain/native/fees"
)

// ModuleName is the pause/metrics label of the marketplace.
const ModuleName = "market"

var (
	ErrInvalidPrice        = coreerrors.Validation("market: invalid price")
	ErrNoBuyers            = coreerrors.Validation("market: authorized buyers required")
	ErrSelfPurchase        = coreerrors.Validation("market: seller cannot buy own listing")
	ErrInvalidProof        = coreerrors.Validation("market: invalid proof")
	ErrAlreadyListed       = coreerrors.Conflict("market: already listed")
	ErrNotListed           = coreerrors.Conflict("market: not listed")
	ErrLocked              = coreerrors.Conflict("market: asset locked by bridge")
	ErrPrivateListing      = coreerrors.Conflict("market: listing is private")
	ErrNotOwner            = coreerrors.Authorization("market: caller is not the owner")
	ErrNotAuthorized       = coreerrors.Authorization("market: buyer not authorized")
	ErrInsufficientPayment = coreerrors.Exhausted("market: insufficient payment")
	ErrInsufficientFunds   = coreerrors.Exhausted("market: insufficient funds")
)

// Config captures marketplace settlement policy.
type Config struct {
	FeeRate           uint32
	Platform          [20]byte
	SuspendedTradable bool
}

// DefaultConfig returns the marketplace defaults.
func DefaultConfig() Config {
	return Config{FeeRate: fees.DefaultMarketRate}
}

// Listing is an open offer to sell an asset. A zero address in
// AuthorizedBuyers admits any buyer.
type Listing struct {
	AssetID          uint64     `json:"assetId"`
	Seller           [20]byte   `json:"seller"`
	Price            *big.Int   `json:"price"`
	ListedAt         int64      `json:"listedAt"`
	Private          bool       `json:"private"`
	AuthorizedBuyers [][20]byte `json:"authorizedBuyers,omitempty"`
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	}
	clone.AuthorizedBuyers = append([][20]byte(nil), l.AuthorizedBuyers...)
	return &clone
}

// Authorizes reports whether buyer may purchase the listing.
func (l *Listing) Authorizes(buyer [20]byte) bool {
	if l == nil {
		return false
	}
	if !l.Private {
		return true
	}
	for _, allowed := range l.AuthorizedBuyers {
		if allowed == ([20]byte{}) || allowed == buyer {
			return true
		}
	}
	return false
}

// History is the trading record of an asset. It outlives individual
// listings.
type History struct {
	AssetID        uint64     `json:"assetId"`
	PreviousOwners [][20]byte `json:"previousOwners"`
	Prices         []*big.Int `json:"prices"`
	TransferCount  uint64     `json:"transferCount"`
}

// Sale is the settlement breakdown of a purchase.
type Sale struct {
	AssetID      uint64   `json:"assetId"`
	Seller       [20]byte `json:"seller"`
	Buyer        [20]byte `json:"buyer"`
	Payment      *big.Int `json:"payment"`
	Fee          *big.Int `json:"fee"`
	SellerAmount *big.Int `json:"sellerAmount"`
	Timestamp    int64    `json:"timestamp"`
}
