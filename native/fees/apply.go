package fees

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	coreerrors "esimchain/core/errors"
)

// DomainMarket identifies marketplace sale settlement.
const DomainMarket = "market"

// RateDenominator is the divisor applied to a fee rate: a rate of 25 takes
// 2.5% of the gross amount.
const RateDenominator = 1000

// DefaultMarketRate is the marketplace fee rate out of RateDenominator.
const DefaultMarketRate uint32 = 25

var (
	ErrInvalidRate   = coreerrors.Validation("fees: invalid rate")
	ErrInvalidAmount = coreerrors.Validation("fees: invalid amount")
)

// DomainPolicy captures the configuration applied to a specific fee domain.
type DomainPolicy struct {
	Rate        uint32
	RouteWallet [20]byte
}

// Validate checks the rate bounds.
func (p DomainPolicy) Validate() error {
	if p.Rate > RateDenominator {
		return ErrInvalidRate
	}
	return nil
}

// NormalizeDomain canonicalises domain identifiers for consistent lookups.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// ApplyInput captures the context required to evaluate the fee obligation of
// a payment.
type ApplyInput struct {
	Domain string
	Gross  *big.Int
	Config DomainPolicy
}

// ApplyResult splits a gross payment into the fee and the net amount. Fee and
// Net always add up to the gross amount.
type ApplyResult struct {
	Domain      string
	Fee         *big.Int
	Net         *big.Int
	RouteWallet [20]byte
}

// Apply computes fee = floor(gross*rate/1000) and net = gross-fee.
func Apply(input ApplyInput) (ApplyResult, error) {
	result := ApplyResult{Domain: NormalizeDomain(input.Domain), RouteWallet: input.Config.RouteWallet}
	if err := input.Config.Validate(); err != nil {
		return result, err
	}
	gross := input.Gross
	if gross == nil {
		gross = big.NewInt(0)
	}
	if gross.Sign() < 0 {
		return result, ErrInvalidAmount
	}
	amount, overflow := uint256.FromBig(gross)
	if overflow {
		return result, ErrInvalidAmount
	}
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(input.Config.Rate)))
	if overflow {
		return result, ErrInvalidAmount
	}
	fee := new(uint256.Int).Div(product, uint256.NewInt(RateDenominator))
	result.Fee = fee.ToBig()
	result.Net = new(uint256.Int).Sub(amount, fee).ToBig()
	return result, nil
}

// Totals aggregates fee accounting per domain and wallet.
type Totals struct {
	Domain string
	Wallet [20]byte
	Gross  *big.Int
	Fee    *big.Int
	Net    *big.Int
	Count  uint64
}

// Add folds a settled result into the totals.
func (t *Totals) Add(gross *big.Int, result ApplyResult) {
	t.Gross = addBig(t.Gross, gross)
	t.Fee = addBig(t.Fee, result.Fee)
	t.Net = addBig(t.Net, result.Net)
	t.Count++
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	clone := Totals{Domain: t.Domain, Wallet: t.Wallet, Count: t.Count}
	if t.Gross != nil {
		clone.Gross = new(big.Int).Set(t.Gross)
	}
	if t.Fee != nil {
		clone.Fee = new(big.Int).Set(t.Fee)
	}
	if t.Net != nil {
		clone.Net = new(big.Int).Set(t.Net)
	}
	return clone
}

func addBig(a, b *big.Int) *big.Int {
	out := new(big.Int)
	if a != nil {
		out.Set(a)
	}
	if b != nil {
		out.Add(out, b)
	}
	return out
}
