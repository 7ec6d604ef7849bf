package core

import (
	"context"
	"errors"
	"time"

	"esimchain/native/bandwidth"
	"esimchain/native/benefits"
	"esimchain/native/bridge"
	"esimchain/native/esim"
	"esimchain/native/market"
	"esimchain/native/proof"
)

// ProofSubmit records a proof for assetID. A zero entropy asks the oracle to
// score the signature before the ledger is locked.
func (n *Node) ProofSubmit(ctx context.Context, caller [20]byte, assetID uint64, signature []byte, dataHash [32]byte, entropy uint32) (*proof.Record, error) {
	if entropy == 0 && n.oracle != nil && len(signature) > 0 {
		verdict, err := n.evaluate(ctx, signature, dataHash)
		if err != nil {
			return nil, err
		}
		if !verdict.Valid {
			return nil, proof.ErrInvalidProof
		}
		entropy = verdict.Entropy
	}
	var record *proof.Record
	err := n.apply(proof.ModuleName, "submit", func(l *ledger) error {
		var err error
		record, err = l.proofs.Submit(caller, assetID, signature, dataHash, entropy)
		return err
	})
	return record, err
}

// ProofRequestVerification opens a verification request for the proof of
// assetID once its timelock has passed.
func (n *Node) ProofRequestVerification(caller [20]byte, assetID uint64) (*proof.Request, error) {
	var req *proof.Request
	err := n.apply(proof.ModuleName, "request_verification", func(l *ledger) error {
		var err error
		req, err = l.proofs.RequestVerification(caller, assetID)
		return err
	})
	return req, err
}

// ProofVerify concludes a verification request. Verifier role only.
func (n *Node) ProofVerify(caller [20]byte, assetID uint64, requestID [32]byte, outcome bool) (*proof.Record, error) {
	var record *proof.Record
	err := n.apply(proof.ModuleName, "verify", func(l *ledger) error {
		var err error
		record, err = l.proofs.Verify(caller, assetID, requestID, outcome)
		return err
	})
	return record, err
}

// Proof returns the proof record of assetID.
func (n *Node) Proof(assetID uint64) (*proof.Record, error) {
	var record *proof.Record
	err := n.view(func(l *ledger) error {
		r, ok, err := l.proofs.Proof(assetID)
		if err != nil {
			return err
		}
		if !ok {
			return proof.ErrProofNotFound
		}
		record = r
		return nil
	})
	return record, err
}

// ProofRequest returns a verification request by id.
func (n *Node) ProofRequest(requestID [32]byte) (*proof.Request, error) {
	var req *proof.Request
	err := n.view(func(l *ledger) error {
		r, ok, err := l.proofs.Request(requestID)
		if err != nil {
			return err
		}
		if !ok {
			return proof.ErrRequestNotFound
		}
		req = r
		return nil
	})
	return req, err
}

// EsimMint issues a new token. Admin role only.
func (n *Node) EsimMint(caller [20]byte, params esim.MintParams) (*esim.Token, error) {
	var token *esim.Token
	err := n.apply(esim.ModuleName, "mint", func(l *ledger) error {
		var err error
		token, err = l.registry.Mint(caller, params)
		return err
	})
	return token, err
}

// EsimUpdateBandwidth changes the bandwidth grant of an active token.
func (n *Node) EsimUpdateBandwidth(caller [20]byte, assetID, bandwidthMB uint64) (*esim.Token, error) {
	var token *esim.Token
	err := n.apply(esim.ModuleName, "update_bandwidth", func(l *ledger) error {
		var err error
		token, err = l.registry.UpdateBandwidth(caller, assetID, bandwidthMB)
		return err
	})
	return token, err
}

// EsimSuspend suspends an active token.
func (n *Node) EsimSuspend(caller [20]byte, assetID uint64) (*esim.Token, error) {
	var token *esim.Token
	err := n.apply(esim.ModuleName, "suspend", func(l *ledger) error {
		var err error
		token, err = l.registry.Suspend(caller, assetID)
		return err
	})
	return token, err
}

// EsimReactivate returns a suspended token to active.
func (n *Node) EsimReactivate(caller [20]byte, assetID uint64) (*esim.Token, error) {
	var token *esim.Token
	err := n.apply(esim.ModuleName, "reactivate", func(l *ledger) error {
		var err error
		token, err = l.registry.Reactivate(caller, assetID)
		return err
	})
	return token, err
}

// EsimExpire persists the Expired status of a token past its expiration.
// Anyone may call it.
func (n *Node) EsimExpire(assetID uint64) (*esim.Token, error) {
	var token *esim.Token
	err := n.apply(esim.ModuleName, "expire", func(l *ledger) error {
		var err error
		token, err = l.registry.Expire(assetID)
		return err
	})
	return token, err
}

// EsimToken returns a token with lazy expiry applied.
func (n *Node) EsimToken(assetID uint64) (*esim.Token, error) {
	var token *esim.Token
	err := n.view(func(l *ledger) error {
		var err error
		token, err = l.registry.Token(assetID)
		return err
	})
	return token, err
}

// OwnerAssets lists the assets held by owner in acquisition order.
func (n *Node) OwnerAssets(owner [20]byte) ([]uint64, error) {
	var ids []uint64
	err := n.view(func(l *ledger) error {
		var err error
		ids, err = l.registry.OwnerAssets(owner)
		return err
	})
	return ids, err
}

// AssetDetails is the composite view of one asset across every module.
// Optional parts are nil when the module holds no record for the asset.
type AssetDetails struct {
	Token    *esim.Token
	Benefits benefits.Benefits
	Proof    *proof.Record
	Usage    *bandwidth.Usage
	Listing  *market.Listing
	History  *market.History
	Lock     *bridge.Lock
}

// EsimDetails gathers the composite view of assetID.
func (n *Node) EsimDetails(assetID uint64) (*AssetDetails, error) {
	out := &AssetDetails{}
	err := n.view(func(l *ledger) error {
		token, err := l.registry.Token(assetID)
		if err != nil {
			return err
		}
		out.Token = token
		if out.Benefits, err = l.benefits.AssetBenefits(assetID); err != nil {
			return err
		}
		if record, ok, err := l.proofs.Proof(assetID); err != nil {
			return err
		} else if ok {
			out.Proof = record
		}
		usage, err := l.meter.Usage(assetID)
		switch {
		case errors.Is(err, bandwidth.ErrAllocationNotFound):
		case err != nil:
			return err
		default:
			out.Usage = usage
		}
		if listing, ok, err := l.market.Listing(assetID); err != nil {
			return err
		} else if ok {
			out.Listing = listing
		}
		if out.History, err = l.market.History(assetID); err != nil {
			return err
		}
		if lock, ok, err := l.bridge.Lock(assetID); err != nil {
			return err
		} else if ok {
			out.Lock = lock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BenefitsCalculate resolves benefits for a theme, rarity and point balance.
func (n *Node) BenefitsCalculate(theme string, rarity uint32, bonusPoints uint64) (benefits.Benefits, error) {
	var out benefits.Benefits
	err := n.view(func(l *ledger) error {
		var err error
		out, err = l.benefits.Calculate(theme, rarity, bonusPoints)
		return err
	})
	return out, err
}

// AssetBenefits resolves the benefits of a minted asset.
func (n *Node) AssetBenefits(assetID uint64) (benefits.Benefits, error) {
	var out benefits.Benefits
	err := n.view(func(l *ledger) error {
		var err error
		out, err = l.benefits.AssetBenefits(assetID)
		return err
	})
	return out, err
}

// ThemeTable returns the registered themes and their benefits.
func (n *Node) ThemeTable() (map[string]benefits.ThemeBenefit, error) {
	var out map[string]benefits.ThemeBenefit
	err := n.view(func(l *ledger) error {
		var err error
		out, err = l.benefits.ThemeTable()
		return err
	})
	return out, err
}

// BenefitsEarn credits bonus points for data used. Admin role only.
func (n *Node) BenefitsEarn(caller [20]byte, assetID, dataUsed uint64) (uint64, error) {
	var earned uint64
	err := n.apply(benefits.ModuleName, "earn", func(l *ledger) error {
		var err error
		earned, err = l.benefits.EarnBonusPoints(caller, assetID, dataUsed)
		return err
	})
	return earned, err
}

// BenefitsRedeem spends bonus points. Owner only.
func (n *Node) BenefitsRedeem(caller [20]byte, assetID, points uint64) (uint64, error) {
	var balance uint64
	err := n.apply(benefits.ModuleName, "redeem", func(l *ledger) error {
		var err error
		balance, err = l.benefits.RedeemBonusPoints(caller, assetID, points)
		return err
	})
	return balance, err
}

// BenefitsUpdateTheme inserts or replaces a theme. Admin role only.
func (n *Node) BenefitsUpdateTheme(caller [20]byte, theme string, benefit benefits.ThemeBenefit) error {
	return n.apply(benefits.ModuleName, "update_theme", func(l *ledger) error {
		return l.benefits.UpdateTheme(caller, theme, benefit)
	})
}

// BandwidthAllocate grants a proof-gated allocation.
func (n *Node) BandwidthAllocate(caller [20]byte, assetID, amount uint64, duration time.Duration, proofID [32]byte) (*bandwidth.Allocation, error) {
	var alloc *bandwidth.Allocation
	err := n.apply(bandwidth.ModuleName, "allocate", func(l *ledger) error {
		var err error
		alloc, err = l.meter.Allocate(caller, assetID, amount, duration, proofID)
		return err
	})
	return alloc, err
}

// BandwidthConsume meters usage against the allocation and hourly cap.
func (n *Node) BandwidthConsume(caller [20]byte, assetID, amount uint64, proofID [32]byte) (*bandwidth.Usage, error) {
	var usage *bandwidth.Usage
	err := n.apply(bandwidth.ModuleName, "consume", func(l *ledger) error {
		var err error
		usage, err = l.meter.Consume(caller, assetID, amount, proofID)
		return err
	})
	return usage, err
}

// BandwidthActivate re-enables an inactive allocation.
func (n *Node) BandwidthActivate(caller [20]byte, assetID uint64, proofID [32]byte) (*bandwidth.Allocation, error) {
	var alloc *bandwidth.Allocation
	err := n.apply(bandwidth.ModuleName, "activate", func(l *ledger) error {
		var err error
		alloc, err = l.meter.Activate(caller, assetID, proofID)
		return err
	})
	return alloc, err
}

// BandwidthDeactivate pauses an allocation.
func (n *Node) BandwidthDeactivate(caller [20]byte, assetID uint64, proofID [32]byte) (*bandwidth.Allocation, error) {
	var alloc *bandwidth.Allocation
	err := n.apply(bandwidth.ModuleName, "deactivate", func(l *ledger) error {
		var err error
		alloc, err = l.meter.Deactivate(caller, assetID, proofID)
		return err
	})
	return alloc, err
}

// BandwidthUsage reports the allocation and current hour usage of assetID.
func (n *Node) BandwidthUsage(assetID uint64) (*bandwidth.Usage, error) {
	var usage *bandwidth.Usage
	err := n.view(func(l *ledger) error {
		var err error
		usage, err = l.meter.Usage(assetID)
		return err
	})
	return usage, err
}
