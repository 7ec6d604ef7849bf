package core

import (
	"context"
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"esimchain/native/bridge"
	"esimchain/native/fees"
	"esimchain/native/market"
)

// bindingHash ties proof material presented to the oracle to the operation
// it authorises.
func bindingHash(domain string, assetID uint64, parts ...[]byte) [32]byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], assetID)
	chunks := make([][]byte, 0, len(parts)+2)
	chunks = append(chunks, []byte(domain), id[:])
	chunks = append(chunks, parts...)
	return ethcrypto.Keccak256Hash(chunks...)
}

// MarketList opens a public listing.
func (n *Node) MarketList(caller [20]byte, assetID uint64, price *big.Int) (*market.Listing, error) {
	var listing *market.Listing
	err := n.apply(market.ModuleName, "list", func(l *ledger) error {
		var err error
		listing, err = l.market.List(caller, assetID, price)
		return err
	})
	return listing, err
}

// MarketListPrivate opens a listing restricted to buyers. A zero address in
// buyers admits anyone.
func (n *Node) MarketListPrivate(caller [20]byte, assetID uint64, price *big.Int, buyers [][20]byte) (*market.Listing, error) {
	var listing *market.Listing
	err := n.apply(market.ModuleName, "list_private", func(l *ledger) error {
		var err error
		listing, err = l.market.ListPrivate(caller, assetID, price, buyers)
		return err
	})
	return listing, err
}

// MarketUpdatePrice reprices an open listing.
func (n *Node) MarketUpdatePrice(caller [20]byte, assetID uint64, price *big.Int) (*market.Listing, error) {
	var listing *market.Listing
	err := n.apply(market.ModuleName, "update_price", func(l *ledger) error {
		var err error
		listing, err = l.market.UpdatePrice(caller, assetID, price)
		return err
	})
	return listing, err
}

// MarketDelist withdraws an open listing.
func (n *Node) MarketDelist(caller [20]byte, assetID uint64) error {
	return n.apply(market.ModuleName, "delist", func(l *ledger) error {
		return l.market.Delist(caller, assetID)
	})
}

// MarketBuy purchases a public listing.
func (n *Node) MarketBuy(caller [20]byte, assetID uint64, payment *big.Int) (*market.Sale, error) {
	var sale *market.Sale
	err := n.apply(market.ModuleName, "buy", func(l *ledger) error {
		var err error
		sale, err = l.market.Buy(caller, assetID, payment)
		return err
	})
	return sale, err
}

// MarketBuyPrivate purchases a private listing. The buyer's proof is
// evaluated by the oracle before the ledger is locked.
func (n *Node) MarketBuyPrivate(ctx context.Context, caller [20]byte, assetID uint64, payment *big.Int, proofBytes []byte) (*market.Sale, error) {
	if len(proofBytes) == 0 {
		return nil, market.ErrInvalidProof
	}
	verdict, err := n.evaluate(ctx, proofBytes, bindingHash("market/buy-private", assetID, caller[:]))
	if err != nil {
		return nil, err
	}
	var sale *market.Sale
	err = n.apply(market.ModuleName, "buy_private", func(l *ledger) error {
		var err error
		sale, err = l.market.BuyPrivate(caller, assetID, payment, verdict)
		return err
	})
	return sale, err
}

// MarketListing returns the open listing of assetID.
func (n *Node) MarketListing(assetID uint64) (*market.Listing, error) {
	var listing *market.Listing
	err := n.view(func(l *ledger) error {
		found, ok, err := l.market.Listing(assetID)
		if err != nil {
			return err
		}
		if !ok {
			return market.ErrNotListed
		}
		listing = found
		return nil
	})
	return listing, err
}

// MarketHistory returns the trading history of assetID.
func (n *Node) MarketHistory(assetID uint64) (*market.History, error) {
	var history *market.History
	err := n.view(func(l *ledger) error {
		var err error
		history, err = l.market.History(assetID)
		return err
	})
	return history, err
}

// MarketSales pages through settled sales in settlement order, starting at
// sequence from (1-based).
func (n *Node) MarketSales(from, limit uint64) ([]market.Sale, error) {
	var sales []market.Sale
	err := n.view(func(l *ledger) error {
		var err error
		sales, err = l.market.Sales(from, limit)
		return err
	})
	return sales, err
}

// MarketTotals returns the cumulative fee totals of the marketplace.
func (n *Node) MarketTotals() (fees.Totals, error) {
	var totals fees.Totals
	err := n.view(func(l *ledger) error {
		var err error
		totals, err = l.market.Totals()
		return err
	})
	return totals, err
}

// BridgeInitiate locks an asset for transfer to target. The proof is
// evaluated by the oracle before the ledger is locked.
func (n *Node) BridgeInitiate(ctx context.Context, caller [20]byte, assetID uint64, target string, recipient [20]byte, proofBytes []byte) (*bridge.Transaction, error) {
	if len(proofBytes) == 0 {
		return nil, bridge.ErrInvalidProof
	}
	verdict, err := n.evaluate(ctx, proofBytes, bindingHash("bridge/initiate", assetID, []byte(bridge.NormalizeTarget(target))))
	if err != nil {
		return nil, err
	}
	var tx *bridge.Transaction
	err = n.apply(bridge.ModuleName, "initiate", func(l *ledger) error {
		var err error
		tx, err = l.bridge.Initiate(caller, assetID, target, recipient, proofBytes, verdict)
		return err
	})
	return tx, err
}

// BridgeComplete releases a locked asset to its target registry after the
// cooldown, given a fresh high-entropy proof.
func (n *Node) BridgeComplete(ctx context.Context, caller [20]byte, txHash [32]byte, newProof []byte) (*bridge.Transaction, error) {
	if len(newProof) == 0 {
		return nil, bridge.ErrInvalidProof
	}
	verdict, err := n.evaluate(ctx, newProof, bindingHash("bridge/complete", 0, txHash[:]))
	if err != nil {
		return nil, err
	}
	var tx *bridge.Transaction
	err = n.apply(bridge.ModuleName, "complete", func(l *ledger) error {
		var err error
		tx, err = l.bridge.Complete(caller, txHash, newProof, verdict)
		return err
	})
	return tx, err
}

// BridgeEmergencyWithdraw returns a locked asset to originalOwner. Admin role
// only.
func (n *Node) BridgeEmergencyWithdraw(caller [20]byte, assetID uint64, originalOwner [20]byte) (*bridge.Transaction, error) {
	var tx *bridge.Transaction
	err := n.apply(bridge.ModuleName, "emergency_withdraw", func(l *ledger) error {
		var err error
		tx, err = l.bridge.EmergencyWithdraw(caller, assetID, originalOwner)
		return err
	})
	return tx, err
}

// BridgeTransaction returns a bridge transaction by hash.
func (n *Node) BridgeTransaction(txHash [32]byte) (*bridge.Transaction, error) {
	var tx *bridge.Transaction
	err := n.view(func(l *ledger) error {
		found, ok, err := l.bridge.Transaction(txHash)
		if err != nil {
			return err
		}
		if !ok {
			return bridge.ErrTransactionNotFound
		}
		tx = found
		return nil
	})
	return tx, err
}
