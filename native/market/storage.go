package market

import (
	"fmt"
	"math/big"

	"esimchain/native/fees"
)

var (
	listingPrefix = []byte("market/listing/")
	historyPrefix = []byte("market/history/")
	salesPrefix   = []byte("market/sale/")
	salesCountKey = []byte("market/sale-count")
	totalsKey     = []byte("market/totals")
)

func listingKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", listingPrefix, assetID))
}

func historyKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", historyPrefix, assetID))
}

func saleKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", salesPrefix, seq))
}

type storedListing struct {
	AssetID          uint64
	Seller           [20]byte
	Price            *big.Int
	ListedAt         uint64
	Private          bool
	AuthorizedBuyers [][20]byte
}

type storedSale struct {
	AssetID      uint64
	Seller       [20]byte
	Buyer        [20]byte
	Payment      *big.Int
	Fee          *big.Int
	SellerAmount *big.Int
	Timestamp    uint64
}

type storedTotals struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
	Count uint64
}

func (e *Engine) loadListing(assetID uint64) (*Listing, bool, error) {
	var stored storedListing
	ok, err := e.state.KVGet(listingKey(assetID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Listing{
		AssetID:          stored.AssetID,
		Seller:           stored.Seller,
		Price:            stored.Price,
		ListedAt:         int64(stored.ListedAt),
		Private:          stored.Private,
		AuthorizedBuyers: stored.AuthorizedBuyers,
	}, true, nil
}

func (e *Engine) storeListing(l *Listing) error {
	if l.ListedAt < 0 {
		return fmt.Errorf("market: negative timestamp")
	}
	return e.state.KVPut(listingKey(l.AssetID), &storedListing{
		AssetID:          l.AssetID,
		Seller:           l.Seller,
		Price:            l.Price,
		ListedAt:         uint64(l.ListedAt),
		Private:          l.Private,
		AuthorizedBuyers: l.AuthorizedBuyers,
	})
}

func (e *Engine) loadHistory(assetID uint64) (*History, error) {
	history := &History{AssetID: assetID}
	if _, err := e.state.KVGet(historyKey(assetID), history); err != nil {
		return nil, err
	}
	history.AssetID = assetID
	return history, nil
}

func (e *Engine) storeHistory(h *History) error {
	return e.state.KVPut(historyKey(h.AssetID), h)
}

func (e *Engine) appendSale(s *Sale) (uint64, error) {
	var count uint64
	if _, err := e.state.KVGet(salesCountKey, &count); err != nil {
		return 0, err
	}
	count++
	if err := e.state.KVPut(saleKey(count), &storedSale{
		AssetID:      s.AssetID,
		Seller:       s.Seller,
		Buyer:        s.Buyer,
		Payment:      s.Payment,
		Fee:          s.Fee,
		SellerAmount: s.SellerAmount,
		Timestamp:    uint64(s.Timestamp),
	}); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(salesCountKey, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Sales returns settled sales with sequence numbers in [from, from+limit).
// Sequence numbers start at 1.
func (e *Engine) Sales(from, limit uint64) ([]Sale, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	var count uint64
	if _, err := e.state.KVGet(salesCountKey, &count); err != nil {
		return nil, err
	}
	var out []Sale
	for seq := from; seq <= count && (limit == 0 || uint64(len(out)) < limit); seq++ {
		var stored storedSale
		ok, err := e.state.KVGet(saleKey(seq), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, Sale{
			AssetID:      stored.AssetID,
			Seller:       stored.Seller,
			Buyer:        stored.Buyer,
			Payment:      stored.Payment,
			Fee:          stored.Fee,
			SellerAmount: stored.SellerAmount,
			Timestamp:    int64(stored.Timestamp),
		})
	}
	return out, nil
}

// Totals returns the aggregated settlement of every sale.
func (e *Engine) Totals() (fees.Totals, error) {
	if err := e.ready(); err != nil {
		return fees.Totals{}, err
	}
	var stored storedTotals
	if _, err := e.state.KVGet(totalsKey, &stored); err != nil {
		return fees.Totals{}, err
	}
	return fees.Totals{
		Domain: fees.DomainMarket,
		Wallet: e.config.Platform,
		Gross:  orZero(stored.Gross),
		Fee:    orZero(stored.Fee),
		Net:    orZero(stored.Net),
		Count:  stored.Count,
	}, nil
}

func (e *Engine) addTotals(gross *big.Int, result fees.ApplyResult) error {
	totals, err := e.Totals()
	if err != nil {
		return err
	}
	totals.Add(gross, result)
	return e.state.KVPut(totalsKey, &storedTotals{Gross: totals.Gross, Fee: totals.Fee, Net: totals.Net, Count: totals.Count})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
