package exports

import (
	"math/big"
	"strconv"
	"time"

	"esimchain/crypto"
	"esimchain/native/market"
)

// SaleRow is the flattened form of a marketplace sale shared by every export
// format.
type SaleRow struct {
	AssetID      uint64
	Seller       string
	Buyer        string
	Payment      string
	Fee          string
	SellerAmount string
	SoldAt       string
}

// Rows flattens sales into export rows. Nil amounts are reported as zero.
func Rows(sales []market.Sale) []SaleRow {
	rows := make([]SaleRow, 0, len(sales))
	for _, sale := range sales {
		rows = append(rows, SaleRow{
			AssetID:      sale.AssetID,
			Seller:       crypto.AccountAddress(sale.Seller).String(),
			Buyer:        crypto.AccountAddress(sale.Buyer).String(),
			Payment:      amountString(sale.Payment),
			Fee:          amountString(sale.Fee),
			SellerAmount: amountString(sale.SellerAmount),
			SoldAt:       time.Unix(sale.Timestamp, 0).UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func (r SaleRow) record() []string {
	return []string{
		strconv.FormatUint(r.AssetID, 10),
		r.Seller,
		r.Buyer,
		r.Payment,
		r.Fee,
		r.SellerAmount,
		r.SoldAt,
	}
}

var saleHeader = []string{"asset_id", "seller", "buyer", "payment", "fee", "seller_amount", "sold_at"}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
