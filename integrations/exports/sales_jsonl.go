package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"esimchain/native/market"
)

// SalesJSONL builds a JSON Lines export of the supplied sales and returns the
// serialised payload alongside a checksum.
func SalesJSONL(sales []market.Sale) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range Rows(sales) {
		payload := map[string]interface{}{
			"asset_id":      row.AssetID,
			"seller":        row.Seller,
			"buyer":         row.Buyer,
			"payment":       row.Payment,
			"fee":           row.Fee,
			"seller_amount": row.SellerAmount,
			"sold_at":       row.SoldAt,
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
