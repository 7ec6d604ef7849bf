package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"

	"esimchain/native/market"
)

// SalesCSV builds a CSV export of the supplied sales and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func SalesCSV(sales []market.Sale) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(saleHeader); err != nil {
		return nil, "", err
	}
	for _, row := range Rows(sales) {
		if err := writer.Write(row.record()); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
