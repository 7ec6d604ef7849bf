package exports

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"esimchain/native/market"
)

type parquetSale struct {
	AssetID      int64  `parquet:"name=asset_id, type=INT64"`
	Seller       string `parquet:"name=seller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer        string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payment      string `parquet:"name=payment, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fee          string `parquet:"name=fee, type=BYTE_ARRAY, convertedtype=UTF8"`
	SellerAmount string `parquet:"name=seller_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	SoldAt       string `parquet:"name=sold_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// SalesParquet writes the supplied sales to path as a SNAPPY-compressed
// Parquet file and returns the SHA-256 checksum of the written file.
func SalesParquet(path string, sales []market.Sale) (string, error) {
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetSale), 1)
	if err != nil {
		file.Close()
		return "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range Rows(sales) {
		if err := pw.Write(&parquetSale{
			AssetID:      int64(row.AssetID),
			Seller:       row.Seller,
			Buyer:        row.Buyer,
			Payment:      row.Payment,
			Fee:          row.Fee,
			SellerAmount: row.SellerAmount,
			SoldAt:       row.SoldAt,
		}); err != nil {
			file.Close()
			return "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return "", fmt.Errorf("exports: parquet finalise: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	checksum := sha256.Sum256(data)
	return hex.EncodeToString(checksum[:]), nil
}
