package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"esimchain/crypto"
	"esimchain/integrations/exports"
	"esimchain/native/market"
)

type saleJSON struct {
	AssetID      uint64 `json:"assetId"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Payment      string `json:"payment"`
	Fee          string `json:"fee"`
	SellerAmount string `json:"sellerAmount"`
	Timestamp    int64  `json:"timestamp"`
}

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	format := fs.String("format", "csv", "csv, jsonl or parquet")
	out := fs.String("out", "", "output file")
	from := fs.Uint64("from", 1, "first sale sequence number")
	limit := fs.Uint64("limit", 0, "maximum number of sales (0 exports everything)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	sales, err := fetchSales(*from, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var checksum string
	switch strings.ToLower(*format) {
	case "csv":
		checksum, err = writeExport(*out, sales, exports.SalesCSV)
	case "jsonl":
		checksum, err = writeExport(*out, sales, exports.SalesJSONL)
	case "parquet":
		checksum, err = exports.SalesParquet(*out, sales)
	default:
		err = fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Exported %d sales to %s (sha256 %s)\n", len(sales), *out, checksum)
	return 0
}

func writeExport(path string, sales []market.Sale, build func([]market.Sale) ([]byte, string, error)) (string, error) {
	data, checksum, err := build(sales)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return checksum, nil
}

const salesPage = 500

// fetchSales pages through market_getSales until the node runs out of sales
// or limit is reached.
func fetchSales(from, limit uint64) ([]market.Sale, error) {
	var out []market.Sale
	next := from
	for {
		page := uint64(salesPage)
		if limit > 0 {
			remaining := limit - uint64(len(out))
			if remaining == 0 {
				return out, nil
			}
			if remaining < page {
				page = remaining
			}
		}
		raw, err := callRPC("market_getSales", map[string]uint64{"from": next, "limit": page})
		if err != nil {
			return nil, err
		}
		var batch []saleJSON
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("decode sales: %w", err)
		}
		for _, s := range batch {
			sale, err := s.toSale()
			if err != nil {
				return nil, err
			}
			out = append(out, sale)
		}
		if uint64(len(batch)) < page {
			return out, nil
		}
		next += uint64(len(batch))
	}
}

func (s saleJSON) toSale() (market.Sale, error) {
	seller, err := crypto.ParseAccount(s.Seller)
	if err != nil {
		return market.Sale{}, fmt.Errorf("sale of asset %d: seller: %w", s.AssetID, err)
	}
	buyer, err := crypto.ParseAccount(s.Buyer)
	if err != nil {
		return market.Sale{}, fmt.Errorf("sale of asset %d: buyer: %w", s.AssetID, err)
	}
	sale := market.Sale{AssetID: s.AssetID, Seller: seller, Buyer: buyer, Timestamp: s.Timestamp}
	for _, field := range []struct {
		dst **big.Int
		raw string
	}{{&sale.Payment, s.Payment}, {&sale.Fee, s.Fee}, {&sale.SellerAmount, s.SellerAmount}} {
		v, ok := new(big.Int).SetString(field.raw, 10)
		if !ok {
			return market.Sale{}, fmt.Errorf("sale of asset %d: invalid amount %q", s.AssetID, field.raw)
		}
		*field.dst = v
	}
	return sale, nil
}
