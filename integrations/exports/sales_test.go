package exports

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"esimchain/crypto"
	"esimchain/native/market"
)

func sampleSale(asset uint64, payment int64) market.Sale {
	var seller, buyer [20]byte
	seller[19] = 1
	buyer[19] = 2
	fee := payment * 25 / 1000
	return market.Sale{
		AssetID:      asset,
		Seller:       seller,
		Buyer:        buyer,
		Payment:      big.NewInt(payment),
		Fee:          big.NewInt(fee),
		SellerAmount: big.NewInt(payment - fee),
		Timestamp:    1_700_000_000,
	}
}

func TestSalesCSV(t *testing.T) {
	data, checksum, err := SalesCSV([]market.Sale{sampleSale(4, 100)})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.HasPrefix(output, "asset_id,seller,buyer,payment,fee,seller_amount,sold_at\n") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, ",100,2,98,2023-11-14T22:13:20Z") {
		t.Fatalf("unexpected row: %s", output)
	}
	var seller [20]byte
	seller[19] = 1
	if !strings.Contains(output, crypto.AccountAddress(seller).String()) {
		t.Fatalf("seller not bech32 encoded: %s", output)
	}
}

func TestSalesJSONL(t *testing.T) {
	data, checksum, err := SalesJSONL([]market.Sale{sampleSale(1, 1000), sampleSale(2, 40)})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "\"fee\":\"25\"") {
		t.Fatalf("unexpected fee: %s", lines[0])
	}
	if !strings.Contains(lines[1], "\"asset_id\":2") {
		t.Fatalf("unexpected asset: %s", lines[1])
	}
}

func TestSalesChecksumStable(t *testing.T) {
	sales := []market.Sale{sampleSale(9, 500)}
	_, first, err := SalesCSV(sales)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	_, second, _ := SalesCSV(sales)
	if first != second {
		t.Fatalf("checksum not deterministic")
	}
}

func TestSalesParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.parquet")
	checksum, err := SalesParquet(path, []market.Sale{sampleSale(1, 100), sampleSale(2, 200)})
	if err != nil {
		t.Fatalf("parquet: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("file is not parquet framed")
	}
}
