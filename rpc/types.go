package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"esimchain/core"
	"esimchain/crypto"
	"esimchain/native/bandwidth"
	"esimchain/native/benefits"
	"esimchain/native/bridge"
	"esimchain/native/esim"
	"esimchain/native/fees"
	"esimchain/native/market"
	"esimchain/native/proof"
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type TokenResult struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	Bandwidth   uint64 `json:"bandwidth"`
	ActivatedAt int64  `json:"activatedAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Status      string `json:"status"`
	Theme       string `json:"theme"`
	Rarity      uint32 `json:"rarity"`
	Fingerprint string `json:"fingerprint"`
}

type ProofResult struct {
	ID          string `json:"id"`
	AssetID     uint64 `json:"assetId"`
	Submitter   string `json:"submitter"`
	Signature   string `json:"signature"`
	DataHash    string `json:"dataHash"`
	SubmittedAt int64  `json:"submittedAt"`
	Entropy     uint32 `json:"entropy"`
	Verified    bool   `json:"verified"`
	Concluded   bool   `json:"concluded"`
	Verifier    string `json:"verifier,omitempty"`
	VerifiedAt  int64  `json:"verifiedAt,omitempty"`
}

type RequestResult struct {
	ID        string `json:"id"`
	AssetID   uint64 `json:"assetId"`
	ProofID   string `json:"proofId"`
	Requester string `json:"requester"`
	CreatedAt int64  `json:"createdAt"`
	Processed bool   `json:"processed"`
	Outcome   bool   `json:"outcome"`
}

type AllocationResult struct {
	AssetID   uint64 `json:"assetId"`
	Amount    uint64 `json:"amount"`
	Consumed  uint64 `json:"consumed"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	ProofID   string `json:"proofId"`
	Active    bool   `json:"active"`
}

type UsageResult struct {
	Allocation *AllocationResult `json:"allocation"`
	HourBucket uint64            `json:"hourBucket"`
	HourUsed   uint64            `json:"hourUsed"`
	HourlyCap  uint64            `json:"hourlyCap"`
	Remaining  uint64            `json:"remaining"`
}

type ListingResult struct {
	AssetID          uint64   `json:"assetId"`
	Seller           string   `json:"seller"`
	Price            string   `json:"price"`
	ListedAt         int64    `json:"listedAt"`
	Private          bool     `json:"private"`
	AuthorizedBuyers []string `json:"authorizedBuyers,omitempty"`
}

type HistoryResult struct {
	AssetID        uint64   `json:"assetId"`
	PreviousOwners []string `json:"previousOwners"`
	Prices         []string `json:"prices"`
	TransferCount  uint64   `json:"transferCount"`
}

type SaleResult struct {
	AssetID      uint64 `json:"assetId"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Payment      string `json:"payment"`
	Fee          string `json:"fee"`
	SellerAmount string `json:"sellerAmount"`
	Timestamp    int64  `json:"timestamp"`
}

type TotalsResult struct {
	Wallet string `json:"wallet"`
	Gross  string `json:"gross"`
	Fee    string `json:"fee"`
	Net    string `json:"net"`
	Count  uint64 `json:"count"`
}

type TransactionResult struct {
	Hash           string `json:"hash"`
	AssetID        uint64 `json:"assetId"`
	Source         string `json:"source"`
	TargetRegistry string `json:"targetRegistry"`
	TargetAccount  string `json:"targetAccount"`
	Recipient      string `json:"recipient"`
	InitiatedAt    int64  `json:"initiatedAt"`
	Status         string `json:"status"`
	ClosedAt       int64  `json:"closedAt,omitempty"`
}

type LockResult struct {
	AssetID  uint64 `json:"assetId"`
	Owner    string `json:"owner"`
	TxHash   string `json:"txHash"`
	LockedAt int64  `json:"lockedAt"`
}

type DetailsResult struct {
	Token    TokenResult       `json:"token"`
	Benefits benefits.Benefits `json:"benefits"`
	Proof    *ProofResult      `json:"proof,omitempty"`
	Usage    *UsageResult      `json:"usage,omitempty"`
	Listing  *ListingResult    `json:"listing,omitempty"`
	History  *HistoryResult    `json:"history,omitempty"`
	Lock     *LockResult       `json:"lock,omitempty"`
}

type StatusResult struct {
	Height uint64          `json:"height"`
	Root   string          `json:"root"`
	Paused map[string]bool `json:"paused"`
}

func formatAccount(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.AccountAddress(addr).String()
}

func formatAccounts(addrs [][20]byte) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, formatAccount(addr))
	}
	return out
}

func formatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAccountParam(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAccountList(field string, values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for i, value := range values {
		addr, err := parseAccountParam(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseHexBytes(field, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, nil
	}
	out, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return out, nil
}

func parseHash(field, value string) ([32]byte, error) {
	var out [32]byte
	raw, err := parseHexBytes(field, value)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, fmt.Errorf("%s required", field)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("%s must be 32 bytes", field)
	}
	copy(out[:], raw)
	return out, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s", field)
	}
	return amount, nil
}

func tokenResult(t *esim.Token) TokenResult {
	return TokenResult{
		ID:          t.ID,
		Owner:       formatAccount(t.Owner),
		Bandwidth:   t.Bandwidth,
		ActivatedAt: t.ActivatedAt,
		ExpiresAt:   t.ExpiresAt,
		Status:      t.Status.String(),
		Theme:       t.Theme,
		Rarity:      t.Rarity,
		Fingerprint: formatHash(t.Fingerprint),
	}
}

func proofResult(r *proof.Record) *ProofResult {
	if r == nil {
		return nil
	}
	return &ProofResult{
		ID:          formatHash(r.ID),
		AssetID:     r.AssetID,
		Submitter:   formatAccount(r.Submitter),
		Signature:   "0x" + hex.EncodeToString(r.Signature),
		DataHash:    formatHash(r.DataHash),
		SubmittedAt: r.SubmittedAt,
		Entropy:     r.Entropy,
		Verified:    r.Verified,
		Concluded:   r.Concluded,
		Verifier:    formatAccount(r.Verifier),
		VerifiedAt:  r.VerifiedAt,
	}
}

func requestResult(r *proof.Request) *RequestResult {
	if r == nil {
		return nil
	}
	return &RequestResult{
		ID:        formatHash(r.ID),
		AssetID:   r.AssetID,
		ProofID:   formatHash(r.ProofID),
		Requester: formatAccount(r.Requester),
		CreatedAt: r.CreatedAt,
		Processed: r.Processed,
		Outcome:   r.Outcome,
	}
}

func allocationResult(a *bandwidth.Allocation) *AllocationResult {
	if a == nil {
		return nil
	}
	return &AllocationResult{
		AssetID:   a.AssetID,
		Amount:    a.Amount,
		Consumed:  a.Consumed,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		ProofID:   formatHash(a.ProofID),
		Active:    a.Active,
	}
}

func usageResult(u *bandwidth.Usage) *UsageResult {
	if u == nil {
		return nil
	}
	return &UsageResult{
		Allocation: allocationResult(u.Allocation),
		HourBucket: u.HourBucket,
		HourUsed:   u.HourUsed,
		HourlyCap:  u.HourlyCap,
		Remaining:  u.Remaining,
	}
}

func listingResult(l *market.Listing) *ListingResult {
	if l == nil {
		return nil
	}
	out := &ListingResult{
		AssetID:  l.AssetID,
		Seller:   formatAccount(l.Seller),
		Price:    formatAmount(l.Price),
		ListedAt: l.ListedAt,
		Private:  l.Private,
	}
	if len(l.AuthorizedBuyers) > 0 {
		out.AuthorizedBuyers = formatAccounts(l.AuthorizedBuyers)
	}
	return out
}

func historyResult(h *market.History) *HistoryResult {
	if h == nil {
		return nil
	}
	prices := make([]string, 0, len(h.Prices))
	for _, price := range h.Prices {
		prices = append(prices, formatAmount(price))
	}
	return &HistoryResult{
		AssetID:        h.AssetID,
		PreviousOwners: formatAccounts(h.PreviousOwners),
		Prices:         prices,
		TransferCount:  h.TransferCount,
	}
}

func saleResult(s *market.Sale) SaleResult {
	return SaleResult{
		AssetID:      s.AssetID,
		Seller:       formatAccount(s.Seller),
		Buyer:        formatAccount(s.Buyer),
		Payment:      formatAmount(s.Payment),
		Fee:          formatAmount(s.Fee),
		SellerAmount: formatAmount(s.SellerAmount),
		Timestamp:    s.Timestamp,
	}
}

func totalsResult(t fees.Totals) TotalsResult {
	return TotalsResult{
		Wallet: formatAccount(t.Wallet),
		Gross:  formatAmount(t.Gross),
		Fee:    formatAmount(t.Fee),
		Net:    formatAmount(t.Net),
		Count:  t.Count,
	}
}

func transactionResult(tx *bridge.Transaction) *TransactionResult {
	if tx == nil {
		return nil
	}
	return &TransactionResult{
		Hash:           formatHash(tx.Hash),
		AssetID:        tx.AssetID,
		Source:         formatAccount(tx.Source),
		TargetRegistry: tx.TargetRegistry,
		TargetAccount:  formatAccount(bridge.TargetAccount(tx.TargetRegistry)),
		Recipient:      formatAccount(tx.Recipient),
		InitiatedAt:    tx.InitiatedAt,
		Status:         tx.Status.String(),
		ClosedAt:       tx.ClosedAt,
	}
}

func lockResult(l *bridge.Lock) *LockResult {
	if l == nil {
		return nil
	}
	return &LockResult{
		AssetID:  l.AssetID,
		Owner:    formatAccount(l.Owner),
		TxHash:   formatHash(l.TxHash),
		LockedAt: l.LockedAt,
	}
}

func detailsResult(d *core.AssetDetails) DetailsResult {
	return DetailsResult{
		Token:    tokenResult(d.Token),
		Benefits: d.Benefits,
		Proof:    proofResult(d.Proof),
		Usage:    usageResult(d.Usage),
		Listing:  listingResult(d.Listing),
		History:  historyResult(d.History),
		Lock:     lockResult(d.Lock),
	}
}
