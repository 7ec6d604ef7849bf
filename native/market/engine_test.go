package market

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"esimchain/core/state"
	"esimchain/native/esim"
	"esimchain/native/proof"
	"esimchain/storage"
)

type fakeLocks map[uint64]bool

func (f fakeLocks) IsLocked(id uint64) (bool, error) { return f[id], nil }

type fixture struct {
	engine   *Engine
	registry *esim.Registry
	state    *state.Manager
	locks    fakeLocks
	clock    int64
	admin    [20]byte
	seller   [20]byte
	buyer    [20]byte
	platform [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: state.NewManager(storage.NewMemDB()), locks: fakeLocks{}, clock: 1_700_000_000}
	f.admin[0], f.seller[0], f.buyer[0], f.platform[0] = 0xAD, 0x01, 0x02, 0xFE
	if err := f.state.SetRole(esim.RoleAdmin, f.admin, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.state.Credit(f.buyer, big.NewInt(1_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	now := func() int64 { return f.clock }
	ledger := proof.NewEngine()
	ledger.SetState(f.state)
	f.registry = esim.NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetReplayGuard(ledger)
	f.registry.SetNowFunc(now)
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetRegistry(f.registry)
	f.engine.SetLocks(f.locks)
	f.engine.SetSettlement(f.state)
	f.engine.SetNowFunc(now)
	cfg := DefaultConfig()
	cfg.Platform = f.platform
	f.engine.SetConfig(cfg)
	return f
}

func (f *fixture) mint(t *testing.T, sig string) *esim.Token {
	t.Helper()
	token, err := f.registry.Mint(f.admin, esim.MintParams{
		Owner:          f.seller,
		Bandwidth:      10,
		Signature:      []byte(sig),
		ValidityPeriod: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func balance(t *testing.T, s *state.Manager, addr [20]byte) int64 {
	t.Helper()
	bal, err := s.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestBuySplitsPaymentAndMovesOwnership(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, err := f.engine.List(f.buyer, token.ID, big.NewInt(100)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(100)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(100)); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("expected already listed, got %v", err)
	}
	if _, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(99)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected insufficient payment, got %v", err)
	}
	sale, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(100))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if sale.Fee.Int64() != 2 || sale.SellerAmount.Int64() != 98 {
		t.Fatalf("unexpected split fee=%s seller=%s", sale.Fee, sale.SellerAmount)
	}
	if balance(t, f.state, f.seller) != 98 || balance(t, f.state, f.platform) != 2 || balance(t, f.state, f.buyer) != 900 {
		t.Fatalf("unexpected balances")
	}
	owned, _ := f.registry.Token(token.ID)
	if owned.Owner != f.buyer {
		t.Fatalf("ownership not transferred")
	}
	if _, ok, _ := f.engine.Listing(token.ID); ok {
		t.Fatalf("listing must be cleared by the purchase")
	}
	history, err := f.engine.History(token.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.TransferCount != 1 || len(history.PreviousOwners) != 1 || history.PreviousOwners[0] != f.seller {
		t.Fatalf("unexpected history %+v", history)
	}
	totals, _ := f.engine.Totals()
	if totals.Count != 1 || totals.Fee.Int64() != 2 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if _, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(100)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected not listed, got %v", err)
	}
}

func TestUpdatePriceRecordsHistory(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	if _, err := f.engine.UpdatePrice(f.seller, token.ID, big.NewInt(5)); !errors.Is(err, ErrNotListed) {
		t.Fatalf("expected not listed, got %v", err)
	}
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(100)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := f.engine.UpdatePrice(f.seller, token.ID, big.NewInt(150)); err != nil {
		t.Fatalf("update: %v", err)
	}
	history, _ := f.engine.History(token.ID)
	if len(history.Prices) != 1 || history.Prices[0].Int64() != 100 {
		t.Fatalf("unexpected price history %+v", history.Prices)
	}
	if err := f.engine.Delist(f.buyer, token.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.engine.Delist(f.seller, token.ID); err != nil {
		t.Fatalf("delist: %v", err)
	}
}

func TestPrivateListingAuthorization(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	var stranger [20]byte
	stranger[0] = 0x33
	if err := f.state.Credit(stranger, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := f.engine.ListPrivate(f.seller, token.ID, big.NewInt(100), [][20]byte{f.buyer}); err != nil {
		t.Fatalf("list private: %v", err)
	}
	if _, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(100)); !errors.Is(err, ErrPrivateListing) {
		t.Fatalf("expected private listing, got %v", err)
	}
	valid := proof.Result{Valid: true, Entropy: 90}
	if _, err := f.engine.BuyPrivate(stranger, token.ID, big.NewInt(100), valid); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if _, err := f.engine.BuyPrivate(f.buyer, token.ID, big.NewInt(100), proof.Result{}); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected invalid proof, got %v", err)
	}
	if _, err := f.engine.BuyPrivate(f.buyer, token.ID, big.NewInt(100), valid); err != nil {
		t.Fatalf("buy private: %v", err)
	}

	// Zero address admits anyone.
	other := f.mint(t, "b")
	if _, err := f.engine.ListPrivate(f.seller, other.ID, big.NewInt(10), [][20]byte{{}}); err != nil {
		t.Fatalf("list wildcard: %v", err)
	}
	if _, err := f.engine.BuyPrivate(stranger, other.ID, big.NewInt(10), valid); err != nil {
		t.Fatalf("wildcard buy: %v", err)
	}
}

func TestStatusAndLockPolicy(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	if _, err := f.registry.Suspend(f.admin, token.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(100)); !errors.Is(err, esim.ErrNotActive) {
		t.Fatalf("expected suspended token to be untradable, got %v", err)
	}
	cfg := DefaultConfig()
	cfg.Platform = f.platform
	cfg.SuspendedTradable = true
	f.engine.SetConfig(cfg)
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(100)); err != nil {
		t.Fatalf("expected policy to allow suspended listing: %v", err)
	}
	f.locks[token.ID] = true
	if _, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(100)); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	f.locks[token.ID] = false

	expiring := f.mint(t, "b")
	f.clock = expiring.ExpiresAt
	if _, err := f.engine.List(f.seller, expiring.ID, big.NewInt(100)); !errors.Is(err, esim.ErrExpired) {
		t.Fatalf("expected expired token to be untradable, got %v", err)
	}
}

func TestBuyRequiresFunds(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	if _, err := f.engine.List(f.seller, token.ID, big.NewInt(5_000)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := f.engine.Buy(f.buyer, token.ID, big.NewInt(5_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	owned, _ := f.registry.Token(token.ID)
	if owned.Owner != f.seller {
		t.Fatalf("rejected purchase must not move ownership")
	}
}
