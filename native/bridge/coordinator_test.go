package bridge

import (
	"errors"
	"testing"
	"time"

	"esimchain/core/state"
	"esimchain/native/esim"
	"esimchain/native/proof"
	"esimchain/storage"
)

type fakeListings map[uint64]bool

func (f fakeListings) IsListed(id uint64) (bool, error) { return f[id], nil }

type fixture struct {
	bridge   *Coordinator
	registry *esim.Registry
	state    *state.Manager
	listings fakeListings
	clock    int64
	admin    [20]byte
	owner    [20]byte
	remote   [20]byte
}

var (
	strong = proof.Result{Valid: true, Entropy: 97}
	weak   = proof.Result{Valid: true, Entropy: 90}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: state.NewManager(storage.NewMemDB()), listings: fakeListings{}, clock: 1_700_000_000}
	f.admin[0], f.owner[0], f.remote[0] = 0xAD, 0x01, 0x44
	if err := f.state.SetRole(RoleAdmin, f.admin, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	now := func() int64 { return f.clock }
	ledger := proof.NewEngine()
	ledger.SetState(f.state)
	f.registry = esim.NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetReplayGuard(ledger)
	f.registry.SetNowFunc(now)
	f.bridge = NewCoordinator()
	f.bridge.SetState(f.state)
	f.bridge.SetRegistry(f.registry)
	f.bridge.SetListings(f.listings)
	f.bridge.SetNowFunc(now)
	return f
}

func (f *fixture) mint(t *testing.T, sig string) *esim.Token {
	t.Helper()
	token, err := f.registry.Mint(f.admin, esim.MintParams{
		Owner:          f.owner,
		Bandwidth:      10,
		Signature:      []byte(sig),
		ValidityPeriod: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestBridgeCompletion(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	if _, err := f.bridge.Initiate(f.remote, token.ID, "registry-b", f.remote, []byte("p"), strong); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := f.bridge.Initiate(f.owner, token.ID, "registry-b", f.remote, []byte("p"), proof.Result{}); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected invalid proof, got %v", err)
	}
	tx, err := f.bridge.Initiate(f.owner, token.ID, "Registry-B", f.remote, []byte("p"), strong)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if tx.TargetRegistry != "registry-b" || tx.Status != StatusPending {
		t.Fatalf("unexpected tx %+v", tx)
	}
	held, _ := f.registry.Token(token.ID)
	if held.Owner != DefaultHoldingAccount() {
		t.Fatalf("custody must move to the holding account")
	}
	if locked, _ := f.bridge.IsLocked(token.ID); !locked {
		t.Fatalf("expected lock")
	}
	if _, err := f.bridge.Initiate(f.owner, token.ID, "registry-b", f.remote, []byte("p"), strong); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected already locked, got %v", err)
	}
	if _, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), strong); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	f.clock += int64(DefaultCooldown / time.Second)
	if _, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), weak); !errors.Is(err, ErrInsufficientEntropy) {
		t.Fatalf("expected insufficient entropy, got %v", err)
	}
	if _, err := f.bridge.Complete(f.owner, [32]byte{1}, []byte("q"), strong); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	done, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), strong)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("unexpected status %s", done.Status)
	}
	released, _ := f.registry.Token(token.ID)
	if released.Owner != TargetAccount("registry-b") {
		t.Fatalf("custody must move to the target registry account")
	}
	if _, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), strong); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if _, err := f.bridge.EmergencyWithdraw(f.admin, token.ID, f.owner); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected not locked, got %v", err)
	}
}

func TestCompletionRejectsAssetExpiredDuringCooldown(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	tx, err := f.bridge.Initiate(f.owner, token.ID, "registry-b", f.remote, []byte("p"), strong)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	f.clock = token.ExpiresAt
	if _, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), strong); !errors.Is(err, esim.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	pending, ok, err := f.bridge.Transaction(tx.Hash)
	if err != nil || !ok {
		t.Fatalf("load tx: %v (found %v)", err, ok)
	}
	if pending.Status != StatusPending {
		t.Fatalf("transaction must stay pending, got %s", pending.Status)
	}
	if _, err := f.bridge.EmergencyWithdraw(f.admin, token.ID, f.owner); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	returned, _ := f.registry.Token(token.ID)
	if returned.Owner != f.owner || returned.Status != esim.StatusExpired {
		t.Fatalf("expected expired asset back with its owner, got %+v", returned)
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "a")
	tx, err := f.bridge.Initiate(f.owner, token.ID, "registry-b", f.remote, []byte("p"), strong)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.bridge.EmergencyWithdraw(f.owner, token.ID, f.owner); err == nil {
		t.Fatalf("expected non-admin withdraw to fail")
	}
	withdrawn, err := f.bridge.EmergencyWithdraw(f.admin, token.ID, f.owner)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Status != StatusWithdrawn {
		t.Fatalf("unexpected status %s", withdrawn.Status)
	}
	back, _ := f.registry.Token(token.ID)
	if back.Owner != f.owner {
		t.Fatalf("custody must return to the original owner")
	}
	f.clock += int64(DefaultCooldown / time.Second)
	if _, err := f.bridge.Complete(f.owner, tx.Hash, []byte("q"), strong); !errors.Is(err, ErrWithdrawn) {
		t.Fatalf("expected withdrawn tx to stay closed, got %v", err)
	}

	// The asset can be bridged again and gets a fresh transaction hash.
	again, err := f.bridge.Initiate(f.owner, token.ID, "registry-b", f.remote, []byte("p"), strong)
	if err != nil {
		t.Fatalf("re-initiate: %v", err)
	}
	if again.Hash == tx.Hash {
		t.Fatalf("expected a fresh transaction hash")
	}
}

func TestInitiatePolicy(t *testing.T) {
	f := newFixture(t)
	listed := f.mint(t, "a")
	f.listings[listed.ID] = true
	if _, err := f.bridge.Initiate(f.owner, listed.ID, "registry-b", f.remote, []byte("p"), strong); !errors.Is(err, ErrListed) {
		t.Fatalf("expected listed asset to be rejected, got %v", err)
	}
	suspended := f.mint(t, "b")
	if _, err := f.registry.Suspend(f.admin, suspended.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.bridge.Initiate(f.owner, suspended.ID, "registry-b", f.remote, []byte("p"), strong); !errors.Is(err, esim.ErrNotActive) {
		t.Fatalf("expected suspended asset to be rejected, got %v", err)
	}
	cfg := DefaultConfig()
	cfg.SuspendedBridgeable = true
	f.bridge.SetConfig(cfg)
	if _, err := f.bridge.Initiate(f.owner, suspended.ID, "registry-b", f.remote, []byte("p"), strong); err != nil {
		t.Fatalf("expected policy to allow suspended bridging: %v", err)
	}
	if _, err := f.bridge.Initiate(f.owner, listed.ID, " ", f.remote, []byte("p"), strong); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected invalid target, got %v", err)
	}
}
