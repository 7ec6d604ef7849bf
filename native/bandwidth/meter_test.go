package bandwidth

import (
	"errors"
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
	meter    *Meter
	proofs   *proof.Engine
	registry *esim.Registry
	state    *state.Manager
	locks    fakeLocks
	clock    int64
	admin    [20]byte
	owner    [20]byte
	verifier [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: state.NewManager(storage.NewMemDB()), locks: fakeLocks{}, clock: 1_700_000_000}
	f.admin[0], f.owner[0], f.verifier[0] = 0xAD, 0x01, 0x0F
	if err := f.state.SetRole(RoleAdmin, f.admin, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.state.SetRole(proof.RoleVerifier, f.verifier, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	now := func() int64 { return f.clock }
	f.proofs = proof.NewEngine()
	f.proofs.SetState(f.state)
	f.proofs.SetNowFunc(now)
	f.registry = esim.NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetReplayGuard(f.proofs)
	f.registry.SetNowFunc(now)
	f.meter = NewMeter()
	f.meter.SetState(f.state)
	f.meter.SetProofs(f.proofs)
	f.meter.SetRegistry(f.registry)
	f.meter.SetLocks(f.locks)
	f.meter.SetNowFunc(now)
	return f
}

// mintVerified mints a token and drives its proof through verification.
func (f *fixture) mintVerified(t *testing.T, validity time.Duration) (*esim.Token, [32]byte) {
	t.Helper()
	token, err := f.registry.Mint(f.admin, esim.MintParams{
		Owner:          f.owner,
		Bandwidth:      100,
		Signature:      []byte{byte(f.clock), 0xff},
		ValidityPeriod: validity,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	record, err := f.proofs.Submit(f.owner, token.ID, []byte{0xff, 0xff}, [32]byte{1}, 95)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	f.clock += int64(proof.DefaultVerificationTimelock / time.Second)
	req, err := f.proofs.RequestVerification(f.owner, token.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.proofs.Verify(f.verifier, token.ID, req.ID, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	return token, record.ID
}

func TestHourlyRateLimit(t *testing.T) {
	f := newFixture(t)
	token, proofID := f.mintVerified(t, 30*24*time.Hour)
	if _, err := f.meter.Allocate(f.owner, token.ID, 2400, 24*time.Hour, proofID); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := f.meter.Consume(f.owner, token.ID, 101, proofID); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit for 101, got %v", err)
	}
	usage, err := f.meter.Consume(f.owner, token.ID, 100, proofID)
	if err != nil {
		t.Fatalf("consume 100: %v", err)
	}
	if usage.HourUsed != 100 || usage.HourlyCap != 100 || usage.Remaining != 2300 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected hour to be exhausted, got %v", err)
	}
	f.clock += HourSeconds
	if _, err := f.meter.Consume(f.admin, token.ID, 100, proofID); err != nil {
		t.Fatalf("consume next hour: %v", err)
	}
	snapshot, err := f.meter.Usage(token.ID)
	if err != nil || snapshot.Allocation.Consumed != 200 || snapshot.HourUsed != 100 {
		t.Fatalf("unexpected snapshot %+v (%v)", snapshot, err)
	}
}

func TestAllocationPreconditions(t *testing.T) {
	f := newFixture(t)
	token, proofID := f.mintVerified(t, 30*24*time.Hour)
	if _, err := f.meter.Allocate(f.owner, token.ID, 0, time.Hour, proofID); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.meter.Allocate(f.owner, token.ID, 10, 0, proofID); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	if _, err := f.meter.Allocate(f.owner, token.ID, 48, time.Hour, [32]byte{9}); !errors.Is(err, ErrUnverifiedProof) {
		t.Fatalf("expected unverified proof, got %v", err)
	}
	var stranger [20]byte
	stranger[0] = 0x77
	if _, err := f.meter.Allocate(stranger, token.ID, 48, time.Hour, proofID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, ErrAllocationInactive) {
		t.Fatalf("expected inactive without allocation, got %v", err)
	}
	if _, err := f.meter.Allocate(f.owner, token.ID, 48, time.Hour, proofID); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := f.meter.Allocate(f.owner, token.ID, 48, time.Hour, proofID); !errors.Is(err, ErrAllocationActive) {
		t.Fatalf("expected allocation active, got %v", err)
	}
	if _, err := f.meter.Consume(f.owner, token.ID, 49, proofID); !errors.Is(err, ErrExceedsAllocation) {
		t.Fatalf("expected exceeds allocation, got %v", err)
	}
	if _, err := f.meter.Activate(f.owner, token.ID, proofID); !errors.Is(err, ErrAllocationActive) {
		t.Fatalf("expected already active, got %v", err)
	}
	if _, err := f.meter.Deactivate(f.owner, token.ID, proofID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, ErrAllocationInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
	if _, err := f.meter.Activate(f.owner, token.ID, proofID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.locks[token.ID] = true
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	f.locks[token.ID] = false
	f.clock += 2 * HourSeconds
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, ErrAllocationExpired) {
		t.Fatalf("expected allocation expired, got %v", err)
	}
	if _, err := f.meter.Deactivate(f.owner, token.ID, proofID); err != nil {
		t.Fatalf("deactivate after end: %v", err)
	}
	if _, err := f.meter.Activate(f.owner, token.ID, proofID); !errors.Is(err, ErrAllocationExpired) {
		t.Fatalf("expected activation past end to fail, got %v", err)
	}
	if _, err := f.meter.Allocate(f.owner, token.ID, 48, time.Hour, proofID); err != nil {
		t.Fatalf("reallocate after end: %v", err)
	}
}

func TestExpiredTokenCannotConsume(t *testing.T) {
	f := newFixture(t)
	token, proofID := f.mintVerified(t, 24*time.Hour)
	if _, err := f.meter.Allocate(f.owner, token.ID, 2400, 48*time.Hour, proofID); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	f.clock = token.ExpiresAt
	if _, err := f.meter.Consume(f.owner, token.ID, 1, proofID); !errors.Is(err, esim.ErrExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}
