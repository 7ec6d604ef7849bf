package core

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coreerrors "esimchain/core/errors"
	"esimchain/core/events"
	"esimchain/native/bandwidth"
	"esimchain/native/bridge"
	"esimchain/native/common"
	"esimchain/native/esim"
	"esimchain/native/market"
	"esimchain/native/proof"
	"esimchain/storage"
)

type fakeOracle struct {
	verdict proof.Result
	err     error
	calls   int
}

func (f *fakeOracle) Evaluate(ctx context.Context, signature []byte, dataHash [32]byte) (proof.Result, error) {
	f.calls++
	return f.verdict, f.err
}

type recordingSink struct {
	types []string
}

func (r *recordingSink) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func (r *recordingSink) reset() { r.types = nil }

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

type harness struct {
	t        *testing.T
	db       storage.Database
	node     *Node
	clock    time.Time
	oracle   *fakeOracle
	sink     *recordingSink
	admin    [20]byte
	verifier [20]byte
	alice    [20]byte
	bob      [20]byte
	platform [20]byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		db:       storage.NewMemDB(),
		clock:    time.Unix(1_700_000_000, 0),
		oracle:   &fakeOracle{verdict: proof.Result{Valid: true, Entropy: 97}},
		sink:     &recordingSink{},
		admin:    addr(1),
		verifier: addr(2),
		alice:    addr(3),
		bob:      addr(4),
		platform: addr(9),
	}
	h.node = h.open()
	return h
}

func (h *harness) open() *Node {
	h.t.Helper()
	cfg := DefaultConfig()
	cfg.Admins = [][20]byte{h.admin}
	cfg.Verifiers = [][20]byte{h.verifier}
	cfg.Market.FeeRate = 25
	cfg.Market.Platform = h.platform
	node, err := NewNode(h.db, cfg,
		WithOracle(h.oracle),
		WithEmitter(h.sink),
		WithClock(func() time.Time { return h.clock }),
	)
	require.NoError(h.t, err)
	return node
}

func (h *harness) advance(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) mint(owner [20]byte, sig string) *esim.Token {
	h.t.Helper()
	token, err := h.node.EsimMint(h.admin, esim.MintParams{
		Owner:          owner,
		Bandwidth:      1000,
		Signature:      []byte(sig),
		Theme:          "quantum",
		Rarity:         960,
		ValidityPeriod: 30 * 24 * time.Hour,
	})
	require.NoError(h.t, err)
	return token
}

func (h *harness) verifyProof(owner [20]byte, assetID uint64) [32]byte {
	h.t.Helper()
	record, err := h.node.ProofSubmit(context.Background(), owner, assetID, []byte("proof-material"), [32]byte{7}, 90)
	require.NoError(h.t, err)
	h.advance(proof.DefaultVerificationTimelock)
	req, err := h.node.ProofRequestVerification(owner, assetID)
	require.NoError(h.t, err)
	_, err = h.node.ProofVerify(h.verifier, assetID, req.ID, true)
	require.NoError(h.t, err)
	return record.ID
}

func TestNodeAssetLifecycle(t *testing.T) {
	h := newHarness(t)
	token := h.mint(h.alice, "sig-1")
	require.Equal(t, uint64(1), token.ID)

	proofID := h.verifyProof(h.alice, token.ID)

	_, err := h.node.BandwidthAllocate(h.alice, token.ID, 2400, 24*time.Hour, proofID)
	require.NoError(t, err)
	usage, err := h.node.BandwidthConsume(h.alice, token.ID, 100, proofID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), usage.HourUsed)
	_, err = h.node.BandwidthConsume(h.alice, token.ID, 1, proofID)
	require.ErrorIs(t, err, bandwidth.ErrRateLimitExceeded)

	_, err = h.node.MarketList(h.alice, token.ID, big.NewInt(1000))
	require.NoError(t, err)
	_, err = h.node.Deposit(h.admin, h.bob, big.NewInt(5000))
	require.NoError(t, err)

	h.sink.reset()
	sale, err := h.node.MarketBuy(h.bob, token.ID, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, int64(25), sale.Fee.Int64())
	require.Equal(t, int64(975), sale.SellerAmount.Int64())
	require.Equal(t, []string{esim.EventTypeTransferred, market.EventTypeSold}, h.sink.types)

	for account, want := range map[[20]byte]int64{h.alice: 975, h.bob: 4000, h.platform: 25} {
		balance, err := h.node.Balance(account)
		require.NoError(t, err)
		require.Equal(t, want, balance.Int64())
	}

	details, err := h.node.EsimDetails(token.ID)
	require.NoError(t, err)
	require.Equal(t, h.bob, details.Token.Owner)
	require.Nil(t, details.Listing)
	require.Nil(t, details.Lock)
	require.NotNil(t, details.Proof)
	require.NotNil(t, details.Usage)
	require.Equal(t, uint64(1), details.History.TransferCount)
	require.Equal(t, uint64(250), details.Benefits.SpeedMultiplier)

	bobAssets, err := h.node.OwnerAssets(h.bob)
	require.NoError(t, err)
	require.Equal(t, []uint64{token.ID}, bobAssets)
	aliceAssets, err := h.node.OwnerAssets(h.alice)
	require.NoError(t, err)
	require.Empty(t, aliceAssets)

	sales, err := h.node.MarketSales(1, 10)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	totals, err := h.node.MarketTotals()
	require.NoError(t, err)
	require.Equal(t, int64(25), totals.Fee.Int64())
}

func TestNodeRejectedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	before, err := h.node.Status()
	require.NoError(t, err)
	h.sink.reset()

	_, err = h.node.EsimMint(h.admin, esim.MintParams{
		Owner:          h.alice,
		Bandwidth:      0,
		Signature:      []byte("sig"),
		ValidityPeriod: 48 * time.Hour,
	})
	require.ErrorIs(t, err, esim.ErrInvalidBandwidth)
	require.Equal(t, coreerrors.ClassValidation, coreerrors.Classify(err))

	_, err = h.node.EsimMint(h.alice, esim.MintParams{
		Owner:          h.alice,
		Bandwidth:      10,
		Signature:      []byte("sig"),
		ValidityPeriod: 48 * time.Hour,
	})
	require.ErrorIs(t, err, common.ErrCapabilityMissing)

	after, err := h.node.Status()
	require.NoError(t, err)
	require.Equal(t, before.Height, after.Height)
	require.Equal(t, before.Root, after.Root)
	require.Empty(t, h.sink.types)

	_, err = h.node.EsimToken(1)
	require.ErrorIs(t, err, esim.ErrTokenNotFound)
}

func TestNodeSignatureReplayAcrossRestart(t *testing.T) {
	h := newHarness(t)
	h.mint(h.alice, "unique-sig")

	h.node = h.open()
	_, err := h.node.EsimMint(h.admin, esim.MintParams{
		Owner:          h.bob,
		Bandwidth:      10,
		Signature:      []byte("unique-sig"),
		ValidityPeriod: 48 * time.Hour,
	})
	require.ErrorIs(t, err, esim.ErrDuplicateProof)

	second := h.mint(h.bob, "another-sig")
	require.Equal(t, uint64(2), second.ID)
}

func TestNodeBridgeFlow(t *testing.T) {
	h := newHarness(t)
	token := h.mint(h.alice, "bridge-sig")
	ctx := context.Background()

	tx, err := h.node.BridgeInitiate(ctx, h.alice, token.ID, "polygon-esim", h.bob, []byte("bridge-proof"))
	require.NoError(t, err)
	require.Equal(t, bridge.StatusPending, tx.Status)

	_, err = h.node.MarketList(h.alice, token.ID, big.NewInt(10))
	require.Error(t, err)

	_, err = h.node.BridgeComplete(ctx, h.alice, tx.Hash, []byte("fresh-proof"))
	require.ErrorIs(t, err, bridge.ErrCooldownActive)

	h.advance(bridge.DefaultCooldown)
	h.oracle.verdict = proof.Result{Valid: true, Entropy: 94}
	_, err = h.node.BridgeComplete(ctx, h.alice, tx.Hash, []byte("fresh-proof"))
	require.ErrorIs(t, err, bridge.ErrInsufficientEntropy)

	h.oracle.verdict = proof.Result{Valid: true, Entropy: 95}
	done, err := h.node.BridgeComplete(ctx, h.alice, tx.Hash, []byte("fresh-proof"))
	require.NoError(t, err)
	require.Equal(t, bridge.StatusCompleted, done.Status)

	moved, err := h.node.EsimToken(token.ID)
	require.NoError(t, err)
	require.Equal(t, bridge.TargetAccount("polygon-esim"), moved.Owner)

	stored, err := h.node.BridgeTransaction(tx.Hash)
	require.NoError(t, err)
	require.Equal(t, bridge.StatusCompleted, stored.Status)
}

func TestNodeOracleFailureRejectsBeforeLedger(t *testing.T) {
	h := newHarness(t)
	token := h.mint(h.alice, "oracle-sig")
	before, err := h.node.Status()
	require.NoError(t, err)

	h.oracle.err = errors.New("attester down")
	_, err = h.node.BridgeInitiate(context.Background(), h.alice, token.ID, "remote", h.bob, []byte("p"))
	require.ErrorIs(t, err, ErrOracleUnavailable)

	h.oracle.err = nil
	h.oracle.verdict = proof.Result{Valid: false}
	_, err = h.node.BridgeInitiate(context.Background(), h.alice, token.ID, "remote", h.bob, []byte("p"))
	require.ErrorIs(t, err, bridge.ErrInvalidProof)

	after, err := h.node.Status()
	require.NoError(t, err)
	require.Equal(t, before.Height, after.Height)
}

func TestNodeSubmitScoresWithOracle(t *testing.T) {
	h := newHarness(t)
	token := h.mint(h.alice, "score-sig")

	h.oracle.verdict = proof.Result{Valid: true, Entropy: 70}
	_, err := h.node.ProofSubmit(context.Background(), h.alice, token.ID, []byte("weak"), [32]byte{}, 0)
	require.ErrorIs(t, err, proof.ErrInsufficientEntropy)

	h.oracle.verdict = proof.Result{Valid: true, Entropy: 88}
	record, err := h.node.ProofSubmit(context.Background(), h.alice, token.ID, []byte("strong"), [32]byte{}, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(88), record.Entropy)
	require.Equal(t, 2, h.oracle.calls)
}

func TestNodeGovernance(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.node.PauseModule(h.alice, market.ModuleName, true), common.ErrCapabilityMissing)
	require.ErrorIs(t, h.node.PauseModule(h.admin, "unknown", true), ErrUnknownModule)
	require.NoError(t, h.node.PauseModule(h.admin, market.ModuleName, true))

	token := h.mint(h.alice, "gov-sig")
	_, err := h.node.MarketList(h.alice, token.ID, big.NewInt(5))
	require.ErrorIs(t, err, common.ErrModulePaused)

	status, err := h.node.Status()
	require.NoError(t, err)
	require.True(t, status.Paused[market.ModuleName])
	require.False(t, status.Paused[esim.ModuleName])

	require.ErrorIs(t, h.node.RevokeRole(h.admin, "admin", h.admin), ErrLastAdmin)
	require.ErrorIs(t, h.node.GrantRole(h.admin, "owner", h.bob), ErrUnknownRole)
	require.NoError(t, h.node.GrantRole(h.admin, "admin", h.bob))
	require.NoError(t, h.node.RevokeRole(h.bob, "admin", h.admin))

	members, err := h.node.RoleMembers("admin")
	require.NoError(t, err)
	require.Equal(t, [][20]byte{h.bob}, members)

	// Restarting with the same genesis config keeps the revocation.
	h.node = h.open()
	members, err = h.node.RoleMembers("admin")
	require.NoError(t, err)
	require.Equal(t, [][20]byte{h.bob}, members)

	_, err = h.node.Deposit(h.admin, h.alice, big.NewInt(1))
	require.ErrorIs(t, err, common.ErrCapabilityMissing)
}

func TestNodeHonoursExplicitZeroConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Admins = [][20]byte{addr(1)}
	cfg.Proof = proof.Config{}
	cfg.Market.FeeRate = 0
	node, err := NewNode(storage.NewMemDB(), cfg)
	require.NoError(t, err)
	require.Equal(t, proof.Config{}, node.Config().Proof)
	require.Zero(t, node.Config().Market.FeeRate)

	_, err = node.ProofSubmit(context.Background(), addr(3), 1, []byte("low-entropy"), [32]byte{1}, 10)
	require.NoError(t, err)
	_, err = node.ProofRequestVerification(addr(3), 1)
	require.NoError(t, err, "a zero timelock must not delay verification requests")
}
