package proof

import (
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"lukechampine.com/blake3"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/native/common"
)

var errNilState = errors.New("proof engine: state not configured")

// RoleVerifier is the capability required to conclude verification requests.
const RoleVerifier = "verifier"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr [20]byte) bool
	IsPaused(module string) bool
}

// Engine is the proof ledger: it records submitted proofs, verification
// requests and their outcomes, and owns the global replay-prevention set of
// consumed signatures.
type Engine struct {
	state   engineState
	emitter events.Emitter
	config  Config
	seen    *bloom.BloomFilter
	nowFn   func() int64
}

// NewEngine creates a proof ledger with default configuration and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		config:  DefaultConfig(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetConfig overrides the ledger tunables.
func (e *Engine) SetConfig(cfg Config) { e.config = cfg }

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.config }

// SetSeenFilter installs a probabilistic prefilter over consumed signature
// fingerprints. The filter must contain every fingerprint already persisted.
func (e *Engine) SetSeenFilter(filter *bloom.BloomFilter) { e.seen = filter }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// Submit records an unverified proof for assetID. A pending record for the
// same asset rejects the submission; a concluded one is replaced.
func (e *Engine) Submit(caller [20]byte, assetID uint64, signature []byte, dataHash [32]byte, entropy uint32) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if assetID == 0 {
		return nil, ErrInvalidAsset
	}
	if len(signature) == 0 {
		return nil, ErrInvalidProof
	}
	if entropy > MaxEntropy {
		return nil, ErrInvalidProof
	}
	existing, ok, err := e.loadRecord(assetID)
	if err != nil {
		return nil, err
	}
	if ok && !existing.Concluded {
		return nil, ErrDuplicateProof
	}
	if entropy < e.config.MinEntropy {
		return nil, ErrInsufficientEntropy
	}
	now := e.now()
	record := &Record{
		ID:          ProofID(assetID, signature, dataHash, now),
		AssetID:     assetID,
		Submitter:   caller,
		Signature:   append([]byte(nil), signature...),
		DataHash:    dataHash,
		SubmittedAt: now,
		Entropy:     entropy,
	}
	if err := e.storeRecord(record); err != nil {
		return nil, err
	}
	e.emit(newSubmittedEvent(record))
	return record.Clone(), nil
}

// RequestVerification opens a verification request against the pending proof
// of assetID once the verification timelock has elapsed.
func (e *Engine) RequestVerification(caller [20]byte, assetID uint64) (*Request, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	record, ok, err := e.loadRecord(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProofNotFound
	}
	if record.Concluded {
		return nil, ErrAlreadyProcessed
	}
	now := e.now()
	unlock := record.SubmittedAt + int64(e.config.VerificationTimelock/time.Second)
	if now < unlock {
		return nil, ErrTimelockActive
	}
	id := RequestID(assetID, caller, now)
	if _, exists, err := e.loadRequest(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrDuplicateRequest
	}
	req := &Request{
		ID:        id,
		AssetID:   assetID,
		ProofID:   record.ID,
		Requester: caller,
		CreatedAt: now,
	}
	if err := e.storeRequest(req); err != nil {
		return nil, err
	}
	e.emit(newRequestedEvent(req))
	return req.Clone(), nil
}

// Verify concludes requestID with outcome. Only verifiers may call it; the
// request becomes immutable afterwards.
func (e *Engine) Verify(caller [20]byte, assetID uint64, requestID [32]byte, outcome bool) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return nil, err
	}
	if err := common.RequireRole(e.state, RoleVerifier, caller); err != nil {
		return nil, err
	}
	req, ok, err := e.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	if !ok || req.AssetID != assetID {
		return nil, ErrRequestNotFound
	}
	if req.Processed {
		return nil, ErrAlreadyProcessed
	}
	record, ok, err := e.loadRecord(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || record.ID != req.ProofID {
		return nil, ErrRequestNotFound
	}
	if record.Concluded {
		return nil, ErrAlreadyProcessed
	}
	now := e.now()
	req.Processed = true
	req.Outcome = outcome
	record.Verified = outcome
	record.Concluded = true
	record.Verifier = caller
	record.VerifiedAt = now
	if err := e.storeRequest(req); err != nil {
		return nil, err
	}
	if err := e.storeRecord(record); err != nil {
		return nil, err
	}
	e.emit(newVerifiedEvent(record, req.ID))
	return record.Clone(), nil
}

// Proof returns the current record bound to assetID.
func (e *Engine) Proof(assetID uint64) (*Record, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.loadRecord(assetID)
}

// Request returns the verification request identified by id.
func (e *Engine) Request(id [32]byte) (*Request, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.loadRequest(id)
}

// VerifiedProof returns the record of assetID only when a verifier accepted
// it.
func (e *Engine) VerifiedProof(assetID uint64) (*Record, bool, error) {
	record, ok, err := e.Proof(assetID)
	if err != nil || !ok {
		return nil, false, err
	}
	if !record.Concluded || !record.Verified {
		return nil, false, nil
	}
	return record, true, nil
}

// Fingerprint returns the replay-set key of a signature.
func Fingerprint(signature []byte) [32]byte {
	return blake3.Sum256(signature)
}

// SignatureConsumed reports whether signature was already consumed by a mint.
func (e *Engine) SignatureConsumed(signature []byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	fp := Fingerprint(signature)
	if e.seen != nil && !e.seen.Test(fp[:]) {
		return false, nil
	}
	var assetID uint64
	ok, err := e.state.KVGet(consumedKey(fp), &assetID)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ConsumeSignature marks signature as used by the mint of assetID. Each
// signature may be consumed once system-wide.
func (e *Engine) ConsumeSignature(signature []byte, assetID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(signature) == 0 {
		return ErrInvalidProof
	}
	consumed, err := e.SignatureConsumed(signature)
	if err != nil {
		return err
	}
	if consumed {
		return ErrSignatureConsumed
	}
	fp := Fingerprint(signature)
	count, err := e.consumedCount()
	if err != nil {
		return err
	}
	count++
	if err := e.state.KVPut(consumedKey(fp), assetID); err != nil {
		return err
	}
	if err := e.state.KVPut(consumedIndexKey(count), fp); err != nil {
		return err
	}
	if err := e.state.KVPut(consumedCountKey, count); err != nil {
		return err
	}
	if e.seen != nil {
		e.seen.Add(fp[:])
	}
	e.emit(newConsumedEvent(fp, assetID))
	return nil
}

// ConsumedFingerprints lists every consumed fingerprint in consumption order.
// The node uses it to warm the seen filter at startup.
func (e *Engine) ConsumedFingerprints() ([][32]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.consumedCount()
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, count)
	for i := uint64(1); i <= count; i++ {
		var fp [32]byte
		ok, err := e.state.KVGet(consumedIndexKey(i), &fp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("proof: consumed index %d missing", i)
		}
		out = append(out, fp)
	}
	return out, nil
}

func (e *Engine) consumedCount() (uint64, error) {
	var count uint64
	if _, err := e.state.KVGet(consumedCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}
