package bandwidth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/native/common"
	"esimchain/native/esim"
	"esimchain/native/proof"
)

var errNilState = errors.New("bandwidth meter: state not configured")

const (
	EventTypeAllocated   = "bandwidth.allocated"
	EventTypeConsumed    = "bandwidth.consumed"
	EventTypeActivated   = "bandwidth.activated"
	EventTypeDeactivated = "bandwidth.deactivated"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr [20]byte) bool
	IsPaused(module string) bool
}

type proofView interface {
	VerifiedProof(assetID uint64) (*proof.Record, bool, error)
}

type registryView interface {
	RequireActive(assetID uint64) (*esim.Token, error)
}

type lockView interface {
	IsLocked(assetID uint64) (bool, error)
}

// Meter tracks bandwidth allocations and rate-limited consumption per asset.
type Meter struct {
	state    engineState
	proofs   proofView
	registry registryView
	locks    lockView
	emitter  events.Emitter
	nowFn    func() int64
}

// NewMeter creates a meter with a no-op emitter.
func NewMeter() *Meter {
	return &Meter{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the meter.
func (m *Meter) SetState(state engineState) { m.state = state }

// SetProofs configures the proof ledger consulted before every mutation.
func (m *Meter) SetProofs(proofs proofView) { m.proofs = proofs }

// SetRegistry configures the asset registry reads.
func (m *Meter) SetRegistry(registry registryView) { m.registry = registry }

// SetLocks configures the bridge lock view. Without it assets are never
// considered locked.
func (m *Meter) SetLocks(locks lockView) { m.locks = locks }

// SetNowFunc overrides the time source used by the meter.
func (m *Meter) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (m *Meter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Meter) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(events.Wrap(evt))
}

func (m *Meter) now() int64 {
	if m == nil || m.nowFn == nil {
		return time.Now().Unix()
	}
	return m.nowFn()
}

func (m *Meter) ready() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if m.proofs == nil || m.registry == nil {
		return errors.New("bandwidth meter: dependencies not configured")
	}
	return nil
}

// authorize loads the active token and checks that caller owns it or holds
// the admin role. Locked assets are rejected.
func (m *Meter) authorize(caller [20]byte, assetID uint64) (*esim.Token, error) {
	if err := common.Guard(m.state, ModuleName); err != nil {
		return nil, err
	}
	token, err := m.registry.RequireActive(assetID)
	if err != nil {
		return nil, err
	}
	if token.Owner != caller && !m.state.HasRole(RoleAdmin, caller) {
		return nil, ErrNotAuthorized
	}
	if m.locks != nil {
		locked, err := m.locks.IsLocked(assetID)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, ErrLocked
		}
	}
	return token, nil
}

func (m *Meter) requireVerified(assetID uint64, proofID [32]byte) error {
	record, ok, err := m.proofs.VerifiedProof(assetID)
	if err != nil {
		return err
	}
	if !ok || record.ID != proofID {
		return ErrUnverifiedProof
	}
	return nil
}

// Allocate grants amount of bandwidth to assetID for duration. A previous
// allocation must have ended first.
func (m *Meter) Allocate(caller [20]byte, assetID uint64, amount uint64, duration time.Duration, proofID [32]byte) (*Allocation, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	seconds := int64(duration / time.Second)
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	if _, err := m.authorize(caller, assetID); err != nil {
		return nil, err
	}
	now := m.now()
	existing, ok, err := m.load(assetID)
	if err != nil {
		return nil, err
	}
	if ok && now < existing.EndTime {
		return nil, ErrAllocationActive
	}
	if err := m.requireVerified(assetID, proofID); err != nil {
		return nil, err
	}
	alloc := &Allocation{
		AssetID:   assetID,
		Amount:    amount,
		StartTime: now,
		EndTime:   now + seconds,
		ProofID:   proofID,
		Active:    true,
	}
	if err := m.store(alloc); err != nil {
		return nil, err
	}
	m.emit(allocationEvent(EventTypeAllocated, alloc, caller))
	return alloc.Clone(), nil
}

// Consume meters amount against the active allocation of assetID, enforcing
// both the lifetime total and the hourly cap.
func (m *Meter) Consume(caller [20]byte, assetID uint64, amount uint64, proofID [32]byte) (*Usage, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := m.authorize(caller, assetID); err != nil {
		return nil, err
	}
	alloc, ok, err := m.load(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || !alloc.Active {
		return nil, ErrAllocationInactive
	}
	now := m.now()
	if now > alloc.EndTime {
		return nil, ErrAllocationExpired
	}
	if amount > alloc.Remaining() {
		return nil, ErrExceedsAllocation
	}
	if err := m.requireVerified(assetID, proofID); err != nil {
		return nil, err
	}
	hourlyCap := alloc.HourlyCap()
	if hourlyCap == 0 {
		return nil, ErrRateLimitExceeded
	}
	quota := common.Quota{MaxAmount: hourlyCap, WindowSeconds: HourSeconds}
	bucket := quota.WindowID(now)
	prev, err := m.loadHourly(assetID, bucket)
	if err != nil {
		return nil, err
	}
	next, err := common.CheckQuota(quota, bucket, prev, 1, amount)
	if err != nil {
		if errors.Is(err, common.ErrQuotaCapExceeded) {
			return nil, ErrRateLimitExceeded
		}
		return nil, err
	}
	alloc.Consumed += amount
	if err := m.store(alloc); err != nil {
		return nil, err
	}
	if err := m.storeHourly(assetID, next); err != nil {
		return nil, err
	}
	evt := allocationEvent(EventTypeConsumed, alloc, caller)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	evt.Attributes["hourBucket"] = strconv.FormatUint(bucket, 10)
	evt.Attributes["hourUsed"] = strconv.FormatUint(next.Used, 10)
	m.emit(evt)
	return &Usage{
		Allocation: alloc.Clone(),
		HourBucket: bucket,
		HourUsed:   next.Used,
		HourlyCap:  hourlyCap,
		Remaining:  alloc.Remaining(),
	}, nil
}

// Activate re-enables a deactivated allocation that has not ended.
func (m *Meter) Activate(caller [20]byte, assetID uint64, proofID [32]byte) (*Allocation, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if _, err := m.authorize(caller, assetID); err != nil {
		return nil, err
	}
	alloc, ok, err := m.load(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAllocationNotFound
	}
	if alloc.Active {
		return nil, ErrAllocationActive
	}
	if m.now() > alloc.EndTime {
		return nil, ErrAllocationExpired
	}
	if err := m.requireVerified(assetID, proofID); err != nil {
		return nil, err
	}
	alloc.Active = true
	if err := m.store(alloc); err != nil {
		return nil, err
	}
	m.emit(allocationEvent(EventTypeActivated, alloc, caller))
	return alloc.Clone(), nil
}

// Deactivate pauses consumption against the allocation of assetID.
func (m *Meter) Deactivate(caller [20]byte, assetID uint64, proofID [32]byte) (*Allocation, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if _, err := m.authorize(caller, assetID); err != nil {
		return nil, err
	}
	alloc, ok, err := m.load(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAllocationNotFound
	}
	if !alloc.Active {
		return nil, ErrAllocationInactive
	}
	if err := m.requireVerified(assetID, proofID); err != nil {
		return nil, err
	}
	alloc.Active = false
	if err := m.store(alloc); err != nil {
		return nil, err
	}
	m.emit(allocationEvent(EventTypeDeactivated, alloc, caller))
	return alloc.Clone(), nil
}

// Usage reports the allocation and the current hour bucket of assetID.
func (m *Meter) Usage(assetID uint64) (*Usage, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	alloc, ok, err := m.load(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAllocationNotFound
	}
	bucket := HourBucket(m.now())
	hourly, err := m.loadHourly(assetID, bucket)
	if err != nil {
		return nil, err
	}
	return &Usage{
		Allocation: alloc,
		HourBucket: bucket,
		HourUsed:   hourly.Used,
		HourlyCap:  alloc.HourlyCap(),
		Remaining:  alloc.Remaining(),
	}, nil
}

func allocationEvent(eventType string, a *Allocation, caller [20]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"assetId":  strconv.FormatUint(a.AssetID, 10),
			"amount":   strconv.FormatUint(a.Amount, 10),
			"consumed": strconv.FormatUint(a.Consumed, 10),
			"endTime":  strconv.FormatInt(a.EndTime, 10),
			"proofId":  "0x" + hex.EncodeToString(a.ProofID[:]),
			"caller":   "0x" + hex.EncodeToString(caller[:]),
		},
	}
}

var (
	allocationPrefix = []byte("bandwidth/allocation/")
	hourlyPrefix     = []byte("bandwidth/hourly/")
)

func allocationKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", allocationPrefix, assetID))
}

func hourlyKey(assetID, bucket uint64) []byte {
	return []byte(fmt.Sprintf("%s%d/%d", hourlyPrefix, assetID, bucket))
}

type storedAllocation struct {
	AssetID   uint64
	Amount    uint64
	Consumed  uint64
	StartTime uint64
	EndTime   uint64
	ProofID   [32]byte
	Active    bool
}

func (m *Meter) load(assetID uint64) (*Allocation, bool, error) {
	var stored storedAllocation
	ok, err := m.state.KVGet(allocationKey(assetID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Allocation{
		AssetID:   stored.AssetID,
		Amount:    stored.Amount,
		Consumed:  stored.Consumed,
		StartTime: int64(stored.StartTime),
		EndTime:   int64(stored.EndTime),
		ProofID:   stored.ProofID,
		Active:    stored.Active,
	}, true, nil
}

func (m *Meter) store(a *Allocation) error {
	if a.StartTime < 0 || a.EndTime < 0 {
		return fmt.Errorf("bandwidth: negative timestamp")
	}
	return m.state.KVPut(allocationKey(a.AssetID), &storedAllocation{
		AssetID:   a.AssetID,
		Amount:    a.Amount,
		Consumed:  a.Consumed,
		StartTime: uint64(a.StartTime),
		EndTime:   uint64(a.EndTime),
		ProofID:   a.ProofID,
		Active:    a.Active,
	})
}

func (m *Meter) loadHourly(assetID, bucket uint64) (common.QuotaNow, error) {
	var counters common.QuotaNow
	ok, err := m.state.KVGet(hourlyKey(assetID, bucket), &counters)
	if err != nil {
		return common.QuotaNow{}, err
	}
	if !ok {
		return common.QuotaNow{WindowID: bucket}, nil
	}
	return counters, nil
}

func (m *Meter) storeHourly(assetID uint64, counters common.QuotaNow) error {
	return m.state.KVPut(hourlyKey(assetID, counters.WindowID), &counters)
}
