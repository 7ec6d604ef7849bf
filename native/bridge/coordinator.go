package bridge

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

var errNilState = errors.New("bridge coordinator: state not configured")

const (
	EventTypeInitiated = "bridge.initiated"
	EventTypeCompleted = "bridge.completed"
	EventTypeWithdrawn = "bridge.withdrawn"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	HasRole(role string, addr [20]byte) bool
	IsPaused(module string) bool
}

type registryView interface {
	RequireUsable(assetID uint64, allowSuspended bool) (*esim.Token, error)
	Transfer(assetID uint64, from, to [20]byte) (*esim.Token, error)
}

type listingView interface {
	IsListed(assetID uint64) (bool, error)
}

// Coordinator locks assets for cross-registry transfer and releases them
// after the cooldown and a fresh proof check, or back to their owner via an
// emergency withdrawal.
type Coordinator struct {
	state    engineState
	registry registryView
	listings listingView
	config   Config
	emitter  events.Emitter
	nowFn    func() int64
}

// NewCoordinator creates a coordinator with default configuration.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		config:  DefaultConfig(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the coordinator.
func (c *Coordinator) SetState(state engineState) { c.state = state }

// SetRegistry configures the asset registry used for custody moves.
func (c *Coordinator) SetRegistry(registry registryView) { c.registry = registry }

// SetListings configures the marketplace view. Listed assets cannot be
// bridged.
func (c *Coordinator) SetListings(listings listingView) { c.listings = listings }

// SetConfig overrides the coordinator tunables.
func (c *Coordinator) SetConfig(cfg Config) {
	if cfg.HoldingAccount == ([20]byte{}) {
		cfg.HoldingAccount = DefaultHoldingAccount()
	}
	c.config = cfg
}

// Config returns the active configuration.
func (c *Coordinator) Config() Config { return c.config }

// SetNowFunc overrides the time source used by the coordinator.
func (c *Coordinator) SetNowFunc(now func() int64) {
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	c.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (c *Coordinator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Coordinator) emit(evt *types.Event) {
	if c == nil || c.emitter == nil || evt == nil {
		return
	}
	c.emitter.Emit(events.Wrap(evt))
}

func (c *Coordinator) now() int64 {
	if c == nil || c.nowFn == nil {
		return time.Now().Unix()
	}
	return c.nowFn()
}

func (c *Coordinator) ready() error {
	if c == nil || c.state == nil {
		return errNilState
	}
	return nil
}

func (c *Coordinator) mutable() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.registry == nil {
		return errors.New("bridge coordinator: registry not configured")
	}
	return common.Guard(c.state, ModuleName)
}

// Initiate locks assetID, records the transfer to target and moves custody to
// the holding account. verdict is the oracle's evaluation of proof.
func (c *Coordinator) Initiate(caller [20]byte, assetID uint64, target string, recipient [20]byte, proofBytes []byte, verdict proof.Result) (*Transaction, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	normalized := NormalizeTarget(target)
	if normalized == "" {
		return nil, ErrInvalidTarget
	}
	if recipient == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	token, err := c.registry.RequireUsable(assetID, c.config.SuspendedBridgeable)
	if err != nil {
		return nil, err
	}
	if _, locked, err := c.loadLock(assetID); err != nil {
		return nil, err
	} else if locked {
		return nil, ErrAlreadyLocked
	}
	if token.Owner != caller {
		return nil, ErrNotOwner
	}
	if c.listings != nil {
		listed, err := c.listings.IsListed(assetID)
		if err != nil {
			return nil, err
		}
		if listed {
			return nil, ErrListed
		}
	}
	if len(proofBytes) == 0 || !verdict.Valid {
		return nil, ErrInvalidProof
	}
	nonce, err := c.nextNonce(assetID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	tx := &Transaction{
		Hash:           TxHash(assetID, normalized, proofBytes, nonce),
		AssetID:        assetID,
		Source:         caller,
		TargetRegistry: normalized,
		Recipient:      recipient,
		Proof:          append([]byte(nil), proofBytes...),
		InitiatedAt:    now,
		Status:         StatusPending,
	}
	lock := &Lock{AssetID: assetID, Owner: caller, TxHash: tx.Hash, LockedAt: now}
	if err := c.storeTransaction(tx); err != nil {
		return nil, err
	}
	if err := c.storeLock(lock); err != nil {
		return nil, err
	}
	if _, err := c.registry.Transfer(assetID, caller, c.config.HoldingAccount); err != nil {
		return nil, err
	}
	c.emit(transactionEvent(EventTypeInitiated, tx))
	return tx.Clone(), nil
}

// Complete releases a locked asset to its target registry once the cooldown
// has elapsed and a fresh proof clears the completion entropy threshold.
func (c *Coordinator) Complete(caller [20]byte, txHash [32]byte, newProof []byte, verdict proof.Result) (*Transaction, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	tx, ok, err := c.loadTransaction(txHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTransactionNotFound
	}
	switch tx.Status {
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	case StatusWithdrawn:
		return nil, ErrWithdrawn
	}
	if caller != tx.Source && caller != tx.Recipient && !c.state.HasRole(RoleAdmin, caller) {
		return nil, ErrNotAuthorized
	}
	now := c.now()
	if now < tx.InitiatedAt+int64(c.config.Cooldown/time.Second) {
		return nil, ErrCooldownActive
	}
	// An asset that lapsed while locked stays with the bridge until an
	// emergency withdrawal returns it.
	if _, err := c.registry.RequireUsable(tx.AssetID, c.config.SuspendedBridgeable); err != nil {
		return nil, err
	}
	if len(newProof) == 0 || !verdict.Valid {
		return nil, ErrInvalidProof
	}
	if verdict.Entropy < c.config.CompletionEntropy {
		return nil, ErrInsufficientEntropy
	}
	tx.Status = StatusCompleted
	tx.ClosedAt = now
	if err := c.storeTransaction(tx); err != nil {
		return nil, err
	}
	if err := c.state.KVDelete(lockKey(tx.AssetID)); err != nil {
		return nil, err
	}
	if _, err := c.registry.Transfer(tx.AssetID, c.config.HoldingAccount, TargetAccount(tx.TargetRegistry)); err != nil {
		return nil, err
	}
	c.emit(transactionEvent(EventTypeCompleted, tx))
	return tx.Clone(), nil
}

// EmergencyWithdraw unlocks a stuck asset and returns custody to
// originalOwner without completing the transfer.
func (c *Coordinator) EmergencyWithdraw(caller [20]byte, assetID uint64, originalOwner [20]byte) (*Transaction, error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	if err := common.RequireRole(c.state, RoleAdmin, caller); err != nil {
		return nil, err
	}
	if originalOwner == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	lock, locked, err := c.loadLock(assetID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrNotLocked
	}
	tx, ok, err := c.loadTransaction(lock.TxHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("bridge: lock of asset %d references unknown transaction", assetID)
	}
	tx.Status = StatusWithdrawn
	tx.ClosedAt = c.now()
	if err := c.storeTransaction(tx); err != nil {
		return nil, err
	}
	if err := c.state.KVDelete(lockKey(assetID)); err != nil {
		return nil, err
	}
	if _, err := c.registry.Transfer(assetID, c.config.HoldingAccount, originalOwner); err != nil {
		return nil, err
	}
	evt := transactionEvent(EventTypeWithdrawn, tx)
	evt.Attributes["returnedTo"] = "0x" + hex.EncodeToString(originalOwner[:])
	c.emit(evt)
	return tx.Clone(), nil
}

// Lock returns the active lock of assetID.
func (c *Coordinator) Lock(assetID uint64) (*Lock, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	return c.loadLock(assetID)
}

// IsLocked reports whether assetID is held by the bridge.
func (c *Coordinator) IsLocked(assetID uint64) (bool, error) {
	_, locked, err := c.Lock(assetID)
	return locked, err
}

// Transaction returns the bridge transaction identified by hash.
func (c *Coordinator) Transaction(hash [32]byte) (*Transaction, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	return c.loadTransaction(hash)
}

func transactionEvent(eventType string, tx *Transaction) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"txHash":         "0x" + hex.EncodeToString(tx.Hash[:]),
			"assetId":        strconv.FormatUint(tx.AssetID, 10),
			"source":         "0x" + hex.EncodeToString(tx.Source[:]),
			"targetRegistry": tx.TargetRegistry,
			"recipient":      "0x" + hex.EncodeToString(tx.Recipient[:]),
			"status":         tx.Status.String(),
		},
	}
}
