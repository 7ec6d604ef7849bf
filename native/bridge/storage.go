package bridge

import "fmt"

var (
	txPrefix    = []byte("bridge/tx/")
	lockPrefix  = []byte("bridge/lock/")
	noncePrefix = []byte("bridge/nonce/")
)

func txKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", txPrefix, hash))
}

func lockKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", lockPrefix, assetID))
}

func nonceKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", noncePrefix, assetID))
}

type storedTransaction struct {
	Hash           [32]byte
	AssetID        uint64
	Source         [20]byte
	TargetRegistry string
	Recipient      [20]byte
	Proof          []byte
	InitiatedAt    uint64
	Status         uint8
	ClosedAt       uint64
}

type storedLock struct {
	AssetID  uint64
	Owner    [20]byte
	TxHash   [32]byte
	LockedAt uint64
}

func (c *Coordinator) loadTransaction(hash [32]byte) (*Transaction, bool, error) {
	var stored storedTransaction
	ok, err := c.state.KVGet(txKey(hash), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Transaction{
		Hash:           stored.Hash,
		AssetID:        stored.AssetID,
		Source:         stored.Source,
		TargetRegistry: stored.TargetRegistry,
		Recipient:      stored.Recipient,
		Proof:          stored.Proof,
		InitiatedAt:    int64(stored.InitiatedAt),
		Status:         Status(stored.Status),
		ClosedAt:       int64(stored.ClosedAt),
	}, true, nil
}

func (c *Coordinator) storeTransaction(tx *Transaction) error {
	if tx.InitiatedAt < 0 || tx.ClosedAt < 0 {
		return fmt.Errorf("bridge: negative timestamp")
	}
	return c.state.KVPut(txKey(tx.Hash), &storedTransaction{
		Hash:           tx.Hash,
		AssetID:        tx.AssetID,
		Source:         tx.Source,
		TargetRegistry: tx.TargetRegistry,
		Recipient:      tx.Recipient,
		Proof:          tx.Proof,
		InitiatedAt:    uint64(tx.InitiatedAt),
		Status:         uint8(tx.Status),
		ClosedAt:       uint64(tx.ClosedAt),
	})
}

func (c *Coordinator) loadLock(assetID uint64) (*Lock, bool, error) {
	var stored storedLock
	ok, err := c.state.KVGet(lockKey(assetID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{
		AssetID:  stored.AssetID,
		Owner:    stored.Owner,
		TxHash:   stored.TxHash,
		LockedAt: int64(stored.LockedAt),
	}, true, nil
}

func (c *Coordinator) storeLock(l *Lock) error {
	if l.LockedAt < 0 {
		return fmt.Errorf("bridge: negative timestamp")
	}
	return c.state.KVPut(lockKey(l.AssetID), &storedLock{
		AssetID:  l.AssetID,
		Owner:    l.Owner,
		TxHash:   l.TxHash,
		LockedAt: uint64(l.LockedAt),
	})
}

func (c *Coordinator) nextNonce(assetID uint64) (uint64, error) {
	var nonce uint64
	if _, err := c.state.KVGet(nonceKey(assetID), &nonce); err != nil {
		return 0, err
	}
	if err := c.state.KVPut(nonceKey(assetID), nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}
