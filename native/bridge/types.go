package bridge

import (
	"encoding/binary"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "esimchain/core/errors"
)

// ModuleName is the pause/metrics label of the bridge coordinator.
const ModuleName = "bridge"

// RoleAdmin gates emergency withdrawals.
const RoleAdmin = "admin"

const (
	DefaultCooldown                 = time.Hour
	DefaultCompletionEntropy uint32 = 95
)

var (
	ErrInvalidTarget       = coreerrors.Validation("bridge: invalid target registry")
	ErrInvalidRecipient    = coreerrors.Validation("bridge: invalid recipient")
	ErrInvalidProof        = coreerrors.Validation("bridge: invalid proof")
	ErrAlreadyLocked       = coreerrors.Conflict("bridge: asset already locked")
	ErrAlreadyCompleted    = coreerrors.Conflict("bridge: transaction already completed")
	ErrWithdrawn           = coreerrors.Conflict("bridge: transaction withdrawn")
	ErrNotLocked           = coreerrors.Conflict("bridge: asset not locked")
	ErrListed              = coreerrors.Conflict("bridge: asset is listed")
	ErrNotOwner            = coreerrors.Authorization("bridge: caller is not the owner")
	ErrNotAuthorized       = coreerrors.Authorization("bridge: caller not authorized")
	ErrCooldownActive      = coreerrors.Temporal("bridge: cooldown active")
	ErrInsufficientEntropy = coreerrors.Exhausted("bridge: insufficient entropy")
	ErrTransactionNotFound = coreerrors.NotFound("bridge: transaction not found")
)

// Config captures the coordinator tunables.
type Config struct {
	Cooldown            time.Duration
	CompletionEntropy   uint32
	HoldingAccount      [20]byte
	SuspendedBridgeable bool
}

// DefaultConfig returns the coordinator defaults. The holding account is
// derived when left empty.
func DefaultConfig() Config {
	return Config{Cooldown: DefaultCooldown, CompletionEntropy: DefaultCompletionEntropy, HoldingAccount: DefaultHoldingAccount()}
}

// Status is the state of a bridge transaction.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusCompleted
	StatusWithdrawn
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Transaction tracks the transfer of one asset to a remote registry.
type Transaction struct {
	Hash           [32]byte `json:"hash"`
	AssetID        uint64   `json:"assetId"`
	Source         [20]byte `json:"source"`
	TargetRegistry string   `json:"targetRegistry"`
	Recipient      [20]byte `json:"recipient"`
	Proof          []byte   `json:"proof"`
	InitiatedAt    int64    `json:"initiatedAt"`
	Status         Status   `json:"status"`
	ClosedAt       int64    `json:"closedAt"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Proof = append([]byte(nil), t.Proof...)
	return &clone
}

// Lock is the exclusive hold placed on an asset while it is in transit.
type Lock struct {
	AssetID  uint64   `json:"assetId"`
	Owner    [20]byte `json:"owner"`
	TxHash   [32]byte `json:"txHash"`
	LockedAt int64    `json:"lockedAt"`
}

// NormalizeTarget canonicalises a registry identifier.
func NormalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}

// TxHash derives the transaction hash from the asset, the target registry,
// the proof and the per-asset bridge nonce.
func TxHash(assetID uint64, target string, proof []byte, nonce uint64) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], assetID)
	binary.BigEndian.PutUint64(buf[8:], nonce)
	return ethcrypto.Keccak256Hash([]byte("bridge/tx"), buf[:8], []byte(NormalizeTarget(target)), proof, buf[8:])
}

// TargetAccount is the deterministic account that receives custody of
// assets released to target.
func TargetAccount(target string) [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("bridge/registry/" + NormalizeTarget(target)))
	copy(out[:], digest[12:])
	return out
}

// DefaultHoldingAccount is the custody account of locked assets.
func DefaultHoldingAccount() [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("bridge/holding"))
	copy(out[:], digest[12:])
	return out
}
