package proof

import (
	"encoding/binary"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ModuleName is the pause/metrics label of the proof ledger.
const ModuleName = "proof"

const (
	// DefaultMinEntropy is the minimum entropy score accepted on submission.
	DefaultMinEntropy uint32 = 80
	// DefaultVerificationTimelock separates submission from the earliest
	// verification request.
	DefaultVerificationTimelock = 5 * time.Minute
	// MaxEntropy is the upper bound of the entropy scale.
	MaxEntropy uint32 = 100
)

// Config captures the tunables of the proof ledger.
type Config struct {
	MinEntropy           uint32
	VerificationTimelock time.Duration
}

// DefaultConfig returns the ledger defaults.
func DefaultConfig() Config {
	return Config{MinEntropy: DefaultMinEntropy, VerificationTimelock: DefaultVerificationTimelock}
}

// Record is a proof bound to an asset. A record is concluded once a verifier
// has processed a request against it; only concluded records may be replaced.
type Record struct {
	ID          [32]byte
	AssetID     uint64
	Submitter   [20]byte
	Signature   []byte
	DataHash    [32]byte
	SubmittedAt int64
	Entropy     uint32
	Verified    bool
	Concluded   bool
	Verifier    [20]byte
	VerifiedAt  int64
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Signature = append([]byte(nil), r.Signature...)
	return &clone
}

// Request tracks a verification request. Processed requests are immutable.
type Request struct {
	ID        [32]byte
	AssetID   uint64
	ProofID   [32]byte
	Requester [20]byte
	CreatedAt int64
	Processed bool
	Outcome   bool
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ProofID derives the identifier of a proof submission.
func ProofID(assetID uint64, signature []byte, dataHash [32]byte, submittedAt int64) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], assetID)
	binary.BigEndian.PutUint64(buf[8:], uint64(submittedAt))
	return ethcrypto.Keccak256Hash([]byte("proof/id"), buf[:8], signature, dataHash[:], buf[8:])
}

// RequestID derives a verification request identifier from the asset, the
// requester and the request timestamp.
func RequestID(assetID uint64, requester [20]byte, createdAt int64) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], assetID)
	binary.BigEndian.PutUint64(buf[8:], uint64(createdAt))
	return ethcrypto.Keccak256Hash([]byte("proof/request"), buf[:8], requester[:], buf[8:])
}
