package proof

import (
	"context"
	"math/bits"
)

// EntropyScore rates a signature on a 0-100 scale from the share of set bits.
// For a fixed signature length the score never decreases as bits are set.
func EntropyScore(signature []byte) uint32 {
	if len(signature) == 0 {
		return 0
	}
	var ones uint64
	for _, b := range signature {
		ones += uint64(bits.OnesCount8(b))
	}
	total := uint64(len(signature)) * 8
	return uint32(ones * uint64(MaxEntropy) / total)
}

// Result is the verdict of the external proof oracle.
type Result struct {
	Valid   bool   `json:"valid"`
	Entropy uint32 `json:"entropy"`
}

// Oracle evaluates opaque proof material. Implementations live outside the
// ledger; the ledger only consumes their verdicts.
type Oracle interface {
	Evaluate(ctx context.Context, signature []byte, dataHash [32]byte) (Result, error)
}
