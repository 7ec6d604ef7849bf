package proof

import coreerrors "esimchain/core/errors"

var (
	ErrInvalidProof        = coreerrors.Validation("proof: invalid proof")
	ErrInvalidAsset        = coreerrors.Validation("proof: invalid asset id")
	ErrDuplicateProof      = coreerrors.Conflict("proof: duplicate proof")
	ErrDuplicateRequest    = coreerrors.Conflict("proof: duplicate verification request")
	ErrAlreadyProcessed    = coreerrors.Conflict("proof: request already processed")
	ErrInsufficientEntropy = coreerrors.Exhausted("proof: insufficient entropy")
	ErrProofNotFound       = coreerrors.NotFound("proof: proof not found")
	ErrRequestNotFound     = coreerrors.NotFound("proof: verification request not found")
	ErrTimelockActive      = coreerrors.Temporal("proof: verification timelock active")
	ErrSignatureConsumed   = coreerrors.Conflict("proof: signature already consumed")
)
