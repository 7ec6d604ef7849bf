package proof

import (
	"encoding/hex"
	"strconv"

	"esimchain/core/types"
)

const (
	EventTypeProofSubmitted         = "proof.submitted"
	EventTypeVerificationRequested  = "proof.verification_requested"
	EventTypeProofVerified          = "proof.verified"
	EventTypeProofSignatureConsumed = "proof.signature_consumed"
)

func newSubmittedEvent(r *Record) *types.Event {
	return &types.Event{
		Type: EventTypeProofSubmitted,
		Attributes: map[string]string{
			"proofId":   "0x" + hex.EncodeToString(r.ID[:]),
			"assetId":   strconv.FormatUint(r.AssetID, 10),
			"submitter": "0x" + hex.EncodeToString(r.Submitter[:]),
			"entropy":   strconv.FormatUint(uint64(r.Entropy), 10),
		},
	}
}

func newRequestedEvent(req *Request) *types.Event {
	return &types.Event{
		Type: EventTypeVerificationRequested,
		Attributes: map[string]string{
			"requestId": "0x" + hex.EncodeToString(req.ID[:]),
			"assetId":   strconv.FormatUint(req.AssetID, 10),
			"requester": "0x" + hex.EncodeToString(req.Requester[:]),
		},
	}
}

func newVerifiedEvent(r *Record, requestID [32]byte) *types.Event {
	return &types.Event{
		Type: EventTypeProofVerified,
		Attributes: map[string]string{
			"proofId":   "0x" + hex.EncodeToString(r.ID[:]),
			"requestId": "0x" + hex.EncodeToString(requestID[:]),
			"assetId":   strconv.FormatUint(r.AssetID, 10),
			"verifier":  "0x" + hex.EncodeToString(r.Verifier[:]),
			"outcome":   strconv.FormatBool(r.Verified),
		},
	}
}

func newConsumedEvent(fingerprint [32]byte, assetID uint64) *types.Event {
	return &types.Event{
		Type: EventTypeProofSignatureConsumed,
		Attributes: map[string]string{
			"fingerprint": "0x" + hex.EncodeToString(fingerprint[:]),
			"assetId":     strconv.FormatUint(assetID, 10),
		},
	}
}
