package proof

import "fmt"

var (
	recordPrefix        = []byte("proof/record/")
	requestPrefix       = []byte("proof/request/")
	consumedPrefix      = []byte("proof/consumed/")
	consumedIndexPrefix = []byte("proof/consumed-index/")
	consumedCountKey    = []byte("proof/consumed-count")
)

func recordKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, assetID))
}

func requestKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", requestPrefix, id))
}

func consumedKey(fp [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", consumedPrefix, fp))
}

func consumedIndexKey(i uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", consumedIndexPrefix, i))
}

type storedRecord struct {
	ID          [32]byte
	AssetID     uint64
	Submitter   [20]byte
	Signature   []byte
	DataHash    [32]byte
	SubmittedAt uint64
	Entropy     uint32
	Verified    bool
	Concluded   bool
	Verifier    [20]byte
	VerifiedAt  uint64
}

type storedRequest struct {
	ID        [32]byte
	AssetID   uint64
	ProofID   [32]byte
	Requester [20]byte
	CreatedAt uint64
	Processed bool
	Outcome   bool
}

func (e *Engine) loadRecord(assetID uint64) (*Record, bool, error) {
	var stored storedRecord
	ok, err := e.state.KVGet(recordKey(assetID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Record{
		ID:          stored.ID,
		AssetID:     stored.AssetID,
		Submitter:   stored.Submitter,
		Signature:   stored.Signature,
		DataHash:    stored.DataHash,
		SubmittedAt: int64(stored.SubmittedAt),
		Entropy:     stored.Entropy,
		Verified:    stored.Verified,
		Concluded:   stored.Concluded,
		Verifier:    stored.Verifier,
		VerifiedAt:  int64(stored.VerifiedAt),
	}, true, nil
}

func (e *Engine) storeRecord(r *Record) error {
	if r.SubmittedAt < 0 || r.VerifiedAt < 0 {
		return fmt.Errorf("proof: negative timestamp")
	}
	return e.state.KVPut(recordKey(r.AssetID), &storedRecord{
		ID:          r.ID,
		AssetID:     r.AssetID,
		Submitter:   r.Submitter,
		Signature:   r.Signature,
		DataHash:    r.DataHash,
		SubmittedAt: uint64(r.SubmittedAt),
		Entropy:     r.Entropy,
		Verified:    r.Verified,
		Concluded:   r.Concluded,
		Verifier:    r.Verifier,
		VerifiedAt:  uint64(r.VerifiedAt),
	})
}

func (e *Engine) loadRequest(id [32]byte) (*Request, bool, error) {
	var stored storedRequest
	ok, err := e.state.KVGet(requestKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Request{
		ID:        stored.ID,
		AssetID:   stored.AssetID,
		ProofID:   stored.ProofID,
		Requester: stored.Requester,
		CreatedAt: int64(stored.CreatedAt),
		Processed: stored.Processed,
		Outcome:   stored.Outcome,
	}, true, nil
}

func (e *Engine) storeRequest(r *Request) error {
	if r.CreatedAt < 0 {
		return fmt.Errorf("proof: negative timestamp")
	}
	return e.state.KVPut(requestKey(r.ID), &storedRequest{
		ID:        r.ID,
		AssetID:   r.AssetID,
		ProofID:   r.ProofID,
		Requester: r.Requester,
		CreatedAt: uint64(r.CreatedAt),
		Processed: r.Processed,
		Outcome:   r.Outcome,
	})
}
