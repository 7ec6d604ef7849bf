package esim

import "fmt"

var (
	tokenPrefix = []byte("esim/token/")
	ownerPrefix = []byte("esim/owner/")
	nextIDKey   = []byte("esim/next-id")
)

func tokenKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", tokenPrefix, id))
}

func ownerKey(owner [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", ownerPrefix, owner))
}

type storedToken struct {
	ID          uint64
	Owner       [20]byte
	Bandwidth   uint64
	ActivatedAt uint64
	ExpiresAt   uint64
	Status      uint8
	Theme       string
	Rarity      uint32
	Fingerprint [32]byte
}

func (r *Registry) loadStored(id uint64) (*Token, error) {
	var stored storedToken
	ok, err := r.state.KVGet(tokenKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &Token{
		ID:          stored.ID,
		Owner:       stored.Owner,
		Bandwidth:   stored.Bandwidth,
		ActivatedAt: int64(stored.ActivatedAt),
		ExpiresAt:   int64(stored.ExpiresAt),
		Status:      Status(stored.Status),
		Theme:       stored.Theme,
		Rarity:      stored.Rarity,
		Fingerprint: stored.Fingerprint,
	}, nil
}

func (r *Registry) storeToken(t *Token) error {
	if t.ActivatedAt < 0 || t.ExpiresAt < 0 {
		return fmt.Errorf("esim: negative timestamp")
	}
	return r.state.KVPut(tokenKey(t.ID), &storedToken{
		ID:          t.ID,
		Owner:       t.Owner,
		Bandwidth:   t.Bandwidth,
		ActivatedAt: uint64(t.ActivatedAt),
		ExpiresAt:   uint64(t.ExpiresAt),
		Status:      uint8(t.Status),
		Theme:       t.Theme,
		Rarity:      t.Rarity,
		Fingerprint: t.Fingerprint,
	})
}

func (r *Registry) nextID() (uint64, error) {
	var last uint64
	if _, err := r.state.KVGet(nextIDKey, &last); err != nil {
		return 0, err
	}
	last++
	if err := r.state.KVPut(nextIDKey, last); err != nil {
		return 0, err
	}
	return last, nil
}

func (r *Registry) ownerAssets(owner [20]byte) ([]uint64, error) {
	var ids []uint64
	if _, err := r.state.KVGet(ownerKey(owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Registry) appendOwnerAsset(owner [20]byte, id uint64) error {
	ids, err := r.ownerAssets(owner)
	if err != nil {
		return err
	}
	ids = append(ids, id)
	return r.state.KVPut(ownerKey(owner), ids)
}

func (r *Registry) removeOwnerAsset(owner [20]byte, id uint64) error {
	ids, err := r.ownerAssets(owner)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return r.state.KVPut(ownerKey(owner), out)
}
