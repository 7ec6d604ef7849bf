package esim

import (
	"encoding/binary"
	"errors"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/native/common"
)

var (
	errNilState  = errors.New("esim registry: state not configured")
	errNilReplay = errors.New("esim registry: replay guard not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr [20]byte) bool
	IsPaused(module string) bool
}

// replayGuard is the global set of consumed proof signatures.
type replayGuard interface {
	SignatureConsumed(signature []byte) (bool, error)
	ConsumeSignature(signature []byte, assetID uint64) error
}

// themeCatalog lists the themes a token may carry.
type themeCatalog interface {
	Themes() ([]string, error)
}

// Registry owns eSIM tokens, their status machine and owner indexes.
type Registry struct {
	state   engineState
	replay  replayGuard
	themes  themeCatalog
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a registry with a no-op emitter.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state engineState) { r.state = state }

// SetReplayGuard configures the consumed-signature set checked on mint.
func (r *Registry) SetReplayGuard(guard replayGuard) { r.replay = guard }

// SetThemeCatalog configures the registered theme list. Without a catalog the
// built-in themes apply.
func (r *Registry) SetThemeCatalog(catalog themeCatalog) { r.themes = catalog }

// SetNowFunc overrides the time source used by the registry.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(events.Wrap(evt))
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	return nil
}

func (r *Registry) admin(caller [20]byte) error {
	if err := common.Guard(r.state, ModuleName); err != nil {
		return err
	}
	return common.RequireRole(r.state, RoleAdmin, caller)
}

func (r *Registry) registeredThemes() ([]string, error) {
	if r.themes == nil {
		return DefaultThemes(), nil
	}
	themes, err := r.themes.Themes()
	if err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		return DefaultThemes(), nil
	}
	return themes, nil
}

// deriveAttributes picks a theme and rarity from the mint signature and
// timestamp. The result is stable for identical inputs.
func deriveAttributes(signature []byte, ts int64, themes []string) (string, uint32) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	digest := ethcrypto.Keccak256(signature, buf[:])
	theme := themes[binary.BigEndian.Uint64(digest[0:8])%uint64(len(themes))]
	rarity := uint32(binary.BigEndian.Uint64(digest[8:16])%uint64(MaxRarity)) + MinRarity
	return theme, rarity
}

// Mint creates an active token for params.Owner. The proof signature is
// consumed so that it can never back another mint.
func (r *Registry) Mint(caller [20]byte, params MintParams) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if r.replay == nil {
		return nil, errNilReplay
	}
	if err := r.admin(caller); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	themes, err := r.registeredThemes()
	if err != nil {
		return nil, err
	}
	now := r.now()
	derivedTheme, derivedRarity := deriveAttributes(params.Signature, now, themes)
	theme := derivedTheme
	if params.Theme != "" {
		theme = NormalizeTheme(params.Theme)
		known := false
		for _, t := range themes {
			if t == theme {
				known = true
				break
			}
		}
		if !known {
			return nil, ErrInvalidTheme
		}
	}
	rarity := derivedRarity
	if params.Rarity != 0 {
		rarity = params.Rarity
	}
	consumed, err := r.replay.SignatureConsumed(params.Signature)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, ErrDuplicateProof
	}
	id, err := r.nextID()
	if err != nil {
		return nil, err
	}
	token := &Token{
		ID:          id,
		Owner:       params.Owner,
		Bandwidth:   params.Bandwidth,
		ActivatedAt: now,
		ExpiresAt:   now + int64(params.ValidityPeriod/time.Second),
		Status:      StatusActive,
		Theme:       theme,
		Rarity:      rarity,
		Fingerprint: ethcrypto.Keccak256Hash(params.Signature),
	}
	if err := r.storeToken(token); err != nil {
		return nil, err
	}
	if err := r.appendOwnerAsset(token.Owner, id); err != nil {
		return nil, err
	}
	if err := r.replay.ConsumeSignature(params.Signature, id); err != nil {
		return nil, err
	}
	r.emit(newMintedEvent(token))
	return token.Clone(), nil
}

// UpdateBandwidth changes the bandwidth of an active token.
func (r *Registry) UpdateBandwidth(caller [20]byte, assetID uint64, bandwidth uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := r.admin(caller); err != nil {
		return nil, err
	}
	if bandwidth < MinBandwidth || bandwidth > MaxBandwidth {
		return nil, ErrInvalidBandwidth
	}
	token, err := r.load(assetID)
	if err != nil {
		return nil, err
	}
	if token.Status != StatusActive {
		return nil, ErrNotActive
	}
	previous := token.Bandwidth
	token.Bandwidth = bandwidth
	if err := r.storeToken(token); err != nil {
		return nil, err
	}
	r.emit(newBandwidthUpdatedEvent(token, previous))
	return token.Clone(), nil
}

// Suspend moves an active token to Suspended.
func (r *Registry) Suspend(caller [20]byte, assetID uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := r.admin(caller); err != nil {
		return nil, err
	}
	token, err := r.load(assetID)
	if err != nil {
		return nil, err
	}
	switch token.Status {
	case StatusExpired:
		return nil, ErrExpired
	case StatusActive:
	default:
		return nil, ErrNotActive
	}
	token.Status = StatusSuspended
	if err := r.storeToken(token); err != nil {
		return nil, err
	}
	r.emit(newStatusEvent(EventTypeSuspended, token))
	return token.Clone(), nil
}

// Reactivate returns a suspended token to Active. Tokens past their
// expiration cannot be reactivated.
func (r *Registry) Reactivate(caller [20]byte, assetID uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := r.admin(caller); err != nil {
		return nil, err
	}
	token, err := r.load(assetID)
	if err != nil {
		return nil, err
	}
	switch token.Status {
	case StatusExpired:
		return nil, ErrExpired
	case StatusSuspended:
	default:
		return nil, ErrNotSuspended
	}
	token.Status = StatusActive
	if err := r.storeToken(token); err != nil {
		return nil, err
	}
	r.emit(newStatusEvent(EventTypeReactivated, token))
	return token.Clone(), nil
}

// Expire persists the Expired status of a token past its expiration. Anyone
// may call it.
func (r *Registry) Expire(assetID uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(r.state, ModuleName); err != nil {
		return nil, err
	}
	stored, err := r.loadStored(assetID)
	if err != nil {
		return nil, err
	}
	if stored.Status == StatusExpired {
		return nil, ErrExpired
	}
	if !stored.ExpiredAt(r.now()) {
		return nil, ErrNotExpired
	}
	stored.Status = StatusExpired
	if err := r.storeToken(stored); err != nil {
		return nil, err
	}
	r.emit(newStatusEvent(EventTypeExpired, stored))
	return stored.Clone(), nil
}

// Token returns the token with its status coerced to Expired once past its
// expiration.
func (r *Registry) Token(assetID uint64) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.load(assetID)
}

// RequireActive returns the token when it is active, otherwise the error
// describing why it is not.
func (r *Registry) RequireActive(assetID uint64) (*Token, error) {
	return r.RequireUsable(assetID, false)
}

// RequireUsable is RequireActive with an optional allowance for suspended
// tokens. Expired tokens are never usable.
func (r *Registry) RequireUsable(assetID uint64, allowSuspended bool) (*Token, error) {
	token, err := r.Token(assetID)
	if err != nil {
		return nil, err
	}
	switch token.Status {
	case StatusActive:
		return token, nil
	case StatusSuspended:
		if allowSuspended {
			return token, nil
		}
		return nil, ErrNotActive
	case StatusExpired:
		return nil, ErrExpired
	default:
		return nil, ErrNotActive
	}
}

// OwnerAssets lists the tokens held by owner in acquisition order.
func (r *Registry) OwnerAssets(owner [20]byte) ([]uint64, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.ownerAssets(owner)
}

// Transfer moves ownership of assetID from one account to another. It is the
// single ownership write used by the marketplace and the bridge.
func (r *Registry) Transfer(assetID uint64, from, to [20]byte) (*Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if to == ([20]byte{}) {
		return nil, ErrInvalidOwner
	}
	token, err := r.load(assetID)
	if err != nil {
		return nil, err
	}
	if token.Owner != from {
		return nil, ErrNotOwner
	}
	if from == to {
		return token, nil
	}
	token.Owner = to
	if err := r.storeToken(token); err != nil {
		return nil, err
	}
	if err := r.removeOwnerAsset(from, assetID); err != nil {
		return nil, err
	}
	if err := r.appendOwnerAsset(to, assetID); err != nil {
		return nil, err
	}
	r.emit(newTransferredEvent(token, from))
	return token.Clone(), nil
}

func (r *Registry) load(assetID uint64) (*Token, error) {
	token, err := r.loadStored(assetID)
	if err != nil {
		return nil, err
	}
	if token.Status != StatusExpired && token.ExpiredAt(r.now()) {
		token.Status = StatusExpired
	}
	return token, nil
}
