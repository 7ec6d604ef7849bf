package market

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"time"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/native/common"
	"esimchain/native/esim"
	"esimchain/native/fees"
	"esimchain/native/proof"
)

var errNilState = errors.New("market engine: state not configured")

const (
	EventTypeListed       = "market.listed"
	EventTypePriceUpdated = "market.price_updated"
	EventTypeDelisted     = "market.delisted"
	EventTypeSold         = "market.sold"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	IsPaused(module string) bool
}

type registryView interface {
	RequireUsable(assetID uint64, allowSuspended bool) (*esim.Token, error)
	Transfer(assetID uint64, from, to [20]byte) (*esim.Token, error)
}

type lockView interface {
	IsLocked(assetID uint64) (bool, error)
}

// settlement is the value rail used to pay sellers and the platform.
type settlement interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Engine runs listings and sales. Every purchase validates first, then clears
// the listing and moves ownership, then settles value and finally emits.
type Engine struct {
	state    engineState
	registry registryView
	locks    lockView
	bank     settlement
	config   Config
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine creates a marketplace with default configuration.
func NewEngine() *Engine {
	return &Engine{
		config:  DefaultConfig(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the asset registry used for ownership moves.
func (e *Engine) SetRegistry(registry registryView) { e.registry = registry }

// SetLocks configures the bridge lock view.
func (e *Engine) SetLocks(locks lockView) { e.locks = locks }

// SetSettlement configures the value rail.
func (e *Engine) SetSettlement(bank settlement) { e.bank = bank }

// SetConfig overrides fee and policy settings.
func (e *Engine) SetConfig(cfg Config) { e.config = cfg }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) mutable() error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.registry == nil || e.bank == nil {
		return errors.New("market engine: dependencies not configured")
	}
	return common.Guard(e.state, ModuleName)
}

// tradable returns the token when it may change hands under the configured
// policy.
func (e *Engine) tradable(assetID uint64) (*esim.Token, error) {
	token, err := e.registry.RequireUsable(assetID, e.config.SuspendedTradable)
	if err != nil {
		return nil, err
	}
	if e.locks != nil {
		locked, err := e.locks.IsLocked(assetID)
		if err != nil {
			return nil, err
		}
		if locked {
			return nil, ErrLocked
		}
	}
	return token, nil
}

// List opens a public listing at price.
func (e *Engine) List(caller [20]byte, assetID uint64, price *big.Int) (*Listing, error) {
	return e.list(caller, assetID, price, false, nil)
}

// ListPrivate opens a listing restricted to buyers. A zero address among
// buyers admits anyone.
func (e *Engine) ListPrivate(caller [20]byte, assetID uint64, price *big.Int, buyers [][20]byte) (*Listing, error) {
	if len(buyers) == 0 {
		return nil, ErrNoBuyers
	}
	return e.list(caller, assetID, price, true, buyers)
}

func (e *Engine) list(caller [20]byte, assetID uint64, price *big.Int, private bool, buyers [][20]byte) (*Listing, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	token, err := e.tradable(assetID)
	if err != nil {
		return nil, err
	}
	if token.Owner != caller {
		return nil, ErrNotOwner
	}
	if _, ok, err := e.loadListing(assetID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyListed
	}
	listing := &Listing{
		AssetID:  assetID,
		Seller:   caller,
		Price:    new(big.Int).Set(price),
		ListedAt: e.now(),
		Private:  private,
	}
	if private {
		listing.AuthorizedBuyers = dedupe(buyers)
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	evt := listingEvent(EventTypeListed, listing)
	evt.Attributes["private"] = strconv.FormatBool(private)
	e.emit(evt)
	return listing.Clone(), nil
}

// UpdatePrice reprices an open listing and records the previous price.
func (e *Engine) UpdatePrice(caller [20]byte, assetID uint64, price *big.Int) (*Listing, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	listing, ok, err := e.loadListing(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotListed
	}
	if listing.Seller != caller {
		return nil, ErrNotOwner
	}
	if _, err := e.tradable(assetID); err != nil {
		return nil, err
	}
	history, err := e.loadHistory(assetID)
	if err != nil {
		return nil, err
	}
	history.Prices = append(history.Prices, new(big.Int).Set(listing.Price))
	listing.Price = new(big.Int).Set(price)
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	if err := e.storeHistory(history); err != nil {
		return nil, err
	}
	e.emit(listingEvent(EventTypePriceUpdated, listing))
	return listing.Clone(), nil
}

// Delist withdraws an open listing. It is allowed whatever the token status
// so that sellers can clean up after expiry.
func (e *Engine) Delist(caller [20]byte, assetID uint64) error {
	if err := e.mutable(); err != nil {
		return err
	}
	listing, ok, err := e.loadListing(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotListed
	}
	if listing.Seller != caller {
		return ErrNotOwner
	}
	if err := e.state.KVDelete(listingKey(assetID)); err != nil {
		return err
	}
	e.emit(listingEvent(EventTypeDelisted, listing))
	return nil
}

// Buy purchases a public listing.
func (e *Engine) Buy(caller [20]byte, assetID uint64, payment *big.Int) (*Sale, error) {
	listing, err := e.validatePurchase(caller, assetID, payment)
	if err != nil {
		return nil, err
	}
	if listing.Private {
		return nil, ErrPrivateListing
	}
	return e.settle(caller, listing, payment)
}

// BuyPrivate purchases a private listing. The buyer presents an oracle
// verdict for its proof and must be authorised by the listing.
func (e *Engine) BuyPrivate(caller [20]byte, assetID uint64, payment *big.Int, verdict proof.Result) (*Sale, error) {
	listing, err := e.validatePurchase(caller, assetID, payment)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid {
		return nil, ErrInvalidProof
	}
	if !listing.Authorizes(caller) {
		return nil, ErrNotAuthorized
	}
	return e.settle(caller, listing, payment)
}

func (e *Engine) validatePurchase(caller [20]byte, assetID uint64, payment *big.Int) (*Listing, error) {
	if err := e.mutable(); err != nil {
		return nil, err
	}
	listing, ok, err := e.loadListing(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotListed
	}
	if payment == nil || payment.Cmp(listing.Price) < 0 {
		return nil, ErrInsufficientPayment
	}
	if caller == listing.Seller {
		return nil, ErrSelfPurchase
	}
	token, err := e.tradable(assetID)
	if err != nil {
		return nil, err
	}
	if token.Owner != listing.Seller {
		return nil, ErrNotListed
	}
	balance, err := e.bank.Balance(caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(payment) < 0 {
		return nil, ErrInsufficientFunds
	}
	return listing, nil
}

func (e *Engine) settle(buyer [20]byte, listing *Listing, payment *big.Int) (*Sale, error) {
	split, err := fees.Apply(fees.ApplyInput{
		Domain: fees.DomainMarket,
		Gross:  payment,
		Config: fees.DomainPolicy{Rate: e.config.FeeRate, RouteWallet: e.config.Platform},
	})
	if err != nil {
		return nil, err
	}
	history, err := e.loadHistory(listing.AssetID)
	if err != nil {
		return nil, err
	}

	// State first: the listing disappears together with the ownership move.
	if err := e.state.KVDelete(listingKey(listing.AssetID)); err != nil {
		return nil, err
	}
	if _, err := e.registry.Transfer(listing.AssetID, listing.Seller, buyer); err != nil {
		return nil, err
	}
	history.PreviousOwners = append(history.PreviousOwners, listing.Seller)
	history.Prices = append(history.Prices, new(big.Int).Set(listing.Price))
	history.TransferCount++
	if err := e.storeHistory(history); err != nil {
		return nil, err
	}
	sale := &Sale{
		AssetID:      listing.AssetID,
		Seller:       listing.Seller,
		Buyer:        buyer,
		Payment:      new(big.Int).Set(payment),
		Fee:          split.Fee,
		SellerAmount: split.Net,
		Timestamp:    e.now(),
	}
	if _, err := e.appendSale(sale); err != nil {
		return nil, err
	}
	if err := e.addTotals(payment, split); err != nil {
		return nil, err
	}

	// Value second.
	if err := e.bank.Transfer(buyer, listing.Seller, split.Net); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(buyer, split.RouteWallet, split.Fee); err != nil {
		return nil, err
	}

	e.emit(saleEvent(sale))
	return sale, nil
}

// Listing returns the open listing of assetID.
func (e *Engine) Listing(assetID uint64) (*Listing, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	return e.loadListing(assetID)
}

// IsListed reports whether assetID has an open listing.
func (e *Engine) IsListed(assetID uint64) (bool, error) {
	_, ok, err := e.Listing(assetID)
	return ok, err
}

// History returns the trading history of assetID.
func (e *Engine) History(assetID uint64) (*History, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadHistory(assetID)
}

func dedupe(buyers [][20]byte) [][20]byte {
	seen := make(map[[20]byte]struct{}, len(buyers))
	out := make([][20]byte, 0, len(buyers))
	for _, b := range buyers {
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

func listingEvent(eventType string, l *Listing) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"assetId": strconv.FormatUint(l.AssetID, 10),
			"seller":  "0x" + hex.EncodeToString(l.Seller[:]),
			"price":   l.Price.String(),
		},
	}
}

func saleEvent(s *Sale) *types.Event {
	return &types.Event{
		Type: EventTypeSold,
		Attributes: map[string]string{
			"assetId":      strconv.FormatUint(s.AssetID, 10),
			"seller":       "0x" + hex.EncodeToString(s.Seller[:]),
			"buyer":        "0x" + hex.EncodeToString(s.Buyer[:]),
			"payment":      s.Payment.String(),
			"fee":          s.Fee.String(),
			"sellerAmount": s.SellerAmount.String(),
		},
	}
}
