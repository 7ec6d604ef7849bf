package benefits

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"regexp"
	"sort"
	"strconv"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/native/common"
	"esimchain/native/esim"
)

var errNilState = errors.New("benefits engine: state not configured")

var themePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

const (
	EventTypeThemeUpdated = "benefits.theme_updated"
	EventTypePointsEarned = "benefits.points_earned"
	EventTypeRedeemed     = "benefits.points_redeemed"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr [20]byte) bool
	IsPaused(module string) bool
}

type registryView interface {
	Token(assetID uint64) (*esim.Token, error)
}

var (
	themesKey    = []byte("benefits/themes")
	themePrefix  = []byte("benefits/theme/")
	pointsPrefix = []byte("benefits/points/")
)

func themeKey(theme string) []byte {
	return []byte(fmt.Sprintf("%s%s", themePrefix, theme))
}

func pointsKey(assetID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", pointsPrefix, assetID))
}

// Engine owns the theme table and the per-asset bonus point ledger.
type Engine struct {
	state    engineState
	registry registryView
	emitter  events.Emitter
}

// NewEngine creates a benefits engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the token reads used for point accrual.
func (e *Engine) SetRegistry(registry registryView) { e.registry = registry }

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

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

// Themes returns the registered theme tags. Before any configuration the
// built-in themes are registered.
func (e *Engine) Themes() ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var tags []string
	ok, err := e.state.KVGet(themesKey, &tags)
	if err != nil {
		return nil, err
	}
	if !ok {
		return esim.DefaultThemes(), nil
	}
	return tags, nil
}

// Theme returns the benefit record of theme.
func (e *Engine) Theme(theme string) (ThemeBenefit, error) {
	if err := e.ready(); err != nil {
		return ThemeBenefit{}, err
	}
	normalized := esim.NormalizeTheme(theme)
	var stored ThemeBenefit
	ok, err := e.state.KVGet(themeKey(normalized), &stored)
	if err != nil {
		return ThemeBenefit{}, err
	}
	if ok {
		return stored, nil
	}
	if benefit, found := DefaultThemeTable()[normalized]; found {
		return benefit, nil
	}
	return ThemeBenefit{}, ErrUnknownTheme
}

// ThemeTable returns every registered theme with its benefits.
func (e *Engine) ThemeTable() (map[string]ThemeBenefit, error) {
	tags, err := e.Themes()
	if err != nil {
		return nil, err
	}
	out := make(map[string]ThemeBenefit, len(tags))
	for _, tag := range tags {
		benefit, err := e.Theme(tag)
		if err != nil {
			return nil, err
		}
		out[tag] = benefit
	}
	return out, nil
}

// UpdateTheme inserts or replaces the benefits of theme. New tags are
// appended to the registered list and become mintable.
func (e *Engine) UpdateTheme(caller [20]byte, theme string, benefit ThemeBenefit) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return err
	}
	if err := common.RequireRole(e.state, RoleAdmin, caller); err != nil {
		return err
	}
	return e.putTheme(theme, benefit)
}

// SeedThemes installs table without a capability check. The node applies it
// once at startup from configuration.
func (e *Engine) SeedThemes(table map[string]ThemeBenefit) error {
	if err := e.ready(); err != nil {
		return err
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.putTheme(name, table[name]); err != nil {
			return fmt.Errorf("theme %q: %w", name, err)
		}
	}
	return nil
}

func (e *Engine) putTheme(theme string, benefit ThemeBenefit) error {
	normalized := esim.NormalizeTheme(theme)
	if !themePattern.MatchString(normalized) {
		return ErrInvalidTheme
	}
	if err := benefit.Validate(); err != nil {
		return err
	}
	tags, err := e.Themes()
	if err != nil {
		return err
	}
	known := false
	for _, tag := range tags {
		if tag == normalized {
			known = true
			break
		}
	}
	if !known {
		tags = append(tags, normalized)
	}
	if err := e.state.KVPut(themesKey, tags); err != nil {
		return err
	}
	if err := e.state.KVPut(themeKey(normalized), &benefit); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: EventTypeThemeUpdated,
		Attributes: map[string]string{
			"theme":      normalized,
			"speedBoost": strconv.FormatUint(uint64(benefit.SpeedBoost), 10),
		},
	})
	return nil
}

// Calculate resolves benefits for an arbitrary theme, rarity and point
// balance against the current theme table.
func (e *Engine) Calculate(theme string, rarity uint32, bonusPoints uint64) (Benefits, error) {
	benefit, err := e.Theme(theme)
	if err != nil {
		return Benefits{}, err
	}
	return Calculate(esim.NormalizeTheme(theme), benefit, rarity, bonusPoints), nil
}

// AssetBenefits resolves the benefits of a minted token.
func (e *Engine) AssetBenefits(assetID uint64) (Benefits, error) {
	token, err := e.token(assetID)
	if err != nil {
		return Benefits{}, err
	}
	points, err := e.BonusPoints(assetID)
	if err != nil {
		return Benefits{}, err
	}
	return e.Calculate(token.Theme, token.Rarity, points)
}

// BonusPoints returns the point balance of assetID.
func (e *Engine) BonusPoints(assetID uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	var points uint64
	if _, err := e.state.KVGet(pointsKey(assetID), &points); err != nil {
		return 0, err
	}
	return points, nil
}

// EarnBonusPoints credits dataUsed*rarity/1000 points to assetID and returns
// the points earned.
func (e *Engine) EarnBonusPoints(caller [20]byte, assetID uint64, dataUsed uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return 0, err
	}
	if err := common.RequireRole(e.state, RoleAdmin, caller); err != nil {
		return 0, err
	}
	if dataUsed == 0 {
		return 0, ErrInvalidAmount
	}
	token, err := e.token(assetID)
	if err != nil {
		return 0, err
	}
	if token.Status == esim.StatusExpired {
		return 0, esim.ErrExpired
	}
	hi, lo := bits.Mul64(dataUsed, uint64(token.Rarity))
	if hi != 0 {
		return 0, ErrPointsOverflow
	}
	earned := lo / 1000
	balance, err := e.BonusPoints(assetID)
	if err != nil {
		return 0, err
	}
	if balance > math.MaxUint64-earned {
		return 0, ErrPointsOverflow
	}
	balance += earned
	if err := e.state.KVPut(pointsKey(assetID), balance); err != nil {
		return 0, err
	}
	e.emit(pointsEvent(EventTypePointsEarned, token, earned, balance))
	return earned, nil
}

// RedeemBonusPoints debits points from assetID. Only the owner may redeem.
func (e *Engine) RedeemBonusPoints(caller [20]byte, assetID uint64, points uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := common.Guard(e.state, ModuleName); err != nil {
		return 0, err
	}
	if points == 0 {
		return 0, ErrInvalidAmount
	}
	token, err := e.token(assetID)
	if err != nil {
		return 0, err
	}
	if token.Owner != caller {
		return 0, ErrNotOwner
	}
	balance, err := e.BonusPoints(assetID)
	if err != nil {
		return 0, err
	}
	if balance < points {
		return 0, ErrInsufficientPoints
	}
	balance -= points
	if err := e.state.KVPut(pointsKey(assetID), balance); err != nil {
		return 0, err
	}
	e.emit(pointsEvent(EventTypeRedeemed, token, points, balance))
	return balance, nil
}

func (e *Engine) token(assetID uint64) (*esim.Token, error) {
	if e.registry == nil {
		return nil, errors.New("benefits engine: registry not configured")
	}
	return e.registry.Token(assetID)
}

func pointsEvent(eventType string, token *esim.Token, amount, balance uint64) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"assetId": strconv.FormatUint(token.ID, 10),
			"owner":   "0x" + hex.EncodeToString(token.Owner[:]),
			"amount":  strconv.FormatUint(amount, 10),
			"balance": strconv.FormatUint(balance, 10),
		},
	}
}
