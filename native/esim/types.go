package esim

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ModuleName is the pause/metrics label of the asset registry.
const ModuleName = "esim"

// RoleAdmin gates minting, suspension and bandwidth updates.
const RoleAdmin = "admin"

const (
	MinBandwidth      uint64 = 1
	MaxBandwidth      uint64 = 1_000_000
	MinValidityPeriod        = 24 * time.Hour
	MaxValidityPeriod        = 365 * 24 * time.Hour
	MinRarity         uint32 = 1
	MaxRarity         uint32 = 1000
)

// Built-in themes.
const (
	ThemeQuantum = "quantum"
	ThemeCosmic  = "cosmic"
	ThemeCyber   = "cyber"
	ThemeNebula  = "nebula"
	ThemeMatrix  = "matrix"
)

// DefaultThemes lists the built-in themes in registration order.
func DefaultThemes() []string {
	return []string{ThemeQuantum, ThemeCosmic, ThemeCyber, ThemeNebula, ThemeMatrix}
}

// NormalizeTheme canonicalises a theme tag: trimmed, lower-cased and NFKC
// folded so visually identical tags share one table entry.
func NormalizeTheme(theme string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(theme)))
}

// Status is the lifecycle state of a token.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusSuspended
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Token is an eSIM asset. Theme and rarity never change after mint.
type Token struct {
	ID          uint64
	Owner       [20]byte
	Bandwidth   uint64
	ActivatedAt int64
	ExpiresAt   int64
	Status      Status
	Theme       string
	Rarity      uint32
	Fingerprint [32]byte
}

// Clone returns a copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// ExpiredAt reports whether the token has reached its expiration at now.
func (t *Token) ExpiredAt(now int64) bool {
	return t != nil && now >= t.ExpiresAt
}

// MintParams describes a mint request. Theme and Rarity are derived from the
// signature when left empty.
type MintParams struct {
	Owner          [20]byte
	Bandwidth      uint64
	Signature      []byte
	Theme          string
	Rarity         uint32
	ValidityPeriod time.Duration
}

// Validate checks the static bounds of the request.
func (p MintParams) Validate() error {
	if p.Owner == ([20]byte{}) {
		return ErrInvalidOwner
	}
	if p.Bandwidth < MinBandwidth || p.Bandwidth > MaxBandwidth {
		return ErrInvalidBandwidth
	}
	if p.ValidityPeriod < MinValidityPeriod || p.ValidityPeriod > MaxValidityPeriod {
		return ErrInvalidValidityPeriod
	}
	if p.Rarity != 0 && p.Rarity > MaxRarity {
		return ErrInvalidRarity
	}
	if len(p.Signature) == 0 {
		return ErrInvalidSignature
	}
	return nil
}
