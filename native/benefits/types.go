package benefits

import (
	coreerrors "esimchain/core/errors"
	"esimchain/native/esim"
)

// ModuleName is the pause/metrics label of the benefit calculator.
const ModuleName = "benefits"

// RoleAdmin gates theme configuration and point accrual.
const RoleAdmin = esim.RoleAdmin

// MaxSpeedBoost bounds a theme speed boost in basis points of base
// throughput.
const MaxSpeedBoost uint32 = 10_000

var (
	ErrUnknownTheme       = coreerrors.NotFound("benefits: unknown theme")
	ErrInvalidTheme       = coreerrors.Validation("benefits: invalid theme")
	ErrInvalidBenefit     = coreerrors.Validation("benefits: invalid theme benefit")
	ErrInvalidAmount      = coreerrors.Validation("benefits: invalid amount")
	ErrInsufficientPoints = coreerrors.Exhausted("benefits: insufficient points")
	ErrPointsOverflow     = coreerrors.Validation("benefits: points overflow")
	ErrNotOwner           = coreerrors.Authorization("benefits: caller is not the owner")
)

// Tier is a rarity band.
type Tier uint8

const (
	TierCommon Tier = iota
	TierRare
	TierEpic
	TierLegendary
)

func (t Tier) String() string {
	switch t {
	case TierLegendary:
		return "legendary"
	case TierEpic:
		return "epic"
	case TierRare:
		return "rare"
	default:
		return "common"
	}
}

// Multiplier returns the tier multiplier where 100 is 1.0x.
func (t Tier) Multiplier() uint64 {
	switch t {
	case TierLegendary:
		return 500
	case TierEpic:
		return 300
	case TierRare:
		return 200
	default:
		return 100
	}
}

// TierFor maps a rarity score onto its tier, checking the highest band first.
func TierFor(rarity uint32) Tier {
	switch {
	case rarity >= 950:
		return TierLegendary
	case rarity >= 850:
		return TierEpic
	case rarity >= 700:
		return TierRare
	default:
		return TierCommon
	}
}

// ThemeBenefit is the configurable benefit record of a theme.
type ThemeBenefit struct {
	SpeedBoost       uint32 `json:"speedBoost" yaml:"speedBoost"`
	PriorityRouting  bool   `json:"priorityRouting" yaml:"priorityRouting"`
	DataRollover     bool   `json:"dataRollover" yaml:"dataRollover"`
	PeakHourPriority bool   `json:"peakHourPriority" yaml:"peakHourPriority"`
	QuantumAccess    bool   `json:"quantumAccess" yaml:"quantumAccess"`
}

// Validate checks the benefit bounds.
func (b ThemeBenefit) Validate() error {
	if b.SpeedBoost == 0 || b.SpeedBoost > MaxSpeedBoost {
		return ErrInvalidBenefit
	}
	return nil
}

// DefaultThemeTable returns the built-in theme benefits.
func DefaultThemeTable() map[string]ThemeBenefit {
	return map[string]ThemeBenefit{
		esim.ThemeQuantum: {SpeedBoost: 50, PriorityRouting: true, DataRollover: true, PeakHourPriority: true, QuantumAccess: true},
		esim.ThemeCosmic:  {SpeedBoost: 40, PriorityRouting: true, DataRollover: true},
		esim.ThemeCyber:   {SpeedBoost: 30, DataRollover: true, PeakHourPriority: true},
		esim.ThemeNebula:  {SpeedBoost: 35, PriorityRouting: true},
		esim.ThemeMatrix:  {SpeedBoost: 45, PriorityRouting: true, DataRollover: true, PeakHourPriority: true},
	}
}

// Benefits is the resolved benefit set of a token.
type Benefits struct {
	Theme            string `json:"theme"`
	Tier             string `json:"tier"`
	SpeedMultiplier  uint64 `json:"speedMultiplier"`
	PriorityRouting  bool   `json:"priorityRouting"`
	DataRollover     bool   `json:"dataRollover"`
	PeakHourPriority bool   `json:"peakHourPriority"`
	QuantumAccess    bool   `json:"quantumAccess"`
	BonusPoints      uint64 `json:"bonusPoints"`
}

// Calculate resolves the benefits of a theme at the given rarity. The speed
// multiplier keeps the unit of the theme boost.
func Calculate(theme string, benefit ThemeBenefit, rarity uint32, bonusPoints uint64) Benefits {
	tier := TierFor(rarity)
	return Benefits{
		Theme:            theme,
		Tier:             tier.String(),
		SpeedMultiplier:  uint64(benefit.SpeedBoost) * tier.Multiplier() / 100,
		PriorityRouting:  benefit.PriorityRouting,
		DataRollover:     benefit.DataRollover,
		PeakHourPriority: benefit.PeakHourPriority,
		QuantumAccess:    benefit.QuantumAccess,
		BonusPoints:      bonusPoints,
	}
}
