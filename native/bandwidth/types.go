package bandwidth

import (
	coreerrors "esimchain/core/errors"
)

// ModuleName is the pause/metrics label of the allocation meter.
const ModuleName = "bandwidth"

// RoleAdmin may act on any asset's allocation.
const RoleAdmin = "admin"

const (
	// HourSeconds is the width of a usage bucket.
	HourSeconds = 3600
	// HourlyDivisor splits an allocation into its hourly cap.
	HourlyDivisor = 24
)

var (
	ErrInvalidAmount      = coreerrors.Validation("bandwidth: invalid amount")
	ErrInvalidDuration    = coreerrors.Validation("bandwidth: invalid duration")
	ErrAllocationActive   = coreerrors.Conflict("bandwidth: allocation active")
	ErrAllocationInactive = coreerrors.Conflict("bandwidth: allocation inactive")
	ErrUnverifiedProof    = coreerrors.Conflict("bandwidth: unverified proof")
	ErrLocked             = coreerrors.Conflict("bandwidth: asset locked by bridge")
	ErrNotAuthorized      = coreerrors.Authorization("bandwidth: not authorized")
	ErrAllocationExpired  = coreerrors.Temporal("bandwidth: allocation expired")
	ErrExceedsAllocation  = coreerrors.Exhausted("bandwidth: exceeds allocation")
	ErrRateLimitExceeded  = coreerrors.Exhausted("bandwidth: rate limit exceeded")
	ErrAllocationNotFound = coreerrors.NotFound("bandwidth: allocation not found")
)

// Allocation is a time-bounded bandwidth grant bound to a verified proof.
type Allocation struct {
	AssetID   uint64   `json:"assetId"`
	Amount    uint64   `json:"amount"`
	Consumed  uint64   `json:"consumed"`
	StartTime int64    `json:"startTime"`
	EndTime   int64    `json:"endTime"`
	ProofID   [32]byte `json:"proofId"`
	Active    bool     `json:"active"`
}

// Clone returns a copy of the allocation.
func (a *Allocation) Clone() *Allocation {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// HourlyCap is the most that may be consumed inside one hour bucket.
func (a *Allocation) HourlyCap() uint64 {
	if a == nil {
		return 0
	}
	return a.Amount / HourlyDivisor
}

// Remaining is the unconsumed part of the allocation.
func (a *Allocation) Remaining() uint64 {
	if a == nil || a.Consumed >= a.Amount {
		return 0
	}
	return a.Amount - a.Consumed
}

// Usage is the metering snapshot of an asset.
type Usage struct {
	Allocation *Allocation `json:"allocation"`
	HourBucket uint64      `json:"hourBucket"`
	HourUsed   uint64      `json:"hourUsed"`
	HourlyCap  uint64      `json:"hourlyCap"`
	Remaining  uint64      `json:"remaining"`
}

// HourBucket maps a unix timestamp onto its hour bucket.
func HourBucket(now int64) uint64 {
	if now < 0 {
		return 0
	}
	return uint64(now) / HourSeconds
}
