package common

import (
	"math"

	coreerrors "esimchain/core/errors"
)

var (
	ErrQuotaRequestsExceeded = coreerrors.Exhausted("quota requests exceeded")
	ErrQuotaCapExceeded      = coreerrors.Exhausted("quota cap exceeded")
	ErrQuotaCounterOverflow  = coreerrors.Validation("quota counter overflow")
)

// QuotaNow captures the usage counters of one subject inside a window.
type QuotaNow struct {
	ReqCount uint32
	Used     uint64
	WindowID uint64
}

// Quota defines the limits enforced per window. Zero limits are not enforced.
type Quota struct {
	MaxRequests   uint32
	MaxAmount     uint64
	WindowSeconds uint32
}

// WindowID maps a unix timestamp onto the window that contains it.
func (q Quota) WindowID(now int64) uint64 {
	if now < 0 {
		return 0
	}
	if q.WindowSeconds == 0 {
		return uint64(now)
	}
	return uint64(now) / uint64(q.WindowSeconds)
}

// CheckQuota verifies whether the additional request and amount fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on rejection prev is returned unchanged.
func CheckQuota(q Quota, window uint64, prev QuotaNow, addReq uint32, addAmount uint64) (QuotaNow, error) {
	next := prev
	if prev.WindowID != window {
		next = QuotaNow{WindowID: window}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequests > 0 && next.ReqCount > q.MaxRequests {
		return prev, ErrQuotaRequestsExceeded
	}

	if addAmount > 0 {
		if next.Used > math.MaxUint64-addAmount {
			return prev, ErrQuotaCounterOverflow
		}
		next.Used += addAmount
	}
	if q.MaxAmount > 0 && next.Used > q.MaxAmount {
		return prev, ErrQuotaCapExceeded
	}

	return next, nil
}
