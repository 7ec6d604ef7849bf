package common

import (
	"errors"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequests: 10}
	prev := QuotaNow{WindowID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.WindowID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaHourlyCap(t *testing.T) {
	q := Quota{MaxAmount: 2400 / 24, WindowSeconds: 3600}
	window := q.WindowID(7200 + 59)
	if window != 2 {
		t.Fatalf("unexpected window id %d", window)
	}
	if _, err := CheckQuota(q, window, QuotaNow{}, 0, 101); !errors.Is(err, ErrQuotaCapExceeded) {
		t.Fatalf("expected cap exceeded for 101, got %v", err)
	}
	next, err := CheckQuota(q, window, QuotaNow{}, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Used != 100 || next.WindowID != 2 {
		t.Fatalf("unexpected counters %+v", next)
	}
	if _, err := CheckQuota(q, window, next, 0, 1); !errors.Is(err, ErrQuotaCapExceeded) {
		t.Fatalf("expected cap exceeded within the same window, got %v", err)
	}
	rolled, err := CheckQuota(q, window+1, next, 0, 100)
	if err != nil || rolled.Used != 100 {
		t.Fatalf("expected fresh window, got %+v (%v)", rolled, err)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := QuotaNow{WindowID: 3, Used: ^uint64(0)}
	if _, err := CheckQuota(Quota{}, 3, prev, 0, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

type roles map[[20]byte]string

func (r roles) HasRole(role string, addr [20]byte) bool { return r[addr] == role }

type paused bool

func (p paused) IsPaused(string) bool { return bool(p) }

func TestGuards(t *testing.T) {
	var admin [20]byte
	admin[0] = 1
	view := roles{admin: "admin"}
	if err := RequireRole(view, "admin", admin); err != nil {
		t.Fatalf("expected admin to pass: %v", err)
	}
	if err := RequireRole(view, "verifier", admin); !errors.Is(err, ErrCapabilityMissing) {
		t.Fatalf("expected capability missing, got %v", err)
	}
	if err := RequireRole(nil, "admin", admin); !errors.Is(err, ErrCapabilityMissing) {
		t.Fatalf("expected nil view to deny, got %v", err)
	}
	if err := Guard(paused(true), "market"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	if err := Guard(paused(false), "market"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
