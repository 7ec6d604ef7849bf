package esim

import (
	"errors"
	"testing"
	"time"

	"esimchain/core/state"
	"esimchain/native/proof"
	"esimchain/storage"
)

type fixture struct {
	registry *Registry
	state    *state.Manager
	clock    int64
	admin    [20]byte
	owner    [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: state.NewManager(storage.NewMemDB()), clock: 1_700_000_000}
	f.admin[0] = 0xAD
	f.owner[0] = 0x01
	if err := f.state.SetRole(RoleAdmin, f.admin, true); err != nil {
		t.Fatalf("grant admin: %v", err)
	}
	ledger := proof.NewEngine()
	ledger.SetState(f.state)
	f.registry = NewRegistry()
	f.registry.SetState(f.state)
	f.registry.SetReplayGuard(ledger)
	f.registry.SetNowFunc(func() int64 { return f.clock })
	return f
}

func (f *fixture) mint(t *testing.T, sig string) *Token {
	t.Helper()
	token, err := f.registry.Mint(f.admin, MintParams{
		Owner:          f.owner,
		Bandwidth:      100,
		Signature:      []byte(sig),
		ValidityPeriod: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t)
	base := MintParams{Owner: f.owner, Bandwidth: 10, Signature: []byte("s"), ValidityPeriod: 24 * time.Hour}
	cases := []struct {
		name   string
		mutate func(*MintParams)
		want   error
	}{
		{"zero bandwidth", func(p *MintParams) { p.Bandwidth = 0 }, ErrInvalidBandwidth},
		{"bandwidth too high", func(p *MintParams) { p.Bandwidth = MaxBandwidth + 1 }, ErrInvalidBandwidth},
		{"validity too short", func(p *MintParams) { p.ValidityPeriod = 23 * time.Hour }, ErrInvalidValidityPeriod},
		{"validity too long", func(p *MintParams) { p.ValidityPeriod = 366 * 24 * time.Hour }, ErrInvalidValidityPeriod},
		{"unknown theme", func(p *MintParams) { p.Theme = "retro" }, ErrInvalidTheme},
		{"rarity too high", func(p *MintParams) { p.Rarity = 1001 }, ErrInvalidRarity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := base
			tc.mutate(&params)
			if _, err := f.registry.Mint(f.admin, params); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := f.registry.Mint(f.owner, base); err == nil {
		t.Fatalf("expected non-admin mint to fail")
	}
}

func TestMintConsumesSignature(t *testing.T) {
	f := newFixture(t)
	first := f.mint(t, "quantum-proof")
	if first.ID != 1 || first.Status != StatusActive {
		t.Fatalf("unexpected token %+v", first)
	}
	if first.Rarity < MinRarity || first.Rarity > MaxRarity {
		t.Fatalf("derived rarity out of range: %d", first.Rarity)
	}
	for i := 0; i < 3; i++ {
		f.clock += 10
		_, err := f.registry.Mint(f.admin, MintParams{
			Owner:          f.owner,
			Bandwidth:      5,
			Signature:      []byte("quantum-proof"),
			ValidityPeriod: 24 * time.Hour,
		})
		if !errors.Is(err, ErrDuplicateProof) {
			t.Fatalf("attempt %d: expected duplicate proof, got %v", i, err)
		}
	}
	second := f.mint(t, "other-proof")
	if second.ID != 2 {
		t.Fatalf("expected sequential ids, got %d", second.ID)
	}
	ids, err := f.registry.OwnerAssets(f.owner)
	if err != nil || len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected owner assets %v (%v)", ids, err)
	}
}

func TestDerivedAttributesAreDeterministic(t *testing.T) {
	themes := DefaultThemes()
	a1, r1 := deriveAttributes([]byte("sig"), 42, themes)
	a2, r2 := deriveAttributes([]byte("sig"), 42, themes)
	if a1 != a2 || r1 != r2 {
		t.Fatalf("derivation must be stable")
	}
}

func TestSuspendReactivateRoundTrip(t *testing.T) {
	f := newFixture(t)
	minted := f.mint(t, "sig")
	if _, err := f.registry.Reactivate(f.admin, minted.ID); !errors.Is(err, ErrNotSuspended) {
		t.Fatalf("expected not suspended, got %v", err)
	}
	if _, err := f.registry.Suspend(f.admin, minted.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.registry.UpdateBandwidth(f.admin, minted.ID, 50); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	restored, err := f.registry.Reactivate(f.admin, minted.ID)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if *restored != *minted {
		t.Fatalf("round trip changed token: %+v vs %+v", restored, minted)
	}
}

func TestExpiredIsTerminal(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t, "sig")
	if _, err := f.registry.Expire(token.ID); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected not expired, got %v", err)
	}
	f.clock = token.ExpiresAt
	loaded, err := f.registry.Token(token.ID)
	if err != nil || loaded.Status != StatusExpired {
		t.Fatalf("expected lazy expiry, got %+v (%v)", loaded, err)
	}
	if _, err := f.registry.Suspend(f.admin, token.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("suspend: expected expired, got %v", err)
	}
	if _, err := f.registry.Reactivate(f.admin, token.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("reactivate: expected expired, got %v", err)
	}
	if _, err := f.registry.UpdateBandwidth(f.admin, token.ID, 10); !errors.Is(err, ErrNotActive) {
		t.Fatalf("update: expected not active, got %v", err)
	}
	if _, err := f.registry.RequireUsable(token.ID, true); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired token to be unusable, got %v", err)
	}
	if _, err := f.registry.Expire(token.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := f.registry.Expire(token.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected second expire to fail, got %v", err)
	}
	if _, err := f.registry.UpdateBandwidth(f.admin, token.ID, token.Bandwidth+1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("update after expire: expected not active, got %v", err)
	}
	stored, err := f.registry.Token(token.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != StatusExpired || stored.Bandwidth != token.Bandwidth {
		t.Fatalf("expired token changed: %+v", stored)
	}
}

func TestTransferMaintainsIndexes(t *testing.T) {
	f := newFixture(t)
	a := f.mint(t, "a")
	b := f.mint(t, "b")
	var buyer [20]byte
	buyer[0] = 0x02
	if _, err := f.registry.Transfer(a.ID, buyer, f.owner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := f.registry.Transfer(a.ID, f.owner, buyer); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	ownerIDs, _ := f.registry.OwnerAssets(f.owner)
	buyerIDs, _ := f.registry.OwnerAssets(buyer)
	if len(ownerIDs) != 1 || ownerIDs[0] != b.ID {
		t.Fatalf("unexpected seller index %v", ownerIDs)
	}
	if len(buyerIDs) != 1 || buyerIDs[0] != a.ID {
		t.Fatalf("unexpected buyer index %v", buyerIDs)
	}
}

func TestNormalizeTheme(t *testing.T) {
	cases := map[string]string{
		"  Quantum ": ThemeQuantum,
		"COSMIC":     ThemeCosmic,
		"ｃｙｂｅｒ":      ThemeCyber,
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeTheme(in); got != want {
			t.Fatalf("NormalizeTheme(%q) = %q, want %q", in, got, want)
		}
	}
}
