package rpc

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"

	"esimchain/core/events"
	"esimchain/core/types"
	"esimchain/crypto"
	"esimchain/native/esim"
)

func authConfig() ServerConfig {
	return ServerConfig{Auth: AuthConfig{HMACSecret: testJWTSecret}}
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	for _, path := range []string{"/healthz", "/metrics"} {
		res, err := http.Get(env.http.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, res.StatusCode)
		}
		if path == "/healthz" && string(body) != "ok" {
			t.Fatalf("unexpected health body %q", body)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	reply := env.call(t, "", "wallet_send", nil)
	if reply.status != http.StatusNotFound || reply.resp.Error == nil || reply.resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %d %+v", reply.status, reply.resp.Error)
	}
}

func TestMutatingMethodRequiresToken(t *testing.T) {
	env := newTestEnv(t, authConfig())
	reply := env.call(t, "", "esim_mint", mintParams(env.alice, "0x01"))
	if reply.status != http.StatusUnauthorized || reply.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", reply.status, reply.resp.Error)
	}
	reply = env.call(t, "not-a-jwt", "esim_mint", mintParams(env.alice, "0x01"))
	if reply.status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for malformed token, got %d", reply.status)
	}

	// Reads stay open.
	reply = env.call(t, "", "node_status", nil)
	if reply.status != http.StatusOK {
		t.Fatalf("expected node_status without token, got %d", reply.status)
	}
}

func TestMintAndReadThroughRPC(t *testing.T) {
	env := newTestEnv(t, authConfig())
	adminToken := signToken(t, env.admin)

	var token TokenResult
	env.call(t, adminToken, "esim_mint", mintParams(env.alice, "0xdeadbeef")).decode(t, &token)
	if token.ID != 1 || token.Theme != "cosmic" || token.Status != "active" {
		t.Fatalf("unexpected token: %+v", token)
	}
	aliceAddr := crypto.AccountAddress(env.alice).String()
	if token.Owner != aliceAddr {
		t.Fatalf("unexpected owner %s", token.Owner)
	}

	var details DetailsResult
	env.call(t, "", "esim_getDetails", map[string]interface{}{"assetId": 1}).decode(t, &details)
	if details.Benefits.Tier != "rare" || details.Benefits.SpeedMultiplier != 80 {
		t.Fatalf("unexpected benefits: %+v", details.Benefits)
	}
	if details.Proof != nil || details.Listing != nil || details.Lock != nil {
		t.Fatalf("expected empty optional sections: %+v", details)
	}

	var assets []uint64
	env.call(t, "", "esim_getOwnerAssets", map[string]interface{}{"owner": aliceAddr}).decode(t, &assets)
	if len(assets) != 1 || assets[0] != 1 {
		t.Fatalf("unexpected owner assets %v", assets)
	}

	var status StatusResult
	env.call(t, "", "node_status", nil).decode(t, &status)
	if status.Height == 0 || !strings.HasPrefix(status.Root, "0x") {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestErrorClassMapping(t *testing.T) {
	env := newTestEnv(t, authConfig())
	adminToken := signToken(t, env.admin)

	bad := mintParams(env.alice, "0x01")
	bad["bandwidth"] = 0
	reply := env.call(t, adminToken, "esim_mint", bad)
	if reply.status != http.StatusBadRequest || reply.resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected validation error, got %d %+v", reply.status, reply.resp.Error)
	}
	data, _ := json.Marshal(reply.resp.Error.Data)
	if !strings.Contains(string(data), `"class":"validation"`) {
		t.Fatalf("expected class in error data, got %s", data)
	}

	reply = env.call(t, signToken(t, env.alice), "esim_mint", mintParams(env.alice, "0x02"))
	if reply.status != http.StatusForbidden || reply.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected authorization error, got %d %+v", reply.status, reply.resp.Error)
	}

	reply = env.call(t, "", "esim_getToken", map[string]interface{}{"assetId": 99})
	if reply.status != http.StatusNotFound || reply.resp.Error.Code != codeNotFound {
		t.Fatalf("expected not found, got %d %+v", reply.status, reply.resp.Error)
	}

	env.call(t, adminToken, "esim_mint", mintParams(env.alice, "0x03"))
	reply = env.call(t, adminToken, "esim_mint", mintParams(env.alice, "0x03"))
	if reply.status != http.StatusConflict || reply.resp.Error.Code != codeConflict {
		t.Fatalf("expected conflict on replayed signature, got %d %+v", reply.status, reply.resp.Error)
	}

	reply = env.call(t, "", "esim_getToken", map[string]interface{}{"assetId": 1, "unexpected": true})
	if reply.status != http.StatusBadRequest || reply.resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected params rejection, got %d %+v", reply.status, reply.resp.Error)
	}
}

func TestMintRejectsOverflowingValidity(t *testing.T) {
	env := newTestEnv(t, authConfig())
	adminToken := signToken(t, env.admin)

	// 2^55 + 30 days in seconds wraps to exactly 30 days once multiplied to
	// nanoseconds.
	for _, seconds := range []int64{36028797021555968, math.MaxInt64, -1} {
		params := mintParams(env.alice, "0x0c")
		params["validitySeconds"] = seconds
		reply := env.call(t, adminToken, "esim_mint", params)
		if reply.status != http.StatusBadRequest || reply.resp.Error == nil || reply.resp.Error.Code != codeInvalidParams {
			t.Fatalf("validitySeconds %d: expected validation error, got %d %+v", seconds, reply.status, reply.resp.Error)
		}
	}
	if _, err := env.node.EsimToken(1); err == nil {
		t.Fatalf("asset must not be minted")
	}

	if d, err := validityPeriod(int64(esim.MaxValidityPeriod / time.Second)); err != nil || d != esim.MaxValidityPeriod {
		t.Fatalf("upper bound must be accepted, got %v (%v)", d, err)
	}
}

func TestTokenWithoutSubjectIsRejected(t *testing.T) {
	env := newTestEnv(t, authConfig())
	claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	params := mintParams(env.alice, "0x0a")
	params["caller"] = crypto.AccountAddress(env.admin).String()
	reply := env.call(t, token, "esim_mint", params)
	if reply.status != http.StatusUnauthorized || reply.resp.Error == nil || reply.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", reply.status, reply.resp.Error)
	}
	if _, err := env.node.EsimToken(1); err == nil {
		t.Fatalf("asset must not be minted")
	}
}

func TestServerWithoutSecretRefusesMutations(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	params := mintParams(env.alice, "0x0a")
	params["caller"] = crypto.AccountAddress(env.admin).String()
	reply := env.call(t, "", "esim_mint", params)
	if reply.status != http.StatusUnauthorized || reply.resp.Error == nil || reply.resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %d %+v", reply.status, reply.resp.Error)
	}
	if _, err := env.node.EsimToken(1); err == nil {
		t.Fatalf("asset must not be minted")
	}
	if reply := env.call(t, "", "node_status", nil); reply.status != http.StatusOK {
		t.Fatalf("reads stay open, got %d", reply.status)
	}
}

func TestInsecureServerTrustsCallerParam(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Insecure: true})
	params := mintParams(env.alice, "0x0a")
	params["caller"] = crypto.AccountAddress(env.admin).String()
	var token TokenResult
	env.call(t, "", "esim_mint", params).decode(t, &token)
	if token.ID != 1 {
		t.Fatalf("unexpected token id %d", token.ID)
	}

	delete(params, "caller")
	params["signature"] = "0x0b"
	reply := env.call(t, "", "esim_mint", params)
	if reply.status != http.StatusBadRequest {
		t.Fatalf("expected missing caller rejection, got %d", reply.status)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 1}})
	if reply := env.call(t, "", "node_status", nil); reply.status != http.StatusOK {
		t.Fatalf("first call: unexpected status %d", reply.status)
	}
	reply := env.call(t, "", "node_status", nil)
	if reply.status != http.StatusTooManyRequests || reply.resp.Error.Code != codeRateLimited {
		t.Fatalf("expected throttling, got %d %+v", reply.status, reply.resp.Error)
	}
}

func TestWebsocketStreamsCommittedEvents(t *testing.T) {
	env := newTestEnv(t, authConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?types=esim"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	deadline := time.Now().Add(2 * time.Second)
	for env.events.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.call(t, signToken(t, env.admin), "esim_mint", mintParams(env.alice, "0x77"))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if msg.Type != "esim.minted" || msg.Attributes["assetId"] != "1" {
		t.Fatalf("unexpected frame: %+v", msg)
	}
}

func TestBroadcasterFiltersAndDrops(t *testing.T) {
	b := NewBroadcaster(nil)
	all, cancelAll := b.Subscribe(nil)
	defer cancelAll()
	market, cancelMarket := b.Subscribe([]string{"market"})

	b.Emit(events.Wrap(&types.Event{Type: "esim.minted", Attributes: map[string]string{"assetId": "1"}}))
	b.Emit(events.Wrap(&types.Event{Type: "market.sold", Attributes: map[string]string{"assetId": "1"}}))

	if got := (<-all).Type; got != "esim.minted" {
		t.Fatalf("unexpected first event %s", got)
	}
	if got := (<-all).Type; got != "market.sold" {
		t.Fatalf("unexpected second event %s", got)
	}
	if got := (<-market).Type; got != "market.sold" {
		t.Fatalf("filter leaked %s", got)
	}

	cancelMarket()
	cancelMarket()
	if b.Subscribers() != 1 {
		t.Fatalf("expected one subscriber after cancel, got %d", b.Subscribers())
	}

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Emit(events.Wrap(&types.Event{Type: "esim.expired"}))
	}
	if len(all) != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, len(all))
	}
}
