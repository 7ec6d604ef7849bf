package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"esimchain/core"
	"esimchain/crypto"
	"esimchain/storage"
)

const testJWTSecret = "rpc-test-secret"

type testEnv struct {
	node   *core.Node
	events *Broadcaster
	server *Server
	http   *httptest.Server
	admin  [20]byte
	alice  [20]byte
}

func testAccount(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	out[19] = b
	return out
}

func newTestEnv(t testing.TB, cfg ServerConfig) *testEnv {
	t.Helper()
	env := &testEnv{admin: testAccount(0xA1), alice: testAccount(0xB2)}
	env.events = NewBroadcaster(nil)
	nodeCfg := core.DefaultConfig()
	nodeCfg.Admins = [][20]byte{env.admin}
	nodeCfg.Verifiers = [][20]byte{env.admin}
	node, err := core.NewNode(storage.NewMemDB(), nodeCfg, core.WithEmitter(env.events))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	env.node = node
	env.server = NewServer(node, env.events, cfg)
	env.http = httptest.NewServer(env.server.Handler())
	t.Cleanup(env.http.Close)
	return env
}

func signToken(t testing.TB, subject [20]byte) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": crypto.AccountAddress(subject).String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type rpcReply struct {
	status int
	resp   struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
}

func (env *testEnv) call(t testing.TB, token, method string, params interface{}) rpcReply {
	t.Helper()
	body := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	var reply rpcReply
	reply.status = res.StatusCode
	if err := json.NewDecoder(res.Body).Decode(&reply.resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return reply
}

func (r rpcReply) decode(t testing.TB, dst interface{}) {
	t.Helper()
	if r.resp.Error != nil {
		t.Fatalf("unexpected rpc error %d: %s", r.resp.Error.Code, r.resp.Error.Message)
	}
	if err := json.Unmarshal(r.resp.Result, dst); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func mintParams(owner [20]byte, signature string) map[string]interface{} {
	return map[string]interface{}{
		"owner":           crypto.AccountAddress(owner).String(),
		"bandwidth":       500,
		"signature":       signature,
		"theme":           "cosmic",
		"rarity":          720,
		"validitySeconds": int64(30 * 24 * time.Hour / time.Second),
	}
}
