package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"esimchain/core"
	coreerrors "esimchain/core/errors"
	"esimchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeServerError       = -32000
	codeUnauthorized      = -32001
	codeOracleUnavailable = -32003
	codeNotFound          = -32004
	codeConflict          = -32010
	codeRateLimited       = -32020
	codeTooEarly          = -32030
	codeExhausted         = -32031
)

// ServerConfig configures the JSON-RPC server. Without an auth secret,
// mutating methods are refused unless Insecure is set, in which case the
// caller parameter is trusted.
type ServerConfig struct {
	Auth         AuthConfig
	Insecure     bool
	RateLimit    RateLimit
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

type Server struct {
	node    *core.Node
	events  *Broadcaster
	auth    *Authenticator
	limiter *RateLimiter
	cfg     ServerConfig
	logger  *slog.Logger
	methods map[string]method

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires the JSON-RPC surface over node. events may be nil, in
// which case the websocket stream is not served.
func NewServer(node *core.Node, events *Broadcaster, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		events:  events,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RateLimit),
		cfg:     cfg,
		logger:  logger,
	}
	s.methods = s.routes()
	return s
}

// Handler returns the instrumented HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.events != nil {
		r.Get("/ws", s.handleEventsWS)
	}
	r.Post("/", s.handle)
	r.Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "esim-rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("addr", listener.Addr().String()))
	return srv.Serve(listener)
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// paramsError marks malformed request parameters.
type paramsError struct {
	msg string
}

func (e *paramsError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{msg: fmt.Sprintf(format, args...)}
}

// errorStatus maps a handler error onto its HTTP status and JSON-RPC code.
func errorStatus(err error) (int, int) {
	var pe *paramsError
	if errors.As(err, &pe) {
		return http.StatusBadRequest, codeInvalidParams
	}
	if errors.Is(err, core.ErrOracleUnavailable) {
		return http.StatusServiceUnavailable, codeOracleUnavailable
	}
	switch coreerrors.Classify(err) {
	case coreerrors.ClassValidation:
		return http.StatusBadRequest, codeInvalidParams
	case coreerrors.ClassConflict:
		return http.StatusConflict, codeConflict
	case coreerrors.ClassAuthorization:
		return http.StatusForbidden, codeUnauthorized
	case coreerrors.ClassTemporal:
		return http.StatusTooEarly, codeTooEarly
	case coreerrors.ClassExhausted:
		return http.StatusTooManyRequests, codeExhausted
	case coreerrors.ClassNotFound:
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// call carries one decoded request through its handler.
type call struct {
	ctx     context.Context
	req     *RPCRequest
	subject string
}

func (c *call) decode(dst interface{}) error {
	if len(c.req.Params) == 0 {
		return invalidParams("params object required")
	}
	decoder := json.NewDecoder(bytes.NewReader(c.req.Params[0]))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return invalidParams("invalid params: %v", err)
	}
	return nil
}

// caller resolves the acting account: the authenticated subject, or the
// caller parameter on an insecure server.
func (c *call) caller(param string) ([20]byte, error) {
	if c.subject != "" {
		addr, err := parseAccountParam("token subject", c.subject)
		if err != nil {
			return addr, invalidParams("%v", err)
		}
		return addr, nil
	}
	return accountParam("caller", param)
}

func accountParam(field, value string) ([20]byte, error) {
	addr, err := parseAccountParam(field, value)
	if err != nil {
		return addr, invalidParams("%v", err)
	}
	return addr, nil
}

type method struct {
	mutating bool
	fn       func(*call) (interface{}, error)
}

func methodModule(name string) string {
	if idx := strings.Index(name, "_"); idx > 0 {
		return name[:idx]
	}
	return name
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module := methodModule(req.Method)
	status := http.StatusOK
	defer func() {
		observability.ModuleMetrics().Observe(module, req.Method, status, time.Since(start))
	}()

	m, ok := s.methods[req.Method]
	if !ok {
		status = http.StatusNotFound
		writeError(w, status, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	if !s.limiter.Allow(clientID(r)) {
		status = http.StatusTooManyRequests
		observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
		writeError(w, status, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	c := &call{ctx: r.Context(), req: req}
	if m.mutating {
		switch {
		case s.auth.Enabled():
			subject, err := s.auth.Authenticate(r)
			if err != nil {
				status = http.StatusUnauthorized
				writeError(w, status, req.ID, codeUnauthorized, err.Error(), nil)
				return
			}
			c.subject = subject
		case !s.cfg.Insecure:
			status = http.StatusUnauthorized
			writeError(w, status, req.ID, codeUnauthorized, errAuthDisabled.Error(), nil)
			return
		}
	}

	result, err := m.fn(c)
	if err != nil {
		var code int
		status, code = errorStatus(err)
		data := map[string]string{"class": coreerrors.Classify(err).String()}
		if status >= http.StatusInternalServerError {
			correlation := uuid.NewString()
			data["correlationId"] = correlation
			s.logger.Error("rpc handler failed",
				slog.String("method", req.Method),
				slog.String("correlation_id", correlation),
				slog.Any("error", err))
		}
		writeError(w, status, req.ID, code, err.Error(), data)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) routes() map[string]method {
	return map[string]method{
		"proof_submit":              {mutating: true, fn: s.handleProofSubmit},
		"proof_requestVerification": {mutating: true, fn: s.handleProofRequestVerification},
		"proof_verify":              {mutating: true, fn: s.handleProofVerify},
		"proof_get":                 {fn: s.handleProofGet},
		"proof_getRequest":          {fn: s.handleProofGetRequest},

		"esim_mint":            {mutating: true, fn: s.handleEsimMint},
		"esim_updateBandwidth": {mutating: true, fn: s.handleEsimUpdateBandwidth},
		"esim_suspend":         {mutating: true, fn: s.handleEsimSuspend},
		"esim_reactivate":      {mutating: true, fn: s.handleEsimReactivate},
		"esim_expire":          {mutating: true, fn: s.handleEsimExpire},
		"esim_getToken":        {fn: s.handleEsimGetToken},
		"esim_getDetails":      {fn: s.handleEsimGetDetails},
		"esim_getOwnerAssets":  {fn: s.handleEsimGetOwnerAssets},

		"benefits_calculate":   {fn: s.handleBenefitsCalculate},
		"benefits_get":         {fn: s.handleBenefitsGet},
		"benefits_themes":      {fn: s.handleBenefitsThemes},
		"benefits_earn":        {mutating: true, fn: s.handleBenefitsEarn},
		"benefits_redeem":      {mutating: true, fn: s.handleBenefitsRedeem},
		"benefits_updateTheme": {mutating: true, fn: s.handleBenefitsUpdateTheme},

		"bandwidth_allocate":   {mutating: true, fn: s.handleBandwidthAllocate},
		"bandwidth_consume":    {mutating: true, fn: s.handleBandwidthConsume},
		"bandwidth_activate":   {mutating: true, fn: s.handleBandwidthActivate},
		"bandwidth_deactivate": {mutating: true, fn: s.handleBandwidthDeactivate},
		"bandwidth_getUsage":   {fn: s.handleBandwidthGetUsage},

		"market_list":        {mutating: true, fn: s.handleMarketList},
		"market_listPrivate": {mutating: true, fn: s.handleMarketListPrivate},
		"market_updatePrice": {mutating: true, fn: s.handleMarketUpdatePrice},
		"market_delist":      {mutating: true, fn: s.handleMarketDelist},
		"market_buy":         {mutating: true, fn: s.handleMarketBuy},
		"market_buyPrivate":  {mutating: true, fn: s.handleMarketBuyPrivate},
		"market_getListing":  {fn: s.handleMarketGetListing},
		"market_getHistory":  {fn: s.handleMarketGetHistory},
		"market_getSales":    {fn: s.handleMarketGetSales},
		"market_getTotals":   {fn: s.handleMarketGetTotals},

		"bridge_initiate":          {mutating: true, fn: s.handleBridgeInitiate},
		"bridge_complete":          {mutating: true, fn: s.handleBridgeComplete},
		"bridge_emergencyWithdraw": {mutating: true, fn: s.handleBridgeEmergencyWithdraw},
		"bridge_getTransaction":    {fn: s.handleBridgeGetTransaction},

		"bank_deposit": {mutating: true, fn: s.handleBankDeposit},
		"bank_balance": {fn: s.handleBankBalance},

		"admin_grantRole":   {mutating: true, fn: s.handleAdminGrantRole},
		"admin_revokeRole":  {mutating: true, fn: s.handleAdminRevokeRole},
		"admin_pauseModule": {mutating: true, fn: s.handleAdminPauseModule},
		"admin_roleMembers": {fn: s.handleAdminRoleMembers},

		"node_status": {fn: s.handleNodeStatus},
	}
}
