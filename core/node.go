package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"esimchain/core/events"
	"esimchain/core/state"
	"esimchain/native/bandwidth"
	"esimchain/native/benefits"
	"esimchain/native/bridge"
	"esimchain/native/esim"
	"esimchain/native/market"
	"esimchain/native/proof"
	"esimchain/observability"
	"esimchain/observability/metrics"
	esimotel "esimchain/observability/otel"
	"esimchain/storage"
)

const (
	// seenFilterCapacity sizes the signature prefilter; it grows past this
	// with a rising false-positive rate, never with false negatives.
	seenFilterCapacity = 1_000_000
	seenFilterFPRate   = 0.001
)

// Config carries the tunables and genesis material of a node.
type Config struct {
	Proof     proof.Config
	Market    market.Config
	Bridge    bridge.Config
	Admins    [][20]byte
	Verifiers [][20]byte
	// Themes overrides or extends the built-in theme table at startup.
	Themes map[string]benefits.ThemeBenefit
}

// DefaultConfig returns the module defaults with no seeded accounts.
func DefaultConfig() Config {
	return Config{
		Proof:  proof.DefaultConfig(),
		Market: market.DefaultConfig(),
		Bridge: bridge.DefaultConfig(),
	}
}

// Node is the central controller, wiring all modules together. Every public
// operation runs under stateMu against a fresh journal which is committed
// atomically or discarded as a whole; events staged during the operation are
// delivered only after the commit.
type Node struct {
	db      storage.Database
	config  Config
	oracle  proof.Oracle
	emitter events.Emitter
	logger  *slog.Logger
	seen    *bloom.BloomFilter
	nowFn   func() time.Time

	stateMu sync.Mutex
}

// Option customises a node at construction.
type Option func(*Node)

// WithOracle sets the proof oracle consulted for bridge and private purchase
// proofs and for submissions without a caller-supplied entropy score.
func WithOracle(oracle proof.Oracle) Option {
	return func(n *Node) {
		if oracle != nil {
			n.oracle = oracle
		}
	}
}

// WithEmitter sets the sink receiving committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(n *Node) {
		if emitter != nil {
			n.emitter = emitter
		}
	}
}

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithClock overrides the wall clock. Tests use it to step through timelocks
// and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		if now != nil {
			n.nowFn = now
		}
	}
}

// NewNode opens the ledger on db, seeds roles and themes from cfg and warms
// the consumed-signature filter. cfg is used as given; start from
// DefaultConfig for the module defaults.
func NewNode(db storage.Database, cfg Config, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: database required")
	}
	n := &Node{
		db:      db,
		config:  cfg,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		seen:    bloom.NewWithEstimates(seenFilterCapacity, seenFilterFPRate),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.bootstrap(); err != nil {
		return nil, err
	}
	return n, nil
}

// bootstrap checks the schema version, seeds genesis roles and themes into an
// empty ledger and loads consumed fingerprints into the prefilter. Once the
// ledger exists, roles and themes change only through governance operations.
func (n *Node) bootstrap() error {
	return n.apply("node", "bootstrap", func(l *ledger) error {
		genesis, err := l.state.EnsureStateVersion()
		if err != nil {
			return err
		}
		if genesis {
			if err := n.seedGenesis(l); err != nil {
				return err
			}
		}
		fingerprints, err := l.proofs.ConsumedFingerprints()
		if err != nil {
			return err
		}
		for _, fp := range fingerprints {
			n.seen.Add(fp[:])
		}
		return nil
	})
}

func (n *Node) seedGenesis(l *ledger) error {
	for _, admin := range n.config.Admins {
		if err := l.state.SetRole(state.RoleAdmin, admin, true); err != nil {
			return err
		}
	}
	for _, verifier := range n.config.Verifiers {
		if err := l.state.SetRole(state.RoleVerifier, verifier, true); err != nil {
			return err
		}
	}
	if len(n.config.Themes) > 0 {
		return l.benefits.SeedThemes(n.config.Themes)
	}
	return nil
}

// ledger is the set of engines bound to one operation's journal.
type ledger struct {
	state    *state.Manager
	proofs   *proof.Engine
	registry *esim.Registry
	benefits *benefits.Engine
	meter    *bandwidth.Meter
	market   *market.Engine
	bridge   *bridge.Coordinator
}

func (n *Node) unixNow() int64 { return n.nowFn().Unix() }

func (n *Node) newLedger(manager *state.Manager, emitter events.Emitter) *ledger {
	l := &ledger{
		state:    manager,
		proofs:   proof.NewEngine(),
		registry: esim.NewRegistry(),
		benefits: benefits.NewEngine(),
		meter:    bandwidth.NewMeter(),
		market:   market.NewEngine(),
		bridge:   bridge.NewCoordinator(),
	}

	l.proofs.SetState(manager)
	l.proofs.SetConfig(n.config.Proof)
	l.proofs.SetSeenFilter(n.seen)
	l.proofs.SetNowFunc(n.unixNow)
	l.proofs.SetEmitter(emitter)

	l.benefits.SetState(manager)
	l.benefits.SetRegistry(l.registry)
	l.benefits.SetEmitter(emitter)

	l.registry.SetState(manager)
	l.registry.SetReplayGuard(l.proofs)
	l.registry.SetThemeCatalog(l.benefits)
	l.registry.SetNowFunc(n.unixNow)
	l.registry.SetEmitter(emitter)

	l.bridge.SetState(manager)
	l.bridge.SetRegistry(l.registry)
	l.bridge.SetListings(l.market)
	l.bridge.SetConfig(n.config.Bridge)
	l.bridge.SetNowFunc(n.unixNow)
	l.bridge.SetEmitter(emitter)

	l.meter.SetState(manager)
	l.meter.SetProofs(l.proofs)
	l.meter.SetRegistry(l.registry)
	l.meter.SetLocks(l.bridge)
	l.meter.SetNowFunc(n.unixNow)
	l.meter.SetEmitter(emitter)

	l.market.SetState(manager)
	l.market.SetRegistry(l.registry)
	l.market.SetLocks(l.bridge)
	l.market.SetSettlement(manager)
	l.market.SetConfig(n.config.Market)
	l.market.SetNowFunc(n.unixNow)
	l.market.SetEmitter(emitter)
	return l
}

// apply runs fn as one atomic ledger operation. A returned error discards
// every staged write and event.
func (n *Node) apply(module, op string, fn func(*ledger) error) error {
	start := time.Now()
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	buffer := &events.Buffer{}
	err := fn(n.newLedger(manager, buffer))
	if err == nil {
		var height uint64
		if _, err = manager.Commit(); err == nil {
			height, err = manager.Height()
			observability.Ledger().SetHeight(height)
		}
		if err != nil {
			err = fmt.Errorf("core: commit %s.%s: %w", module, op, err)
		}
	}
	elapsed := time.Since(start)
	observability.Ledger().RecordOperation(module, op, err, elapsed)
	esimotel.RecordOperation(context.Background(), module, op, err, elapsed)
	if err != nil {
		manager.Discard()
		buffer.Reset()
		n.logger.Debug("operation rejected", "module", module, "op", op, "error", err)
		return err
	}
	staged := buffer.Events()
	buffer.Flush(n.emitter)
	if len(staged) > 0 {
		n.logger.Info("operation committed", "module", module, "op", op, "events", len(staged))
	}
	return nil
}

// view runs fn against committed state without persisting anything.
func (n *Node) view(fn func(*ledger) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := state.NewManager(n.db)
	return fn(n.newLedger(manager, events.NoopEmitter{}))
}

// evaluate asks the oracle for a verdict on proof material. It runs outside
// stateMu so a slow oracle never stalls the ledger.
func (n *Node) evaluate(ctx context.Context, signature []byte, dataHash [32]byte) (proof.Result, error) {
	if n.oracle == nil {
		return proof.Result{}, ErrOracleUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := esimotel.Tracer().Start(ctx, "oracle.evaluate")
	defer span.End()

	start := time.Now()
	verdict, err := n.oracle.Evaluate(ctx, signature, dataHash)
	metrics.Oracle().ObserveCall(verdict.Valid, verdict.Entropy, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return proof.Result{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	span.SetAttributes(
		attribute.Bool("proof.valid", verdict.Valid),
		attribute.Int("proof.entropy", int(verdict.Entropy)),
	)
	return verdict, nil
}

// Status summarises the committed ledger.
type Status struct {
	Height uint64
	Root   common.Hash
	Paused map[string]bool
}

// Status reports the committed height, state root and module pause flags.
func (n *Node) Status() (*Status, error) {
	out := &Status{Paused: make(map[string]bool)}
	err := n.view(func(l *ledger) error {
		height, err := l.state.Height()
		if err != nil {
			return err
		}
		root, err := l.state.Root()
		if err != nil {
			return err
		}
		out.Height = height
		out.Root = root
		for _, module := range Modules() {
			out.Paused[module] = l.state.IsPaused(module)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Config returns the node configuration.
func (n *Node) Config() Config { return n.config }
