package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"esimchain/core"
	"esimchain/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress           string   `toml:"RPCAddress"`
	DataDir              string   `toml:"DataDir"`
	StorageBackend       string   `toml:"StorageBackend"`
	Environment          string   `toml:"Environment"`
	LogFile              string   `toml:"LogFile"`
	OperatorKeystorePath string   `toml:"OperatorKeystorePath"`
	AdminAccounts        []string `toml:"AdminAccounts"`
	VerifierAccounts     []string `toml:"VerifierAccounts"`
	PlatformAccount      string   `toml:"PlatformAccount"`
	BridgeHoldingAccount string   `toml:"BridgeHoldingAccount,omitempty"`
	ThemesFile           string   `toml:"ThemesFile,omitempty"`

	Proof     Proof     `toml:"Proof"`
	Bridge    Bridge    `toml:"Bridge"`
	Market    Market    `toml:"Market"`
	Policy    Policy    `toml:"Policy"`
	Oracle    Oracle    `toml:"Oracle"`
	RPC       RPC       `toml:"RPC"`
	NATS      NATS      `toml:"NATS"`
	Journal   Journal   `toml:"Journal"`
	Webhook   Webhook   `toml:"Webhook"`
	Telemetry Telemetry `toml:"Telemetry"`
	Logging   Logging   `toml:"Logging"`
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithKeystorePassphrase sets the passphrase protecting the operator keystore
// generated alongside a default configuration.
func WithKeystorePassphrase(passphrase string) LoadOption {
	return WithKeystorePassphraseSource(func() (string, error) { return passphrase, nil })
}

// WithKeystorePassphraseSource resolves the keystore passphrase lazily. The
// source is only consulted when a default configuration must be generated.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated default.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var options loadOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		var passphrase string
		if options.passphrase != nil {
			if passphrase, err = options.passphrase(); err != nil {
				return nil, fmt.Errorf("keystore passphrase: %w", err)
			}
		}
		return createDefault(path, passphrase)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0].String())
	}

	if cfg.AdminAccounts == nil {
		cfg.AdminAccounts = []string{}
	}
	if cfg.VerifierAccounts == nil {
		cfg.VerifierAccounts = []string{}
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration defaults without touching the disk.
func Default() *Config {
	return &Config{
		RPCAddress:       ":8080",
		DataDir:          "./esim-data",
		StorageBackend:   "leveldb",
		Environment:      "dev",
		AdminAccounts:    []string{},
		VerifierAccounts: []string{},
		Proof:            Proof{MinEntropy: 80, VerificationTimelock: "5m"},
		Bridge:           Bridge{Cooldown: "1h", CompletionEntropy: 95},
		Market:           Market{FeeRate: 25},
		Oracle:           Oracle{Timeout: "10s", MaxRetries: 3, TripThreshold: 5},
		RPC:              RPC{RequestsPerMinute: 600, Burst: 60, ReadTimeout: "15s", WriteTimeout: "15s"},
		NATS:             NATS{Subject: "esim.events"},
		Journal:          Journal{Driver: "sqlite"},
		Logging:          Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
}

// createDefault creates and saves a default configuration file. An operator
// key is generated and granted the admin and verifier roles, and a random RPC
// signing secret is written so that mutating methods require a token.
func createDefault(path, passphrase string) (*Config, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("keystore passphrase required to create %s", path)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate rpc secret: %w", err)
	}

	cfg := Default()
	operator := key.PubKey().Address().String()
	cfg.RPC.JWTSecret = hex.EncodeToString(secret)
	cfg.OperatorKeystorePath = keystorePath
	cfg.AdminAccounts = []string{operator}
	cfg.VerifierAccounts = []string{operator}
	cfg.PlatformAccount = operator

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}

// JWTSecret resolves the RPC signing secret, preferring the configured
// environment variable over the inline value.
func (c *Config) JWTSecret() string {
	if env := strings.TrimSpace(c.RPC.JWTSecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.RPC.JWTSecret)
}

// NodeConfig converts the file configuration into the ledger configuration.
// Theme overrides are loaded from ThemesFile when set.
func (c *Config) NodeConfig() (core.Config, error) {
	out := core.DefaultConfig()

	timelock, err := parseDuration("Proof.VerificationTimelock", c.Proof.VerificationTimelock)
	if err != nil {
		return out, err
	}
	cooldown, err := parseDuration("Bridge.Cooldown", c.Bridge.Cooldown)
	if err != nil {
		return out, err
	}
	out.Proof.MinEntropy = c.Proof.MinEntropy
	out.Proof.VerificationTimelock = timelock
	out.Bridge.Cooldown = cooldown
	out.Bridge.CompletionEntropy = c.Bridge.CompletionEntropy
	out.Bridge.SuspendedBridgeable = c.Policy.SuspendedBridgeable
	out.Market.FeeRate = c.Market.FeeRate
	out.Market.SuspendedTradable = c.Policy.SuspendedTradable

	if out.Admins, err = parseAccounts("AdminAccounts", c.AdminAccounts); err != nil {
		return out, err
	}
	if out.Verifiers, err = parseAccounts("VerifierAccounts", c.VerifierAccounts); err != nil {
		return out, err
	}
	if strings.TrimSpace(c.PlatformAccount) != "" {
		if out.Market.Platform, err = crypto.ParseAccount(c.PlatformAccount); err != nil {
			return out, fmt.Errorf("invalid PlatformAccount: %w", err)
		}
	}
	if strings.TrimSpace(c.BridgeHoldingAccount) != "" {
		if out.Bridge.HoldingAccount, err = crypto.ParseAccount(c.BridgeHoldingAccount); err != nil {
			return out, fmt.Errorf("invalid BridgeHoldingAccount: %w", err)
		}
	}
	if strings.TrimSpace(c.ThemesFile) != "" {
		if out.Themes, err = LoadThemes(c.ThemesFile); err != nil {
			return out, err
		}
	}
	return out, nil
}

// OracleTimeout returns the parsed oracle request timeout.
func (c *Config) OracleTimeout() (time.Duration, error) {
	return parseDuration("Oracle.Timeout", c.Oracle.Timeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return d, nil
}

func parseAccounts(field string, values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for i, value := range values {
		account, err := crypto.ParseAccount(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s[%d]: %w", field, i, err)
		}
		out = append(out, account)
	}
	return out, nil
}

// RPCTimeouts returns the parsed RPC read and write timeouts.
func (c *Config) RPCTimeouts() (time.Duration, time.Duration, error) {
	read, err := parseDuration("RPC.ReadTimeout", c.RPC.ReadTimeout)
	if err != nil {
		return 0, 0, err
	}
	write, err := parseDuration("RPC.WriteTimeout", c.RPC.WriteTimeout)
	if err != nil {
		return 0, 0, err
	}
	return read, write, nil
}
