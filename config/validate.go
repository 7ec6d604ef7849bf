package config

import (
	"fmt"
	"strings"
	"time"

	"esimchain/native/fees"
	"esimchain/native/proof"
)

// Validate rejects out-of-range values before the node is assembled.
func (c *Config) Validate() error {
	if c.Market.FeeRate > fees.RateDenominator {
		return fmt.Errorf("market: fee_rate %d exceeds %d", c.Market.FeeRate, fees.RateDenominator)
	}
	if c.Market.FeeRate > 0 && strings.TrimSpace(c.PlatformAccount) == "" {
		return fmt.Errorf("market: PlatformAccount required when fee_rate is set")
	}
	if c.JWTSecret() == "" && !c.RPC.Insecure {
		return fmt.Errorf("rpc: JWTSecret required unless RPC.Insecure is set")
	}
	if c.Proof.MinEntropy > proof.MaxEntropy {
		return fmt.Errorf("proof: min_entropy %d exceeds %d", c.Proof.MinEntropy, proof.MaxEntropy)
	}
	if c.Bridge.CompletionEntropy > proof.MaxEntropy {
		return fmt.Errorf("bridge: completion_entropy %d exceeds %d", c.Bridge.CompletionEntropy, proof.MaxEntropy)
	}
	cooldown, err := parseDuration("Bridge.Cooldown", c.Bridge.Cooldown)
	if err != nil {
		return err
	}
	if cooldown <= 0 {
		return fmt.Errorf("bridge: cooldown must be positive")
	}
	timelock, err := parseDuration("Proof.VerificationTimelock", c.Proof.VerificationTimelock)
	if err != nil {
		return err
	}
	if timelock < 0 {
		return fmt.Errorf("proof: verification_timelock must not be negative")
	}
	for _, field := range []struct{ name, value string }{
		{"Oracle.Timeout", c.Oracle.Timeout},
		{"RPC.ReadTimeout", c.RPC.ReadTimeout},
		{"RPC.WriteTimeout", c.RPC.WriteTimeout},
	} {
		d, err := parseDuration(field.name, field.value)
		if err != nil {
			return err
		}
		if d < 0 || d > 10*time.Minute {
			return fmt.Errorf("%s out of range", field.name)
		}
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RequestsPerMinute > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("rpc: burst required when requests_per_minute is set")
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "", "leveldb", "bolt", "bbolt", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.StorageBackend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("journal: unknown driver %q", c.Journal.Driver)
	}
	if strings.TrimSpace(c.Webhook.URL) != "" && strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("webhook: secret required when url is set")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}
