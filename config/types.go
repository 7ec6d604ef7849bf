package config

// Proof configures the proof ledger.
type Proof struct {
	MinEntropy           uint32 `toml:"MinEntropy"`
	VerificationTimelock string `toml:"VerificationTimelock"`
}

// Bridge configures the bridge coordinator.
type Bridge struct {
	Cooldown          string `toml:"Cooldown"`
	CompletionEntropy uint32 `toml:"CompletionEntropy"`
}

// Market configures marketplace settlement.
type Market struct {
	FeeRate uint32 `toml:"FeeRate"`
}

// Policy captures how suspended assets are treated by trading and bridging.
type Policy struct {
	SuspendedTradable   bool `toml:"SuspendedTradable"`
	SuspendedBridgeable bool `toml:"SuspendedBridgeable"`
}

// Oracle configures the external proof validity and entropy oracle. An empty
// endpoint selects the in-process scorer.
type Oracle struct {
	Endpoint      string `toml:"Endpoint"`
	Timeout       string `toml:"Timeout"`
	MaxRetries    uint64 `toml:"MaxRetries"`
	TripThreshold uint32 `toml:"TripThreshold"`
}

// RPC configures the JSON-RPC surface. Insecure trusts the caller parameter
// when no JWT secret is configured and is meant for local development only.
type RPC struct {
	JWTSecret         string  `toml:"JWTSecret"`
	JWTSecretEnv      string  `toml:"JWTSecretEnv"`
	Insecure          bool    `toml:"Insecure"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
	ReadTimeout       string  `toml:"ReadTimeout"`
	WriteTimeout      string  `toml:"WriteTimeout"`
}

// NATS configures the event fan-out to a NATS subject.
type NATS struct {
	URL     string `toml:"URL"`
	Subject string `toml:"Subject"`
}

// Journal configures the SQL audit journal of committed events.
type Journal struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Webhook configures signed HTTP delivery of committed events.
type Webhook struct {
	URL        string   `toml:"URL"`
	Secret     string   `toml:"Secret"`
	EventTypes []string `toml:"EventTypes"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Logging configures the structured logger and its optional rotating file.
type Logging struct {
	Level      string `toml:"Level"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}
