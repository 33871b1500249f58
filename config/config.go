// Package config holds the service configuration: defaults, validation, and
// the TOML template written by `proofapi init`.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config defines the top level configuration for the proof API node.
type Config struct {
	BaseConfig `mapstructure:",squash"`

	RPC             *RPCConfig             `mapstructure:"rpc"`
	Provider        *ProviderConfig        `mapstructure:"provider"`
	Proof           *ProofConfig           `mapstructure:"proof"`
	Cache           *CacheConfig           `mapstructure:"cache"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		RPC:             DefaultRPCConfig(),
		Provider:        DefaultProviderConfig(),
		Proof:           DefaultProofConfig(),
		Cache:           DefaultCacheConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Provider.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [provider] section: %w", err)
	}
	if err := cfg.Proof.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [proof] section: %w", err)
	}
	if err := cfg.Cache.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [cache] section: %w", err)
	}
	return nil
}

// BaseConfig defines the base configuration.
type BaseConfig struct {
	// LogLevel is the minimum level to log at (debug, info, warn, error).
	LogLevel string `mapstructure:"log-level"`

	// LogFormat is either "plain" or "json".
	LogFormat string `mapstructure:"log-format"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  "info",
		LogFormat: "plain",
	}
}

// RPCConfig defines the configuration for the HTTP server.
type RPCConfig struct {
	// ListenAddr is the TCP address the server binds to.
	ListenAddr string `mapstructure:"laddr"`

	// RateLimit is the sustained per-IP request rate; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate-limit"`

	// RateBurst is the per-IP burst allowance.
	RateBurst int `mapstructure:"rate-burst"`

	// Whitelist lists IPs exempt from rate limiting.
	Whitelist []string `mapstructure:"whitelist"`
}

func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddr: "0.0.0.0:10000",
		RateLimit:  50,
		RateBurst:  100,
	}
}

func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.ListenAddr == "" {
		return errors.New("laddr must be set")
	}
	if cfg.RateLimit < 0 {
		return errors.New("rate-limit can't be negative")
	}
	if cfg.RateBurst < 0 {
		return errors.New("rate-burst can't be negative")
	}
	return nil
}

// ProviderConfig points at the block data node the proofs are built from.
type ProviderConfig struct {
	// Remote is the base URL of the node's JSON API.
	Remote string `mapstructure:"remote"`

	// Timeout bounds a single upstream request.
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Remote:  "http://127.0.0.1:8081",
		Timeout: 10 * time.Second,
	}
}

func (cfg *ProviderConfig) ValidateBasic() error {
	u, err := url.Parse(cfg.Remote)
	if err != nil {
		return fmt.Errorf("invalid remote: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid remote %q: unsupported scheme", cfg.Remote)
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// ProofConfig tunes the proof chain builder.
type ProofConfig struct {
	// NetworkID identifies the chain the node serves.
	NetworkID uint32 `mapstructure:"network-id"`

	// MaxHops bounds the proof chain length.
	MaxHops int `mapstructure:"max-hops"`

	// RequireTxHash makes the transaction hash mandatory in requests.
	RequireTxHash bool `mapstructure:"require-tx-hash"`

	// FetchAttempts is how many times a transient upstream failure is
	// retried.
	FetchAttempts int `mapstructure:"fetch-attempts"`

	// RetryDelay is the base backoff between retries.
	RetryDelay time.Duration `mapstructure:"retry-delay"`
}

func DefaultProofConfig() *ProofConfig {
	return &ProofConfig{
		NetworkID:     1,
		MaxHops:       1024,
		FetchAttempts: 5,
		RetryDelay:    500 * time.Millisecond,
	}
}

func (cfg *ProofConfig) ValidateBasic() error {
	if cfg.MaxHops <= 0 {
		return errors.New("max-hops must be positive")
	}
	if cfg.FetchAttempts <= 0 {
		return errors.New("fetch-attempts must be positive")
	}
	if cfg.RetryDelay <= 0 {
		return errors.New("retry-delay must be positive")
	}
	return nil
}

// CacheConfig tunes the proof cache.
type CacheConfig struct {
	// TTL is how long a finished build outcome is retained.
	TTL time.Duration `mapstructure:"ttl"`

	// SweepInterval is how often expired entries are compacted away.
	SweepInterval time.Duration `mapstructure:"sweep-interval"`

	// BuildTimeout bounds one detached build.
	BuildTimeout time.Duration `mapstructure:"build-timeout"`
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:           10 * time.Minute,
		SweepInterval: time.Minute,
		BuildTimeout:  2 * time.Minute,
	}
}

func (cfg *CacheConfig) ValidateBasic() error {
	if cfg.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("sweep-interval must be positive")
	}
	if cfg.BuildTimeout <= 0 {
		return errors.New("build-timeout must be positive")
	}
	return nil
}

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// Prometheus exposes the /metrics endpoint when true.
	Prometheus bool `mapstructure:"prometheus"`

	// Namespace is the metrics namespace.
	Namespace string `mapstructure:"namespace"`
}

func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus: false,
		Namespace:  "proofapi",
	}
}
