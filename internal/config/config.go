// Package config loads the workspace-level settings that spec.md §6 leaves
// implicit: where the control directory lives, which storage backend and
// model providers are wired up, and the secrets those providers need. It
// follows the same TOML-decode shape as internal/policy's policy.toml
// loader, with a thin environment-variable overlay for values that should
// never be written to disk in plain text (API keys, the vault password).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the resolved set of settings a corerun process needs to start:
// where its workspace lives and how its storage/model dependencies are
// reached. Zero values mean "use the package default" wherever one exists.
type Config struct {
	WorkspaceRoot string

	StorageBackend string // "file" (default) or "mongo"
	MongoURI       string
	MongoDatabase  string

	RedisAddr string // optional; empty means in-process counters only

	DefaultProvider string // "anthropic", "openai", or "bedrock"
	DefaultModel    string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	AWSRegion       string

	VaultPassword string

	OTLPEndpoint string // optional OpenTelemetry collector address
}

// fileConfig mirrors the `[workspace]`/`[storage]`/`[model]`/`[telemetry]`
// tables of corerun.toml. Secrets never appear here: they are read from the
// environment only, in Load, so a committed corerun.toml cannot leak them.
type fileConfig struct {
	Workspace struct {
		Root string `toml:"root"`
	} `toml:"workspace"`
	Storage struct {
		Backend       string `toml:"backend"`
		MongoURI      string `toml:"mongo_uri"`
		MongoDatabase string `toml:"mongo_database"`
		RedisAddr     string `toml:"redis_addr"`
	} `toml:"storage"`
	Model struct {
		DefaultProvider string `toml:"default_provider"`
		DefaultModel    string `toml:"default_model"`
		AWSRegion       string `toml:"aws_region"`
	} `toml:"model"`
	Telemetry struct {
		OTLPEndpoint string `toml:"otlp_endpoint"`
	} `toml:"telemetry"`
}

// Environment variable names consulted by Load. Only secrets and
// deployment-specific overrides live here; structural settings belong in
// corerun.toml.
const (
	EnvWorkspaceRoot = "CORERUN_WORKSPACE_ROOT"
	EnvVaultPassword = "CORERUN_VAULT_PASSWORD"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvMongoURI      = "CORERUN_MONGO_URI"
	EnvRedisAddr     = "CORERUN_REDIS_ADDR"
)

const defaultStorageBackend = "file"

// Load reads corerun.toml at path (if it exists) and overlays environment
// variables on top. A missing file is not an error: defaults plus
// environment overrides are enough to run against the file-backed store
// with no provider configured, which callers can still reject themselves
// if they require one.
func Load(path string) (Config, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if _, decErr := toml.Decode(string(data), &fc); decErr != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, decErr)
		}
	case os.IsNotExist(err):
		// no file on disk; fall through with zero-value fc
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Config{
		WorkspaceRoot:   fc.Workspace.Root,
		StorageBackend:  fc.Storage.Backend,
		MongoURI:        fc.Storage.MongoURI,
		MongoDatabase:   fc.Storage.MongoDatabase,
		RedisAddr:       fc.Storage.RedisAddr,
		DefaultProvider: fc.Model.DefaultProvider,
		DefaultModel:    fc.Model.DefaultModel,
		AWSRegion:       fc.Model.AWSRegion,
		OTLPEndpoint:    fc.Telemetry.OTLPEndpoint,
	}

	applyEnvOverrides(&cfg)

	if cfg.StorageBackend == "" {
		cfg.StorageBackend = defaultStorageBackend
	}
	if cfg.StorageBackend == "mongo" && cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("config: storage.backend is %q but no Mongo URI was set (corerun.toml storage.mongo_uri or %s)", cfg.StorageBackend, EnvMongoURI)
	}

	return cfg, nil
}

// applyEnvOverrides fills in secrets and lets a handful of structural
// settings be overridden without touching corerun.toml, matching how the
// rest of this codebase keeps provider credentials out of files that get
// checked in or synced between machines.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv(EnvWorkspaceRoot); ok {
		cfg.WorkspaceRoot = v
	}
	if v, ok := os.LookupEnv(EnvMongoURI); ok {
		cfg.MongoURI = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok {
		cfg.RedisAddr = v
	}
	cfg.VaultPassword = os.Getenv(EnvVaultPassword)
	cfg.AnthropicAPIKey = os.Getenv(EnvAnthropicKey)
	cfg.OpenAIAPIKey = os.Getenv(EnvOpenAIKey)
}
