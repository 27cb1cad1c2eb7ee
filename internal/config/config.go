package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

type Config struct {
	Server   ServerConfig
	Oracle   OracleConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OracleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type PipelineConfig struct {
	IntervalSeconds float64
	KeepMedia       bool
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenMinutes int
	RefreshTokenDays   int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    8080,
			MCPPort: 8081,
		},
		Oracle: OracleConfig{
			Model: "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Pipeline: PipelineConfig{
			IntervalSeconds: 2.0,
		},
		Auth: AuthConfig{
			AccessTokenMinutes: 60,
			RefreshTokenDays:   7,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.codio.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/codio/config.json
// and secrets live in $XDG_DATA_HOME/codio/secrets.json.
//
// Environment variables (CODIO_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), platformKeychain{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the oracle key if still empty.
	if cfg.Oracle.APIKey == "" {
		if key, err := kc.Get("codio", "oracle_api_key"); err == nil && key != "" {
			cfg.Oracle.APIKey = key
		}
	}
	if cfg.Oracle.APIKey == "" {
		msg := "missing required config: oracle API key. " +
			"Set it via environment variable CODIO_ORACLE_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	// The JWT secret is generated once and persisted so that tokens survive
	// restarts. Persistence failure is tolerated; tokens are then invalidated
	// on every restart.
	if cfg.Auth.JWTSecret == "" {
		if secret, err := kc.Get("codio", "jwt_secret"); err == nil && secret != "" {
			cfg.Auth.JWTSecret = secret
		} else {
			secret, err := randomSecret()
			if err != nil {
				return Config{}, fmt.Errorf("generating JWT secret: %w", err)
			}
			cfg.Auth.JWTSecret = secret
			kc.Set("codio", "jwt_secret", secret)
		}
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// platformKeychain reads and writes the platform secret store.
type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	return keychainGet(service, account)
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
