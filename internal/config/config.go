package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LevelTrace sits below slog.LevelDebug for very chatty output
const LevelTrace = slog.LevelDebug - 4

type Config struct {
	// Log level: trace, debug, info, warn or error
	LogLevel string

	// Blockchain client binary and extra arguments ( e.g. geth --dev )
	BlockchainClient string
	BlockchainArgs   []string
	DataDir          string

	// RPC endpoint exposed by the blockchain client
	RPCHost string
	RPCPort int

	// Optional TLS proxy in front of the RPC endpoint ( 0 disables it )
	ProxyPort int
	TLSKey    string
	TLSCert   string

	// How long to wait for the client RPC endpoint to answer
	ReadyTimeout time.Duration

	// Compiled contracts manifest ( JSON )
	ContractsFile string

	// Tracked deployments store ( empty means in-memory )
	DatabaseURL string

	// Status API port ( 0 disables the server )
	APIPort int

	// Name resolution: on-chain ENS registry and/or static name=address pairs
	ENSRegistry string
	ENSNames    map[string]string

	// Directory receiving generated contract bindings ( empty disables it )
	BindingsDir string

	// Deployer account override
	DefaultAccount string
}

// Load returns the configuration for the tool, read from the environment
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BlockchainClient: getEnv("BLOCKCHAIN_CLIENT", "geth"),
		BlockchainArgs:   getEnvAsList("BLOCKCHAIN_ARGS", []string{"--dev"}),
		DataDir:          getEnv("BLOCKCHAIN_DATADIR", ".embark/development/datadir"),

		RPCHost: getEnv("RPC_HOST", "localhost"),
		RPCPort: getEnvAsInt("RPC_PORT", 8545),

		ProxyPort: getEnvAsInt("PROXY_PORT", 0),
		TLSKey:    getEnv("TLS_KEY", ""),
		TLSCert:   getEnv("TLS_CERT", ""),

		ReadyTimeout: time.Duration(getEnvAsInt("READY_TIMEOUT_SEC", 60)) * time.Second,

		ContractsFile: getEnv("CONTRACTS_FILE", "contracts.json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		APIPort:       getEnvAsInt("API_PORT", 0),

		ENSRegistry: getEnv("ENS_REGISTRY", ""),
		ENSNames:    getEnvAsMap("ENS_NAMES"),

		BindingsDir:    getEnv("BINDINGS_DIR", ""),
		DefaultAccount: getEnv("DEFAULT_ACCOUNT", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BlockchainClient == "" {
		return fmt.Errorf("BLOCKCHAIN_CLIENT is required")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("RPC_PORT must be between 1 and 65535, got %d", c.RPCPort)
	}
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return fmt.Errorf("PROXY_PORT must be between 0 and 65535, got %d", c.ProxyPort)
	}
	if c.ProxyPort != 0 && c.ProxyPort == c.RPCPort {
		return fmt.Errorf("PROXY_PORT must differ from RPC_PORT")
	}
	if c.ContractsFile == "" {
		return fmt.Errorf("CONTRACTS_FILE is required")
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("READY_TIMEOUT_SEC must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RPCURL returns the HTTP endpoint of the blockchain client
func (c *Config) RPCURL() string {
	return fmt.Sprintf("http://%s:%d", c.RPCHost, c.RPCPort)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// getEnvAsList splits a space separated value
func getEnvAsList(key string, defaultVal []string) []string {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	return strings.Fields(valStr)
}

// getEnvAsMap parses "name=value,name2=value2"
func getEnvAsMap(key string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		result[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return result
}
