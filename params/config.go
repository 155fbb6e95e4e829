package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Node struct {
	// DataDir holds the pebble store; empty keeps state in memory only
	DataDir  string `mapstructure:"data_dir"`
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
	APIAddr  string `mapstructure:"api_addr"`

	// Genesis is a JSON file of operations applied at height 1
	Genesis string `mapstructure:"genesis"`

	// BlockTime paces local block production.
	//
	// Recommended values:
	//   - Devnet:  1s
	//   - Tests:   10ms
	BlockTime     time.Duration `mapstructure:"block_time"`
	MaxBlockBytes int64         `mapstructure:"max_block_bytes"`
}

type Config struct {
	Node   Node   `mapstructure:"node"`
	Engine Engine `mapstructure:"engine"`
}

func Default() Config {
	return Config{
		Node: Node{
			DataDir:       "data/state",
			LogFile:       "data/node.log",
			LogLevel:      "info",
			APIAddr:       ":8080",
			BlockTime:     time.Second,
			MaxBlockBytes: 1 << 24,
		},
		Engine: DefaultEngine(),
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DataDir = getEnv("NODE_DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.Genesis = getEnv("NODE_GENESIS", cfg.Node.Genesis)

	if ms := os.Getenv("NODE_BLOCK_TIME_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Node.BlockTime = time.Duration(v) * time.Millisecond
		}
	}
	if v := os.Getenv("VALIDATE_INVARIANTS"); v != "" {
		cfg.Engine.ValidateInvariants = v == "true"
	}
	return cfg
}

// LoadFile reads a YAML, TOML or JSON config file over the defaults.
// HYPERCREDIT_NODE_* environment variables override node settings.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HYPERCREDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("node.data_dir", cfg.Node.DataDir)
	v.SetDefault("node.log_file", cfg.Node.LogFile)
	v.SetDefault("node.log_level", cfg.Node.LogLevel)
	v.SetDefault("node.api_addr", cfg.Node.APIAddr)
	v.SetDefault("node.genesis", cfg.Node.Genesis)
	v.SetDefault("node.block_time", cfg.Node.BlockTime)
	v.SetDefault("node.max_block_bytes", cfg.Node.MaxBlockBytes)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
