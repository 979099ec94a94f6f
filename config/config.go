package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	MCP       MCPConfig           `mapstructure:"mcp"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Judge     JudgeConfig         `mapstructure:"judge"`
	Store     StoreConfig         `mapstructure:"store"`
	Redis     RedisConfig         `mapstructure:"redis"`
	Auth      AuthConfig          `mapstructure:"auth"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds the REST server configuration
type ServerConfig struct {
	HTTPPort           int `mapstructure:"http_port"`
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"`
	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`
}

// MCPConfig holds the MCP tool server configuration
type MCPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	TimeoutMs          int    `mapstructure:"timeout_ms"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	CPUQuota           int64  `mapstructure:"cpu_quota"`
	CPUPeriod          int64  `mapstructure:"cpu_period"`
	PidsLimit          int64  `mapstructure:"pids_limit"`
	CompileTimeoutMs   int    `mapstructure:"compile_timeout_ms"`
	MaxOutputKB        int    `mapstructure:"max_output_kb"`
	MaxConcurrent      int    `mapstructure:"max_concurrent"`
	TeardownGraceMs    int    `mapstructure:"teardown_grace_ms"`
	User               string `mapstructure:"user"`
	PodmanBinary       string `mapstructure:"podman_binary"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
}

// JudgeConfig holds verdict aggregation and progress settings
type JudgeConfig struct {
	VerdictPolicy     string `mapstructure:"verdict_policy"`
	AwardRepeatSolves bool   `mapstructure:"award_repeat_solves"`
	SolvedScore       int    `mapstructure:"solved_score"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig enables the fleet-wide execution limiter when Addr is set
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	LimiterKey string `mapstructure:"limiter_key"`
	SlotTTLSec int    `mapstructure:"slot_ttl_sec"`
}

// AuthConfig holds the identity token verification key
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language overrides a built-in language profile or adds hooks to it
type Language struct {
	Image       string            `mapstructure:"image"`
	Filename    string            `mapstructure:"filename"`
	CompileCmd  string            `mapstructure:"compile_cmd"`
	RunCmd      string            `mapstructure:"run_cmd"`
	Environment map[string]string `mapstructure:"environment"`
	PrefixCode  string            `mapstructure:"prefix_code"`
	PostfixCode string            `mapstructure:"postfix_code"`
}

// Verdict aggregation policies
const (
	VerdictPolicyLastFailure = "last_failure"
	VerdictPolicyMostSevere  = "most_severe"
)

// legacyEnv maps the deployment-level variable names onto config keys.
var legacyEnv = map[string]string{
	"sandbox.timeout_ms": "EXECUTION_TIMEOUT",
	"sandbox.memory_mb":  "EXECUTION_MEMORY_LIMIT",
	"sandbox.cpu_quota":  "EXECUTION_CPU_QUOTA",
	"store.dsn":          "DATABASE_URL",
	"redis.addr":         "REDIS_ADDR",
	"auth.jwt_secret":    "JWT_SECRET",
}

// New loads and validates the application configuration from the default locations
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from path, or from ./config.yaml and ./config/config.yaml
// when path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("CODEJUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "CODEJUDGE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit path must exist.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("server.request_timeout_sec", 300)

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.http_port", 8081)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.timeout_ms", 5000)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.cpu_quota", 50000)
	v.SetDefault("sandbox.cpu_period", 100000)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.compile_timeout_ms", 15000)
	v.SetDefault("sandbox.max_output_kb", 10240)
	v.SetDefault("sandbox.max_concurrent", 4)
	v.SetDefault("sandbox.teardown_grace_ms", 2000)
	v.SetDefault("sandbox.user", "nobody")
	v.SetDefault("sandbox.podman_binary", "podman")
	v.SetDefault("sandbox.enable_local_backend", false)

	v.SetDefault("judge.verdict_policy", VerdictPolicyLastFailure)
	v.SetDefault("judge.award_repeat_solves", true)
	v.SetDefault("judge.solved_score", 10)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/codejudge.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.limiter_key", "codejudge:exec-slot")
	v.SetDefault("redis.slot_ttl_sec", 120)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be positive, got: %d", c.Server.HTTPPort)
	}

	if c.MCP.Transport != "stdio" && c.MCP.Transport != "http" {
		return fmt.Errorf("invalid mcp.transport: %s, must be 'stdio' or 'http'", c.MCP.Transport)
	}

	if c.Sandbox.TimeoutMs <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got: %d", c.Sandbox.TimeoutMs)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUQuota <= 0 || c.Sandbox.CPUPeriod <= 0 {
		return fmt.Errorf("sandbox.cpu_quota and sandbox.cpu_period must be positive, got: %d/%d", c.Sandbox.CPUQuota, c.Sandbox.CPUPeriod)
	}

	if c.Sandbox.CompileTimeoutMs <= 0 {
		return fmt.Errorf("sandbox.compile_timeout_ms must be positive, got: %d", c.Sandbox.CompileTimeoutMs)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Judge.VerdictPolicy != VerdictPolicyLastFailure && c.Judge.VerdictPolicy != VerdictPolicyMostSevere {
		return fmt.Errorf("invalid judge.verdict_policy: %s", c.Judge.VerdictPolicy)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("invalid store.driver: %s, must be 'sqlite' or 'postgres'", c.Store.Driver)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetRequestTimeout bounds one HTTP request, including every test case of a submission
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// GetShutdownTimeout bounds graceful shutdown of the servers
func (c *Config) GetShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// GetTimeout returns the default execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMs) * time.Millisecond
}

// GetTeardownGrace returns the bound on environment teardown
func (c *Config) GetTeardownGrace() time.Duration {
	return time.Duration(c.Sandbox.TeardownGraceMs) * time.Millisecond
}
