package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/nethealth/internal/core/domain"
	"github.com/lcalzada-xor/nethealth/internal/core/services/monitor"
)

// Source kinds.
const (
	SourceSystem    = "system"
	SourceSimulated = "simulated"
)

// Config holds all application configuration.
type Config struct {
	// Measurement source
	Source       string
	Seed         int64
	Target       string
	ProbeCount   int
	ProbeTimeout time.Duration
	TCPPort      int
	ProcRoot     string
	SysRoot      string

	// Pipeline (see Pipeline for the file layout)
	PipelinePath string
	Pipeline     Pipeline

	// Outer surfaces
	Addr           string
	GRPCAddr       string // empty disables the gRPC health server
	APIToken       string
	APITokenHash   string
	AllowedOrigins []string

	// Storage
	DBPath        string // empty disables history persistence
	RedisAddr     string // empty disables the redis mirror
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	Debug       bool
	TraceStdout bool
}

// Load reads environment variables, then parses args (normally os.Args[1:]).
// Flags take precedence over environment variables; the pipeline file is read
// last and its values are overridden by non-zero -period/-max-points/-cooldown.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("nethealth", flag.ContinueOnError)

	cfg.Source = getEnv("NETHEALTH_SOURCE", SourceSystem)
	cfg.Seed = int64(getEnvInt("NETHEALTH_SEED", 0))
	cfg.Target = getEnv("NETHEALTH_TARGET", "")
	cfg.ProbeCount = getEnvInt("NETHEALTH_PROBE_COUNT", 3)
	cfg.ProbeTimeout = getEnvDuration("NETHEALTH_PROBE_TIMEOUT", time.Second)
	cfg.TCPPort = getEnvInt("NETHEALTH_TCP_PORT", 443)
	cfg.ProcRoot = getEnv("NETHEALTH_PROC", "/proc")
	cfg.SysRoot = getEnv("NETHEALTH_SYS", "/sys")
	cfg.PipelinePath = getEnv("NETHEALTH_CONFIG", "")
	cfg.Addr = getEnv("NETHEALTH_ADDR", ":8080")
	cfg.GRPCAddr = getEnv("NETHEALTH_GRPC_ADDR", ":9000")
	cfg.APIToken = getEnv("NETHEALTH_API_TOKEN", "")
	cfg.APITokenHash = getEnv("NETHEALTH_API_TOKEN_HASH", "")
	origins := getEnv("NETHEALTH_ALLOWED_ORIGINS", "")
	cfg.DBPath = getEnv("NETHEALTH_DB", getDefaultDBPath())
	cfg.RedisAddr = getEnv("NETHEALTH_REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("NETHEALTH_REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("NETHEALTH_REDIS_DB", 0)
	cfg.RedisTTL = getEnvDuration("NETHEALTH_REDIS_TTL", time.Minute)
	cfg.Debug = getEnvBool("NETHEALTH_DEBUG", false)
	cfg.TraceStdout = getEnvBool("NETHEALTH_TRACE_STDOUT", false)

	period := getEnvDuration("NETHEALTH_SAMPLING_PERIOD", 0)
	maxPoints := getEnvInt("NETHEALTH_MAX_POINTS", 0)
	cooldown := getEnvInt("NETHEALTH_COOLDOWN", 0)

	fs.StringVar(&cfg.Source, "source", cfg.Source, "Measurement source: system or simulated")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed of the simulated source (0 = time based)")
	fs.StringVar(&cfg.Target, "target", cfg.Target, "Probe target (default: default gateway)")
	fs.IntVar(&cfg.ProbeCount, "probe-count", cfg.ProbeCount, "Echo requests per cycle")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "Timeout of one echo request")
	fs.IntVar(&cfg.TCPPort, "tcp-port", cfg.TCPPort, "Port of the TCP connect fallback probe")
	fs.StringVar(&cfg.ProcRoot, "proc", cfg.ProcRoot, "procfs mount point")
	fs.StringVar(&cfg.SysRoot, "sys", cfg.SysRoot, "sysfs mount point")
	fs.StringVar(&cfg.PipelinePath, "config", cfg.PipelinePath, "Pipeline YAML file (rules, sampling)")
	fs.DurationVar(&period, "period", period, "Sampling period (overrides the pipeline file)")
	fs.IntVar(&maxPoints, "max-points", maxPoints, "Points held per metric (overrides the pipeline file)")
	fs.IntVar(&cooldown, "cooldown", cooldown, "Quiet cycles before an anomaly clears (overrides the pipeline file)")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC health server address (empty to disable)")
	fs.StringVar(&cfg.APIToken, "token", cfg.APIToken, "API token (empty disables authentication)")
	fs.StringVar(&origins, "origins", origins, "Extra websocket origins (comma separated)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database (empty to disable)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address (empty to disable)")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "TTL of the cached snapshot")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	fs.BoolVar(&cfg.TraceStdout, "trace-stdout", cfg.TraceStdout, "Write trace spans to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	cfg.AllowedOrigins = splitList(origins)

	if cfg.PipelinePath != "" {
		p, err := LoadPipeline(cfg.PipelinePath)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = p
	}
	if period != 0 {
		cfg.Pipeline.SamplingPeriodMs = int(period / time.Millisecond)
	}
	if maxPoints != 0 {
		cfg.Pipeline.MaxPoints = maxPoints
	}
	if cooldown != 0 {
		cfg.Pipeline.CooldownCycles = cooldown
	}
	cfg.Pipeline.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that are not validated by their consumers.
func (c *Config) Validate() error {
	var errs []error
	if c.Source != SourceSystem && c.Source != SourceSimulated {
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if c.ProbeCount < 1 {
		errs = append(errs, fmt.Errorf("probe count must be at least 1, got %d", c.ProbeCount))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe timeout must be positive, got %s", c.ProbeTimeout))
	}
	if c.TCPPort < 1 || c.TCPPort > 65535 {
		errs = append(errs, fmt.Errorf("tcp port out of range: %d", c.TCPPort))
	}
	if c.Addr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.APIToken != "" && c.APITokenHash != "" {
		errs = append(errs, errors.New("set either an API token or its hash, not both"))
	}
	if c.RedisTTL < 0 {
		errs = append(errs, fmt.Errorf("redis ttl must not be negative, got %s", c.RedisTTL))
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// AuthEnabled reports whether the API requires a token.
func (c *Config) AuthEnabled() bool {
	return c.APIToken != "" || c.APITokenHash != ""
}

// MonitorConfig converts the pipeline section for monitor.New.
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		SamplingPeriod: time.Duration(c.Pipeline.SamplingPeriodMs) * time.Millisecond,
		MaxPoints:      c.Pipeline.MaxPoints,
		Rules:          c.Pipeline.Rules,
		CooldownCycles: c.Pipeline.CooldownCycles,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("[CONFIG] Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("[CONFIG] Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("[CONFIG] Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("[CONFIG] Could not get user home directory, using current dir: %v", err)
		return "nethealth.db"
	}

	dir := filepath.Join(home, ".nethealth")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[CONFIG] Could not create %s, using current dir: %v", dir, err)
		return "nethealth.db"
	}

	return filepath.Join(dir, "nethealth.db")
}
