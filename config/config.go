// Package config loads the process configuration from the environment.
// Every knob has a DECKFLOW_ prefixed variable; a local .env file is
// honored when present so development setups need no exported shell
// state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deckflow/deckflow-go/breaker"
	"github.com/deckflow/deckflow-go/engine"
	"github.com/deckflow/deckflow-go/flags"
	"github.com/deckflow/deckflow-go/monitor"
)

// Config is the full process configuration.
type Config struct {
	// ServiceName labels metrics and logs.
	ServiceName string

	// LogLevel is debug, info, warn, or error.
	LogLevel string

	// StructuredLogs selects JSON log output.
	StructuredLogs bool

	// StylingEnabled gates the chart size/position pass.
	StylingEnabled bool

	// ForceSequential overrides everything and runs the legacy path.
	ForceSequential bool

	// AuditLogPath appends the mutation audit trail when set.
	AuditLogPath string

	// OverridesDir holds per-template layout override files.
	OverridesDir string

	// RedisAddr enables the mapping snapshot cache when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OpenAIKey and GeminiKey authenticate the upstream agents.
	OpenAIKey string
	GeminiKey string

	// CredentialsFile authenticates the document API client pool.
	CredentialsFile string

	Engine  engine.Config
	Breaker breaker.Config
	Flags   flags.Config
	Monitor monitor.Config
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServiceName:    "deckflow",
		LogLevel:       "info",
		StructuredLogs: true,
		StylingEnabled: true,
		Engine:         engine.DefaultConfig(),
		Breaker:        breaker.DefaultConfig(),
		Flags:          flags.DefaultConfig(),
		Monitor:        monitor.DefaultConfig(),
	}
}

// Load reads .env (when present) and the DECKFLOW_* environment on top
// of the defaults.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Default()
	var errs []string

	cfg.ServiceName = envString("DECKFLOW_SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = envString("DECKFLOW_LOG_LEVEL", cfg.LogLevel)
	cfg.StructuredLogs = envBool("DECKFLOW_STRUCTURED_LOGS", cfg.StructuredLogs)
	cfg.StylingEnabled = envBool("DECKFLOW_STYLING_ENABLED", cfg.StylingEnabled)
	cfg.ForceSequential = envBool("DECKFLOW_FORCE_SEQUENTIAL", cfg.ForceSequential)
	cfg.AuditLogPath = envString("DECKFLOW_AUDIT_LOG", cfg.AuditLogPath)
	cfg.OverridesDir = envString("DECKFLOW_OVERRIDES_DIR", cfg.OverridesDir)

	cfg.RedisAddr = envString("DECKFLOW_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("DECKFLOW_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envInt("DECKFLOW_REDIS_DB", cfg.RedisDB, &errs)

	cfg.OpenAIKey = envString("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.GeminiKey = envString("GEMINI_API_KEY", cfg.GeminiKey)
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = envString("GOOGLE_API_KEY", "")
	}
	cfg.CredentialsFile = envString("DECKFLOW_CREDENTIALS_FILE", cfg.CredentialsFile)

	cfg.Engine.MaxConcurrentContainers = envInt("DECKFLOW_MAX_CONCURRENT_CONTAINERS", cfg.Engine.MaxConcurrentContainers, &errs)
	cfg.Engine.SubBatchSize = envInt("DECKFLOW_SUB_BATCH_SIZE", cfg.Engine.SubBatchSize, &errs)
	cfg.Engine.RetryAttempts = envInt("DECKFLOW_RETRY_ATTEMPTS", cfg.Engine.RetryAttempts, &errs)
	cfg.Engine.RetryDelay = envDuration("DECKFLOW_RETRY_DELAY", cfg.Engine.RetryDelay, &errs)
	cfg.Engine.CallTimeout = envDuration("DECKFLOW_CALL_TIMEOUT", cfg.Engine.CallTimeout, &errs)

	cfg.Breaker.FailureThreshold = envInt("DECKFLOW_BREAKER_THRESHOLD", cfg.Breaker.FailureThreshold, &errs)
	cfg.Breaker.RecoveryTimeout = envDuration("DECKFLOW_BREAKER_RECOVERY", cfg.Breaker.RecoveryTimeout, &errs)

	cfg.Flags.Mode = flags.Mode(envString("DECKFLOW_MODE", string(cfg.Flags.Mode)))
	cfg.Flags.RolloutPercentage = envFloat("DECKFLOW_ROLLOUT_PERCENTAGE", cfg.Flags.RolloutPercentage, &errs)
	cfg.Flags.Allowlist = envList("DECKFLOW_ALLOWLIST", cfg.Flags.Allowlist)
	cfg.Flags.Denylist = envList("DECKFLOW_DENYLIST", cfg.Flags.Denylist)

	if flagFile := os.Getenv("DECKFLOW_FLAGS_FILE"); flagFile != "" {
		fileCfg, err := flags.LoadConfig(flagFile)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			cfg.Flags = fileCfg
		}
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBool accepts the spellings operators actually use in env files.
func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Bare numbers are seconds; otherwise Go duration syntax.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
