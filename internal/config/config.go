// Package config resolves SDK settings from caller-supplied overrides,
// environment variables, and defaults, in that priority order — the same
// override-merge shape as the teacher's internal/config.Load, generalized
// from a file+env+default chain to an override+env+default chain since the
// SDK has no persistent config file layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds fully-resolved SDK settings.
type Config struct {
	APIKey  string
	AgentID string
	BaseURL string

	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor float64
	MaxConns      int

	BlobThresholdBytes int

	FlushInterval time.Duration
	FlushAtCount  int
	MaxQueueSize  int
	WorkerCount   int

	AutoEnd         bool
	SuppressErrors  bool
	Debug           bool
	Verbose         bool
}

// Overrides is the caller-supplied subset of Config; nil/zero fields fall
// through to the environment, then to defaults. Pointer fields distinguish
// "not set" from "set to the zero value".
type Overrides struct {
	APIKey  *string
	AgentID *string
	BaseURL *string

	Timeout       *time.Duration
	MaxRetries    *int
	BackoffFactor *float64
	MaxConns      *int

	BlobThresholdBytes *int

	FlushInterval *time.Duration
	FlushAtCount  *int
	MaxQueueSize  *int
	WorkerCount   *int

	AutoEnd        *bool
	SuppressErrors *bool
	Debug          *bool
	Verbose        *bool
}

const (
	defaultBaseURL           = "https://api.lucidic.ai"
	defaultTimeout           = 30 * time.Second
	defaultMaxRetries        = 3
	defaultBackoffFactor     = 2.0
	defaultMaxConns          = 100
	defaultBlobThresholdByte = 65536
	minBlobThresholdBytes    = 1024
	defaultFlushInterval     = 5 * time.Second
	defaultFlushAtCount      = 50
	defaultMaxQueueSize      = 10000
	defaultWorkerCount       = 10
)

// Default returns the SDK's built-in defaults, used as the final fallback
// tier of Load.
func Default() Config {
	return Config{
		BaseURL:            defaultBaseURL,
		Timeout:            defaultTimeout,
		MaxRetries:         defaultMaxRetries,
		BackoffFactor:      defaultBackoffFactor,
		MaxConns:           defaultMaxConns,
		BlobThresholdBytes: defaultBlobThresholdByte,
		FlushInterval:      defaultFlushInterval,
		FlushAtCount:       defaultFlushAtCount,
		MaxQueueSize:       defaultMaxQueueSize,
		WorkerCount:        defaultWorkerCount,
		AutoEnd:            true,
	}
}

// Load merges overrides over environment variables over defaults and
// validates the result, collecting every invalid/missing key into a single
// Error rather than failing on the first (spec.md §4.1).
func Load(overrides Overrides) (Config, error) {
	cfg := Default()
	applyEnvOverrides(&cfg)
	applyOverrides(&cfg, overrides)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("LUCIDIC_API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := lookupEnv("LUCIDIC_AGENT_ID"); ok {
		cfg.AgentID = v
	}
	if v, ok := lookupEnv("LUCIDIC_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_TIMEOUT_MS"); ok {
		cfg.Timeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupEnvInt("LUCIDIC_MAX_RETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := lookupEnvFloat("LUCIDIC_BACKOFF_FACTOR"); ok {
		cfg.BackoffFactor = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_MAX_CONNS"); ok {
		cfg.MaxConns = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_BLOB_THRESHOLD_BYTES"); ok {
		cfg.BlobThresholdBytes = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_FLUSH_INTERVAL_MS"); ok {
		cfg.FlushInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupEnvInt("LUCIDIC_FLUSH_AT_COUNT"); ok {
		cfg.FlushAtCount = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_MAX_QUEUE_SIZE"); ok {
		cfg.MaxQueueSize = v
	}
	if v, ok := lookupEnvInt("LUCIDIC_WORKER_COUNT"); ok {
		cfg.WorkerCount = v
	}
	if v, ok := lookupEnvBool("LUCIDIC_AUTO_END"); ok {
		cfg.AutoEnd = v
	}
	if v, ok := lookupEnvBool("LUCIDIC_SUPPRESS_ERRORS"); ok {
		cfg.SuppressErrors = v
	}
	if v, ok := lookupEnvBool("LUCIDIC_DEBUG"); ok {
		cfg.Debug = v
	}
	if v, ok := lookupEnvBool("LUCIDIC_VERBOSE"); ok {
		cfg.Verbose = v
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.APIKey != nil {
		cfg.APIKey = *o.APIKey
	}
	if o.AgentID != nil {
		cfg.AgentID = *o.AgentID
	}
	if o.BaseURL != nil {
		cfg.BaseURL = *o.BaseURL
	}
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.BackoffFactor != nil {
		cfg.BackoffFactor = *o.BackoffFactor
	}
	if o.MaxConns != nil {
		cfg.MaxConns = *o.MaxConns
	}
	if o.BlobThresholdBytes != nil {
		cfg.BlobThresholdBytes = *o.BlobThresholdBytes
	}
	if o.FlushInterval != nil {
		cfg.FlushInterval = *o.FlushInterval
	}
	if o.FlushAtCount != nil {
		cfg.FlushAtCount = *o.FlushAtCount
	}
	if o.MaxQueueSize != nil {
		cfg.MaxQueueSize = *o.MaxQueueSize
	}
	if o.WorkerCount != nil {
		cfg.WorkerCount = *o.WorkerCount
	}
	if o.AutoEnd != nil {
		cfg.AutoEnd = *o.AutoEnd
	}
	if o.SuppressErrors != nil {
		cfg.SuppressErrors = *o.SuppressErrors
	}
	if o.Debug != nil {
		cfg.Debug = *o.Debug
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvFloat(key string) (float64, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func lookupEnvBool(key string) (bool, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Error enumerates every invalid or missing config key found during
// validation, rather than surfacing only the first.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

func validate(cfg Config) error {
	var problems []string

	if strings.TrimSpace(cfg.APIKey) == "" {
		problems = append(problems, "api key is required")
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		problems = append(problems, "agent id is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		problems = append(problems, "base URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if cfg.MaxRetries < 0 {
		problems = append(problems, "max retries must not be negative")
	}
	if cfg.BackoffFactor <= 0 {
		problems = append(problems, "backoff factor must be positive")
	}
	if cfg.MaxConns <= 0 {
		problems = append(problems, "max connections must be positive")
	}
	if cfg.BlobThresholdBytes < minBlobThresholdBytes {
		problems = append(problems, fmt.Sprintf("blob threshold must be at least %d bytes", minBlobThresholdBytes))
	}
	if cfg.FlushInterval <= 0 {
		problems = append(problems, "flush interval must be positive")
	}
	if cfg.FlushAtCount <= 0 {
		problems = append(problems, "flush-at count must be positive")
	}
	if cfg.MaxQueueSize <= 0 {
		problems = append(problems, "max queue size must be positive")
	}
	if cfg.WorkerCount <= 0 {
		problems = append(problems, "worker count must be positive")
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
