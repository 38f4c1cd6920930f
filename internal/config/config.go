package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database   DatabaseConfig
	Recognizer RecognizerConfig
	Matching   MatchingConfig
	Citation   CitationConfig
	Auth       AuthConfig
	Web        WebConfig
	Media      MediaConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RecognizerConfig struct {
	URL              string        // external recognizer base URL, empty disables the external stage
	Timeout          time.Duration // per-call timeout (default 120s)
	FailureThreshold int           // consecutive failures before the breaker opens (default 5)
	Cooldown         time.Duration // how long the breaker stays open (default 30s)
	EnrollWorkers    int           // concurrent background encoding registrations (default 4)
}

type MatchingConfig struct {
	Dim          int     // embedding length (default 128)
	Threshold    float64 // identified iff similarity > threshold (default 0.6)
	SnapshotTTL  time.Duration
	NeighbourIdx bool
}

type CitationConfig struct {
	MaxAttempts int // random draws before the clock fallback (default 1000)
}

type AuthConfig struct {
	JWTSecret string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type MediaConfig struct {
	UploadsDir string // directory holding enrolled photos, empty disables media deletion
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// policyFile is the optional YAML override for matching and citation policy.
type policyFile struct {
	Matching struct {
		Dim            int           `yaml:"dim"`
		Threshold      float64       `yaml:"threshold"`
		SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`
		NeighbourIndex *bool         `yaml:"neighbour_index"`
	} `yaml:"matching"`
	Citation struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"citation"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("120s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load builds the configuration from the environment. When FACEWATCH_CONFIG
// points at a YAML file its matching and citation sections are applied first;
// explicitly set environment variables still win.
func Load() (*Config, error) {
	matching := MatchingConfig{
		Dim:          128,
		Threshold:    0.6,
		SnapshotTTL:  30 * time.Second,
		NeighbourIdx: true,
	}
	citation := CitationConfig{MaxAttempts: 1000}

	if path := os.Getenv("FACEWATCH_CONFIG"); path != "" {
		if err := applyPolicyFile(path, &matching, &citation); err != nil {
			return nil, err
		}
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Recognizer: RecognizerConfig{
			URL:              os.Getenv("RECOGNIZER_URL"),
			Timeout:          envDuration("RECOGNIZER_TIMEOUT", 120*time.Second),
			FailureThreshold: envInt("RECOGNIZER_FAILURE_THRESHOLD", 5),
			Cooldown:         envDuration("RECOGNIZER_COOLDOWN", 30*time.Second),
			EnrollWorkers:    envInt("RECOGNIZER_ENROLL_WORKERS", 4),
		},
		Matching: MatchingConfig{
			Dim:          envInt("EMBEDDING_DIM", matching.Dim),
			Threshold:    envFloat("MATCH_THRESHOLD", matching.Threshold),
			SnapshotTTL:  envDuration("MATCH_SNAPSHOT_TTL", matching.SnapshotTTL),
			NeighbourIdx: envBool("MATCH_NEIGHBOUR_INDEX", matching.NeighbourIdx),
		},
		Citation: CitationConfig{
			MaxAttempts: envInt("CITATION_MAX_ATTEMPTS", citation.MaxAttempts),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
		},
		Media: MediaConfig{
			UploadsDir: os.Getenv("UPLOADS_DIR"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}, nil
}

func applyPolicyFile(path string, matching *MatchingConfig, citation *CitationConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	if pf.Matching.Dim > 0 {
		matching.Dim = pf.Matching.Dim
	}
	if pf.Matching.Threshold > 0 && pf.Matching.Threshold <= 1 {
		matching.Threshold = pf.Matching.Threshold
	}
	if pf.Matching.SnapshotTTL > 0 {
		matching.SnapshotTTL = pf.Matching.SnapshotTTL
	}
	if pf.Matching.NeighbourIndex != nil {
		matching.NeighbourIdx = *pf.Matching.NeighbourIndex
	}
	if pf.Citation.MaxAttempts > 0 {
		citation.MaxAttempts = pf.Citation.MaxAttempts
	}
	return nil
}
