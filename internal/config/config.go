package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the model pair: Flash first (higher free-tier quota,
// faster), Pro as the deeper-reasoning fallback once Flash quota is
// exhausted.
const (
	DefaultPrimaryModel  = "gemini-3-flash-preview"
	DefaultFallbackModel = "gemini-3-pro-preview"
)

type Config struct {
	APIKey        string
	PrimaryModel  string
	FallbackModel string

	// MaxRetries bounds attempts per model; BaseDelay seeds the
	// exponential backoff; Pace is the sleep between unit/finding calls.
	MaxRetries int
	BaseDelay  time.Duration
	Pace       time.Duration

	LogLevel string
	Port     string

	// HistoryDSN enables the Postgres run-history backend when set.
	HistoryDSN string

	// Extensions and MaxFileBytes drive the file collector.
	Extensions   []string
	MaxFileBytes int64

	Artifact ArtifactConfig
}

// ArtifactConfig configures optional manifest archival to S3-compatible
// object storage.
type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		PrimaryModel:  firstNonEmpty(os.Getenv("SENTINEL_MODEL"), os.Getenv("GEMINI_MODEL"), DefaultPrimaryModel),
		FallbackModel: firstNonEmpty(os.Getenv("SENTINEL_FALLBACK_MODEL"), os.Getenv("GEMINI_FALLBACK_MODEL"), DefaultFallbackModel),
		MaxRetries:    envInt("SENTINEL_MAX_RETRIES", 3),
		BaseDelay:     envSeconds("SENTINEL_BASE_DELAY_SECONDS", 2*time.Second),
		Pace:          envSeconds("SENTINEL_PACE_SECONDS", time.Second),
		LogLevel:      firstNonEmpty(os.Getenv("SENTINEL_LOG_LEVEL"), "info"),
		Port:          normalizePort(firstNonEmpty(os.Getenv("PORT"), "8089")),
		HistoryDSN:    strings.TrimSpace(os.Getenv("SENTINEL_HISTORY_PG_DSN")),
		Extensions:    envList("SENTINEL_EXTENSIONS", []string{".py", ".js", ".go"}),
		MaxFileBytes:  int64(envInt("SENTINEL_MAX_FILE_BYTES", 256*1024)),
		Artifact:      loadArtifactConfig(),
	}
	return cfg, nil
}

// ValidateForInference fails early when the inference service cannot be
// reached; history/verify surfaces work without a key.
func (c *Config) ValidateForInference() error {
	if c.APIKey == "" {
		return errors.New("config: GEMINI_API_KEY is not set")
	}
	return nil
}

func loadArtifactConfig() ArtifactConfig {
	endpoint := strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(os.Getenv("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")),
		Bucket:    firstNonEmpty(os.Getenv("ARTIFACT_S3_BUCKET"), "sentinel-manifests"),
		UseSSL:    envBool("ARTIFACT_S3_USE_SSL", true),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func normalizePort(p string) string {
	if strings.HasPrefix(p, ":") {
		return p
	}
	return ":" + p
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
