package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGitHub   = "github"
	BackendS3       = "s3"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

type Config struct {
	Auth0Domain  string
	APIAudience  string
	Permission   string
	JWKSURL      string
	JWKSCacheTTL time.Duration

	HTTPAddress     string
	UpstreamTimeout time.Duration
	LogLevel        string

	StoreBackend string
	DatabasePath string
	WorkDir      string
	SyncRetries  int

	GitHubToken      string
	GitHubRepository string
	GitHubBranch     string
	GitHubAPIURL     string

	S3Bucket string
	S3Region string

	PGDSN string

	SecretsAllowlist []string
}

// Load reads the configuration from the environment, after applying an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("err loading .env: %w", err)
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	env := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}
	var errs []error
	duration := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(env(key, fallback))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", key))
		}
		return d
	}

	cfg := &Config{
		Auth0Domain:  strings.TrimSuffix(strings.TrimPrefix(env("AUTH0_DOMAIN", ""), "https://"), "/"),
		APIAudience:  env("API_AUDIENCE", ""),
		Permission:   env("PERMISSION", ""),
		JWKSURL:      env("JWKS_URL", ""),
		JWKSCacheTTL: duration("JWKS_CACHE_TTL", "10m"),

		HTTPAddress:     env("HTTP_ADDRESS", ":8080"),
		UpstreamTimeout: duration("UPSTREAM_TIMEOUT", "10s"),
		LogLevel:        env("LOG_LEVEL", "info"),

		StoreBackend: strings.ToLower(env("STORE_BACKEND", BackendGitHub)),
		DatabasePath: env("DATABASE_PATH", "database.db"),
		WorkDir:      env("WORK_DIR", os.TempDir()),

		GitHubToken:      env("GITHUB_ACCESS_TOKEN", ""),
		GitHubRepository: env("GITHUB_REPOSITORY", ""),
		GitHubBranch:     env("GITHUB_BRANCH", "gh-pages"),
		GitHubAPIURL:     env("GITHUB_API_URL", "https://api.github.com"),

		S3Bucket: env("S3_BUCKET", ""),
		S3Region: env("S3_REGION", "us-east-1"),

		PGDSN: env("PG_DSN", ""),
	}

	retries, err := strconv.Atoi(env("SYNC_RETRIES", "3"))
	if err != nil || retries < 0 {
		errs = append(errs, errors.New("SYNC_RETRIES must be a non-negative integer"))
	}
	cfg.SyncRetries = retries

	for _, name := range strings.Split(env("SECRETS_ALLOWLIST", ""), ",") {
		if name = strings.ToUpper(strings.TrimSpace(name)); name != "" {
			cfg.SecretsAllowlist = append(cfg.SecretsAllowlist, name)
		}
	}

	required := []string{"AUTH0_DOMAIN", "API_AUDIENCE", "PERMISSION"}
	switch cfg.StoreBackend {
	case BackendGitHub:
		required = append(required, "GITHUB_ACCESS_TOKEN", "GITHUB_REPOSITORY")
	case BackendS3:
		required = append(required, "S3_BUCKET")
	case BackendPostgres:
		required = append(required, "PG_DSN")
	case BackendLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}
	var missing []string
	for _, key := range required {
		if env(key, "") == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.JWKSURL == "" {
		cfg.JWKSURL = "https://" + cfg.Auth0Domain + "/.well-known/jwks.json"
	}
	return cfg, nil
}
