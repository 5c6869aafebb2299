package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"AUTH0_DOMAIN":        "https://meetingboard.eu.auth0.com/",
		"API_AUDIENCE":        "https://meetingboard/api",
		"PERMISSION":          "read:dashboard",
		"GITHUB_ACCESS_TOKEN": "ghp_token",
		"GITHUB_REPOSITORY":   "acme/dashboard",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(baseEnv()))
	require.NoError(t, err)
	require.Equal(t, "meetingboard.eu.auth0.com", cfg.Auth0Domain)
	require.Equal(t, "https://meetingboard.eu.auth0.com/.well-known/jwks.json", cfg.JWKSURL)
	require.Equal(t, 10*time.Minute, cfg.JWKSCacheTTL)
	require.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, BackendGitHub, cfg.StoreBackend)
	require.Equal(t, "gh-pages", cfg.GitHubBranch)
	require.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	require.Equal(t, "database.db", cfg.DatabasePath)
	require.Equal(t, 3, cfg.SyncRetries)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.SecretsAllowlist)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["JWKS_URL"] = "http://localhost:9999/jwks.json"
	env["SYNC_RETRIES"] = "5"
	env["SECRETS_ALLOWLIST"] = "auth0_client_id, ,AUTH0_DOMAIN"
	env["STORE_BACKEND"] = "Local"
	delete(env, "GITHUB_ACCESS_TOKEN")

	cfg, err := load(lookupFrom(env))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9999/jwks.json", cfg.JWKSURL)
	require.Equal(t, 5, cfg.SyncRetries)
	require.Equal(t, []string{"AUTH0_CLIENT_ID", "AUTH0_DOMAIN"}, cfg.SecretsAllowlist)
	require.Equal(t, BackendLocal, cfg.StoreBackend)
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := load(lookupFrom(map[string]string{"STORE_BACKEND": "s3"}))
	require.Error(t, err)
	for _, key := range []string{"AUTH0_DOMAIN", "API_AUDIENCE", "PERMISSION", "S3_BUCKET"} {
		require.ErrorContains(t, err, key)
	}

	env := baseEnv()
	env["STORE_BACKEND"] = "postgres"
	_, err = load(lookupFrom(env))
	require.ErrorContains(t, err, "PG_DSN")
}

func TestLoadInvalidValues(t *testing.T) {
	env := baseEnv()
	env["UPSTREAM_TIMEOUT"] = "soon"
	env["SYNC_RETRIES"] = "-1"
	env["STORE_BACKEND"] = "ftp"
	_, err := load(lookupFrom(env))
	require.ErrorContains(t, err, "UPSTREAM_TIMEOUT")
	require.ErrorContains(t, err, "SYNC_RETRIES")
	require.ErrorContains(t, err, `unknown STORE_BACKEND "ftp"`)
}
