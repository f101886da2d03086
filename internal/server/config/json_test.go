package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	t.Run("loads from json", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"http_addr":                      ":9000",
			"secret_key":                     "my_secret_key",
			"access_token_validity_duration": "2m",
			"verification_token_ttl":         "48h",
			"max_proof_size":                 1024,
			"mail_backend":                   "amqp",
			"resend_cooldown":                int64(30 * time.Second),
			"cors_allowed_origins":           []string{"https://a.example", "https://b.example"},
		})

		cfg := defaultConfig()
		require.NoError(t, parseJson(cfg, []string{"-config", path}))

		assert.Equal(t, ":9000", cfg.HTTPAddr)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 48*time.Hour, cfg.VerificationTokenTTL)
		assert.Equal(t, int64(1024), cfg.MaxProofSize)
		assert.Equal(t, MailBackendAMQP, cfg.MailBackend)
		assert.Equal(t, 30*time.Second, cfg.ResendCooldown)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
		// untouched
		assert.Equal(t, ":50051", cfg.GRPCAddr)
	})

	t.Run("no config flag leaves config unchanged", func(t *testing.T) {
		cfg := defaultConfig()
		require.NoError(t, parseJson(cfg, []string{"-a", ":1"}))
		assert.Equal(t, defaultConfig(), cfg)
	})

	t.Run("invalid JSON fails", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := defaultConfig()
		require.Error(t, parseJson(cfg, []string{"-c", bad}))
	})
}
