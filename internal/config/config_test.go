package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"match-call-backend/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
jwt:
  secret: "0123456789abcdef"
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 40, cfg.Matching.Threshold)
	assert.Equal(t, 3, cfg.Matching.MaxClaimAttempts)
	assert.Equal(t, "postgres", cfg.Matching.Pool)
	assert.Equal(t, "nats", cfg.Matching.Transport)
	assert.True(t, cfg.Matching.SharedPool())
	assert.False(t, cfg.Matching.RunsCoordinatorInServer())
	assert.Equal(t, 10, cfg.RateLimit.MatchRequests)
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9000
  allowed_origins: ["https://app.example.com"]
matching:
  pool: memory
  transport: local
  threshold: 55
  request_lock_ttl: 30s
nats:
  url: nats://broker:4222
  request_queue_group: matching
jwt:
  secret: "0123456789abcdef"
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 55, cfg.Matching.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Matching.RequestLockTTL)
	assert.False(t, cfg.Matching.SharedPool())
	assert.True(t, cfg.Matching.RunsCoordinatorInServer())
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "matching", cfg.NATS.RequestQueueGroup)
	// untouched keys keep their defaults
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-environment-secret")
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "from-environment-secret", cfg.JWT.Secret)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=hunter2")
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"missing secret", `log: {level: info}`, "jwt.secret"},
		{"short secret", `jwt: {secret: short}`, "jwt.secret"},
		{"unknown pool", minimal + "matching: {pool: redis}", "matching.pool"},
		{"threshold too high", minimal + "matching: {threshold: 101}", "matching.threshold"},
		{"bad log format", minimal + "log: {format: xml}", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			_, err := Parse([]byte(tt.yaml))
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	_, err := Parse([]byte("server: [1, 2"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", cfg.JWT.Secret)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "app", Password: "pw", DBName: "match", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=app password=pw dbname=match sslmode=disable", db.DSN())
}
