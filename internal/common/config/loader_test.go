package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalYAML(notifications string) string {
	return `
database:
  postgres:
    host: ${TEST_DB_HOST}
    database: adr
    user: adr
  redis:
    address: ${TEST_REDIS_ADDR}
http:
  cron_secret: s3cret
notifications:
  public_url: https://adr.example.pl
  admin_emails: " biuro@adr.example.pl, ,kierownik@adr.example.pl"
` + notifications + `
workers:
  issue-completion-link:
    enabled: false
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML("")))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Empty(t, cfg.Database.Redis.Address)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "smsapi", cfg.Notifications.SMS.Provider)
	assert.Equal(t, "smtp", cfg.Notifications.Email.Provider)
	assert.Equal(t, "uzupelnij-dane", cfg.Notifications.CompletionPath)
	assert.Equal(t, 1, cfg.Reminders.CourseLeadDays)
	assert.Equal(t, 72*time.Hour, cfg.Reminders.CourseMarkerTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.TTL)
	assert.Equal(t, "0 10 * * *", cfg.Scheduler.CertificateCron)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"biuro@adr.example.pl", "kierownik@adr.example.pl"}, cfg.Notifications.AdminEmailList())
	assert.Equal(t, "Europe/Warsaw", cfg.Reminders.Location().String())
}

func TestLoadFromFile_Workers(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML("")))
	require.NoError(t, err)

	assert.False(t, IsWorkerEnabled(cfg, "issue-completion-link"))
	wc := GetWorkerConfig(cfg, "issue-completion-link")
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30*time.Second, GetDuration(wc.Timeout))

	assert.True(t, IsWorkerEnabled(cfg, "resolve-participant"))
	assert.Equal(t, 3, GetWorkerConfig(cfg, "resolve-participant").MaxRetries)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")
	t.Setenv("SMSAPI_TOKEN", "tok")
	t.Setenv("ADMIN_PHONE", "48600000000")

	cfg, err := LoadFromFile(writeConfig(t, minimalYAML("")))
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Notifications.SMS.SMSAPI.Token)
	assert.Equal(t, "48600000000", cfg.Notifications.AdminPhone)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{name: "unknown sms provider", extra: "  sms:\n    provider: twilio\n", wantErr: "notifications.sms.provider"},
		{name: "smsapi without token", extra: "  sms:\n    enabled: true\n", wantErr: "smsapi.token"},
		{name: "smtp without host", extra: "  email:\n    enabled: true\n", wantErr: "smtp.host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DB_HOST", "db.internal")
			t.Setenv("SMSAPI_TOKEN", "")
			_, err := LoadFromFile(writeConfig(t, minimalYAML(tt.extra)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingHost(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "")
	_, err := LoadFromFile(writeConfig(t, minimalYAML("")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.postgres.host")
}

func TestPostgresConfig_URLs(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, Database: "adr", User: "adr", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://adr:p%40ss@db:5432/adr?sslmode=disable", p.GetURL())
	assert.Contains(t, p.GetDSN(), "dbname=adr")
}
