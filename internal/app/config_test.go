package app

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/workforcehub/workforcehub/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("RBAC_LOOKUP_TIMEOUT", "750ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.RBACLookupTimeout)
	assert.Equal(t, 168*time.Hour, cfg.InviteTTL)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, 60, cfg.RequestRateLimit)
	assert.False(t, cfg.TokensEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		SessionSecret:     "s",
		CSRFSecret:        "c",
		RBACLookupTimeout: time.Second,
		InviteTTL:         time.Hour,
		WorkerConcurrency: 1,
	}
	require.NoError(t, base.Validate())

	missing := base
	missing.CSRFSecret = ""
	assert.Error(t, missing.Validate())

	weak := base
	weak.AppEnv = "production"
	weak.TokenSecret = "short"
	assert.Error(t, weak.Validate())

	noTimeout := base
	noTimeout.RBACLookupTimeout = 0
	assert.Error(t, noTimeout.Validate())
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	newLogger(&buf, &Config{LogLevel: "bogus"}).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
