package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
    for _, key := range []string{"PORT", "MERGE_WORKERS", "FAIL_FAST", "HTTP_TIMEOUT", "CACHE_TTL", "CRM_API_URL"} {
        t.Setenv(key, "")
    }

    cfg := FromEnv()

    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, 4, cfg.MergeWorkers)
    assert.False(t, cfg.FailFast)
    assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
    assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
    assert.Empty(t, cfg.CRMAPIURL)
}

func TestFromEnvOverrides(t *testing.T) {
    t.Setenv("PORT", "9090")
    t.Setenv("MERGE_WORKERS", "1")
    t.Setenv("FAIL_FAST", "true")
    t.Setenv("HTTP_TIMEOUT", "5s")
    t.Setenv("CACHE_TTL", "45")

    cfg := FromEnv()

    assert.Equal(t, "9090", cfg.Port)
    assert.Equal(t, 1, cfg.MergeWorkers)
    assert.True(t, cfg.FailFast)
    assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
    assert.Equal(t, 45*time.Second, cfg.CacheTTL)
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
    t.Setenv("MERGE_WORKERS", "many")
    t.Setenv("FAIL_FAST", "sometimes")
    t.Setenv("HTTP_TIMEOUT", "soon")

    cfg := FromEnv()

    assert.Equal(t, 4, cfg.MergeWorkers)
    assert.False(t, cfg.FailFast)
    assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
