package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "PORT", "ROOM_IDLE_TTL", "HUB_SHARDS", "POLL_INTERVAL", "SNAPSHOT_SCHEDULE"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, 20*time.Minute, cfg.RoomIdleTTL)
	assert.Equal(t, 4, cfg.HubShards)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "@every 5m", cfg.PruneSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROOM_IDLE_TTL", "5m")
	t.Setenv("HUB_SHARDS", "8")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("AUTHORITY_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.RoomIdleTTL)
	assert.Equal(t, 8, cfg.HubShards)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 2*time.Second, cfg.AuthorityTimeout)
}

func TestMaskDBSource(t *testing.T) {
	assert.Equal(t, "postgres://****:****@db:5432/chat", maskDBSource("postgres://u:p@db:5432/chat"))
	assert.Equal(t, "invalid-dsn-format", maskDBSource("nonsense"))
}
