package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string

	ChainRPCURL      string
	AuthorityTimeout time.Duration

	RedisURL string
	ServerID string
	HubShards int

	RoomIdleTTL      time.Duration
	SweepSchedule    string
	SnapshotSchedule string
	AnnounceSchedule string
	PruneSchedule    string
	PollInterval     time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	log := logrus.WithField("component", "config")
	log.Info("[CONFIG] Attempting to load .env file...")

	if err := godotenv.Load(); err != nil {
		log.Info("[CONFIG] No .env file found, relying on system environment variables")
	} else {
		log.Info("[CONFIG] Successfully loaded .env file")
	}

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		ChainRPCURL:      getEnv("CHAIN_RPC_URL", ""),
		AuthorityTimeout: getDuration("AUTHORITY_TIMEOUT", 2*time.Second),
		RedisURL:         getEnv("REDIS_URL", ""),
		ServerID:         getEnv("SERVER_ID", ""),
		HubShards:        getInt("HUB_SHARDS", 4),
		RoomIdleTTL:      getDuration("ROOM_IDLE_TTL", 20*time.Minute),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@every 1m"),
		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "@every 5m"),
		AnnounceSchedule: getEnv("ANNOUNCE_SCHEDULE", "@every 30s"),
		PruneSchedule:    getEnv("LIMITER_PRUNE_SCHEDULE", "@every 5m"),
		PollInterval:     getDuration("POLL_INTERVAL", 2*time.Second),
		RateLimitRPS:     getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", 10),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	log.Infof("[CONFIG] Environment: %s", cfg.Env)
	log.Infof("[CONFIG] Target Port: %s", cfg.Port)

	if cfg.DatabaseURL == "" {
		log.Warn("[CONFIG] DATABASE_URL is empty, using the in-memory store")
	} else {
		log.Infof("[CONFIG] Database URL detected: %s", maskDBSource(cfg.DatabaseURL))
	}
	if cfg.ChainRPCURL == "" {
		log.Warn("[CONFIG] CHAIN_RPC_URL is empty, identity reconciliation is disabled")
	}
	if cfg.RedisURL != "" {
		log.Info("[CONFIG] REDIS_URL set, cross-instance fan-out and task queue enabled")
	}

	log.Info("[CONFIG] All configuration variables successfully initialized")
	return cfg
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithError(err).Warnf("[CONFIG] Unknown LOG_LEVEL %q, using info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		logrus.Debugf("[CONFIG] Variable %s not found, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logrus.WithError(err).Warnf("[CONFIG] Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithError(err).Warnf("[CONFIG] Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logrus.WithError(err).Warnf("[CONFIG] Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return f
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
