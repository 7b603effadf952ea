package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr           string
	LogLevel       string
	RedisAddr      string
	TileBaseURL    string
	SceneLookback  time.Duration
	SceneSize      int
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
	CacheL1Size    int
	RegionIndexRes int
	Invalidation   InvalidationCfg
}

func FromEnv() Config {
	res := getint("REGION_INDEX_RES", 7)
	if res < 0 || res > 15 {
		res = 7
	}

	return Config{
		Addr:           getenv("ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		TileBaseURL:    getenv("TILE_BASE_URL", "https://tiles.example.com"),
		SceneLookback:  getduration("SCENE_LOOKBACK", 30*24*time.Hour),
		SceneSize:      getint("SCENE_SIZE", 16),
		CacheTTL:       getduration("CACHE_TTL", 30*24*time.Hour),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheL1Size:    getint("CACHE_L1_SIZE", 512),
		RegionIndexRes: res,
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "imagery-reprocessing"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "indexcache-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
