// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（フィードキャッシュ）
	RedisURL string

	// NATS（投稿イベント）
	NATSURL string

	// Feed
	FeedSourceLimit  int           // 各ソースクエリの取得上限
	FeedDefaultLimit int           // 1ページあたりのデフォルト件数
	NearbyDistanceKM float64       // 近隣ソースの検索半径（km）
	TrendingWindow   time.Duration // トレンドソースの対象期間
	FeedCacheTTL     time.Duration // ランキング済みフィードのキャッシュTTL

	// Story
	StoryTTL time.Duration // ストーリーの有効期間

	// Geocoder
	GeocoderEndpoint string
	GeocoderTimeout  time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral    int
	RateLimitPostCreate int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	// NATSは未設定でも起動できる（投稿イベントの配信が無効になるだけ）
	cfg.NATSURL = getEnvString("NATS_URL", "")

	cfg.FeedSourceLimit = getEnvInt("FEED_SOURCE_LIMIT", 100)
	cfg.FeedDefaultLimit = getEnvInt("FEED_DEFAULT_LIMIT", 20)
	cfg.NearbyDistanceKM = getEnvFloat("NEARBY_DISTANCE_KM", 20)
	cfg.TrendingWindow = getEnvDuration("TRENDING_WINDOW", 24*time.Hour)
	cfg.FeedCacheTTL = getEnvDuration("FEED_CACHE_TTL", 60*time.Second)
	cfg.StoryTTL = getEnvDuration("STORY_TTL", 24*time.Hour)
	cfg.GeocoderEndpoint = getEnvString("GEOCODER_ENDPOINT", "https://nominatim.openstreetmap.org/search")
	cfg.GeocoderTimeout = getEnvDuration("GEOCODER_TIMEOUT", 5*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPostCreate = getEnvInt("RATE_LIMIT_POST_CREATE", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
