package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the runtime.
type Config struct {
	Port string

	// Database
	DBPath string

	// Market data
	UseMockFeed bool
	FeedURL     string
	Symbols     []string

	// Contract table
	ContractsPath string

	// Event bus
	TimerInterval time.Duration

	// Paper gateway simulation
	PaperInitialBalance float64
	PaperSlippageTicks  int

	// Auth
	JWTSecret string

	// API rate limiting (requests per second per client IP)
	APIRateLimit float64
	APIRateBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/cta.db"),
		UseMockFeed:         getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:             getEnv("FEED_URL", ""),
		Symbols:             splitAndTrim(getEnv("SYMBOLS", "IF2006.CFFEX,rb2010.SHFE")),
		ContractsPath:       getEnv("CONTRACTS_PATH", "./configs/contracts.yaml"),
		TimerInterval:       time.Duration(getEnvFloat("TIMER_INTERVAL_SECONDS", 1) * float64(time.Second)),
		PaperInitialBalance: getEnvFloat("PAPER_INITIAL_BALANCE", 1_000_000),
		PaperSlippageTicks:  getEnvInt("PAPER_SLIPPAGE_TICKS", 0),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		APIRateLimit:        getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:        getEnvInt("API_RATE_BURST", 40),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
