package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// AI provider (OpenAI-compatible REST endpoint)
	AIBaseURL      string
	AIAPIKey       string
	ClassifyModel  string
	ChatModel      string
	EmbeddingModel string

	// Bounded timeouts for external calls. On expiry the deterministic
	// fallback path is taken, never an error to the user.
	ClassifyTimeout  time.Duration
	EmbeddingTimeout time.Duration
	SearchTimeout    time.Duration

	// Hybrid search blend weight (vector share; lexical gets the rest)
	VectorWeight float64

	// Encryption of conversation history at rest (64 hex chars)
	EncryptionMasterKey string

	// Shared secret for the channel adapter's service JWT
	WebhookJWTSecret string

	// Optional lexicon override file (compiled-in defaults when empty)
	LexiconPath string

	// Daily briefing cron expression (empty disables the briefing job)
	BriefingCron string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017/tasknest"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		AIBaseURL:      getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
		ClassifyModel:  getEnv("AI_CLASSIFY_MODEL", "gpt-4o-mini"),
		ChatModel:      getEnv("AI_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("AI_EMBEDDING_MODEL", "text-embedding-3-small"),

		ClassifyTimeout:  getDurationEnv("AI_CLASSIFY_TIMEOUT", 8*time.Second),
		EmbeddingTimeout: getDurationEnv("AI_EMBEDDING_TIMEOUT", 4*time.Second),
		SearchTimeout:    getDurationEnv("SEARCH_TIMEOUT", 5*time.Second),

		VectorWeight: getFloatEnv("SEARCH_VECTOR_WEIGHT", 0.7),

		EncryptionMasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),
		WebhookJWTSecret:    getEnv("WEBHOOK_JWT_SECRET", ""),
		LexiconPath:         getEnv("LEXICON_PATH", ""),
		BriefingCron:        getEnv("BRIEFING_CRON", "0 8 * * *"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
