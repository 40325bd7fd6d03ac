package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Draft    DraftConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	Jina         string
	IndexTopic   string
}

type AIConfig struct {
	EmbeddingProvider string // "gemini" or "ollama"
	OllamaBaseURL     string
	OllamaModel       string // embedding model

	// Two drafting providers. Parallel mode fans out to both; refine mode
	// uses A to create and B to refine.
	ProviderA      string // "ollama" or "openai"
	ProviderAModel string
	ProviderB      string
	ProviderBModel string
	OpenAIBaseURL  string
}

type DraftConfig struct {
	ProgressTickEvery time.Duration
	ProgressCeiling   int
	MaxTokens         int
	HistoryLimit      int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			IndexTopic:   getEnv("INDEX_DOCUMENT_TOPIC", "index_document"),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			ProviderA:         getEnv("DRAFT_PROVIDER_A", "ollama"),
			ProviderAModel:    getEnv("DRAFT_PROVIDER_A_MODEL", "llama3"),
			ProviderB:         getEnv("DRAFT_PROVIDER_B", "ollama"),
			ProviderBModel:    getEnv("DRAFT_PROVIDER_B_MODEL", "qwen2.5"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		},
		Draft: DraftConfig{
			ProgressTickEvery: getEnvAsDuration("DRAFT_PROGRESS_TICK", 500*time.Millisecond),
			ProgressCeiling:   getEnvAsInt("DRAFT_PROGRESS_CEILING", 90),
			MaxTokens:         getEnvAsInt("DRAFT_MAX_TOKENS", 4096),
			HistoryLimit:      getEnvAsInt("DRAFT_HISTORY_LIMIT", 20),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
