package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort       string
	DatabaseURL    string
	BaseURL        string
	LogLevel       string
	JWTSecret      string
	GitHubToken    string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	BlueskyHandle  string
	BlueskyAppPass string
	ExcerptLength  int
	RequestTimeout time.Duration
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", "simpleblog.db"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		GitHubToken:    getEnv("GITHUB_TOKEN", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		BlueskyHandle:  getEnv("BLUESKY_HANDLE", ""),
		BlueskyAppPass: getEnv("BLUESKY_APP_PASSWORD", ""),
		ExcerptLength:  getEnvAsInt("EXCERPT_LENGTH", 200),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Image providers and Bluesky are optional: with no keys set the
	// thumbnail chain still terminates at the deterministic placeholder.
	if AppConfig.OpenAIAPIKey == "" && AppConfig.GeminiAPIKey == "" {
		log.Println("No image provider keys configured, thumbnails will use placeholders")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
