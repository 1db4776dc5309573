package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type EmailConfig struct {
	Region     string
	FromEmail  string
	FromName   string
	AppBaseURL string
}

// GeneratorConfig selects the LLM backend used to draft explanations.
// An empty Backend turns drafting off.
type GeneratorConfig struct {
	Backend string
	Model   string
	APIKey  string
	CLIPath string
}

const (
	GeneratorAPI  = "api"
	GeneratorCLI  = "cli"
	GeneratorMock = "mock"
)

// Config holds application configuration
type Config struct {
	Port               string
	Database           DatabaseConfig
	Redis              RedisConfig
	Email              EmailConfig
	Generator          GeneratorConfig
	JWTSecret          []byte
	TokenTTL           time.Duration
	QuestionCacheTTL   time.Duration
	SessionTTL         time.Duration
	ExpirySweep        time.Duration
	CORSAllowedOrigins []string
	AdminEmail         string
	AdminPassword      string
}

// Load reads an optional .env file, then configuration from environment
// variables with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		log.Println("WARN: JWT_SECRET not set, using development signing key")
		secret = "exam-prep-development-signing-key"
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "exam_user"),
			Password: getEnv("DB_PASSWORD", "exam_password"),
			Name:     getEnv("DB_NAME", "exam_prep"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Region:     getEnv("SES_REGION", "us-east-1"),
			FromEmail:  getEnv("SES_FROM_EMAIL", ""),
			FromName:   getEnv("SES_FROM_NAME", "Exam Prep"),
			AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
		Generator:          loadGenerator(),
		JWTSecret:          []byte(secret),
		TokenTTL:           time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		QuestionCacheTTL:   time.Duration(getEnvInt("QUESTION_CACHE_TTL_MINUTES", 10)) * time.Minute,
		SessionTTL:         time.Duration(getEnvInt("SESSION_TTL_HOURS", 12)) * time.Hour,
		ExpirySweep:        time.Duration(getEnvInt("EXPIRY_SWEEP_SECONDS", 15)) * time.Second,
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		AdminEmail:         strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
	}
}

func loadGenerator() GeneratorConfig {
	cfg := GeneratorConfig{
		Model:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		CLIPath: getEnv("CLAUDE_CLI_PATH", "claude"),
	}
	switch {
	case os.Getenv("USE_CLI_GENERATOR") == "true":
		cfg.Backend = GeneratorCLI
	case os.Getenv("MOCK_GENERATOR") == "true":
		cfg.Backend = GeneratorMock
	case cfg.APIKey != "":
		cfg.Backend = GeneratorAPI
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt falls back on missing, malformed or non-positive values.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("WARN: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
