package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8000"`
	LogMode  string `env:"LOG_MODE"  envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"summaries.db"`

	AuthSecretKey  string        `env:"AUTH_SECRET_KEY"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"60m"`

	// RetentionCap is the number of summaries kept per user. Zero or less keeps everything.
	RetentionCap           int    `env:"RETENTION_CAP"            envDefault:"120"`
	RetentionSweepSchedule string `env:"RETENTION_SWEEP_SCHEDULE" envDefault:"@daily"`

	MaxWords          int           `env:"MAX_WORDS"           envDefault:"1500"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES"    envDefault:"33554432"`
	EthicsMaxAttempts int           `env:"ETHICS_MAX_ATTEMPTS" envDefault:"3"`
	JudgeMaxAttempts  int           `env:"JUDGE_MAX_ATTEMPTS"  envDefault:"5"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT"    envDefault:"120s"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4.1"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash-latest"`

	MistralAPIKey  string `env:"MISTRAL_API_KEY"`
	MistralBaseURL string `env:"MISTRAL_BASE_URL" envDefault:"https://api.mistral.ai/v1"`
	MistralModel   string `env:"MISTRAL_MODEL"    envDefault:"mistral-small-latest"`

	RunPodAPIKey     string `env:"RUNPOD_API_KEY"`
	RunPodEndpointID string `env:"RUNPOD_ENDPOINT_ID"`
	RunPodModel      string `env:"RUNPOD_MODEL" envDefault:"deepseek-ai/deepseek-r1-distill-qwen-1.5b"`

	HuggingFaceAPIKey  string `env:"HUGGINGFACE_API_KEY"`
	HuggingFaceBaseURL string `env:"HUGGINGFACE_BASE_URL" envDefault:"https://api-inference.huggingface.co"`

	PerspectiveAPIKey string `env:"PERSPECTIVE_API_KEY"`

	EthicsAuditEnabled   bool `env:"ETHICS_AUDIT_ENABLED"   envDefault:"false"`
	SummariesRequireAuth bool `env:"SUMMARIES_REQUIRE_AUTH" envDefault:"false"`
	LoginRatePerMinute   int  `env:"LOGIN_RATE_PER_MINUTE"  envDefault:"20"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// GOOGLE_GENAI_API_KEY is the older name of the Gemini key.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = getEnv("GOOGLE_GENAI_API_KEY", "")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthSecretKey == "" {
		return errors.New("AUTH_SECRET_KEY environment variable is required")
	}
	if c.EthicsMaxAttempts < 1 {
		return fmt.Errorf("ETHICS_MAX_ATTEMPTS must be at least 1, got %d", c.EthicsMaxAttempts)
	}
	if c.JudgeMaxAttempts < 1 {
		return fmt.Errorf("JUDGE_MAX_ATTEMPTS must be at least 1, got %d", c.JudgeMaxAttempts)
	}
	if c.MaxWords < 1 {
		return fmt.Errorf("MAX_WORDS must be positive, got %d", c.MaxWords)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
