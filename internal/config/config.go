package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	LogFormat     string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret string
	JWTTTL    time.Duration

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// LLM
	LLMPrimary     string
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModel    string
	LLMMaxTokens   int
	LLMTemperature float64

	// Qualification pipeline
	UseMemoryQueue            bool
	WorkerCount               int
	JobMaxReceives            int
	JobRetryBase              time.Duration
	QualificationQueueURL     string
	QualificationJobsTable    string
	QualificationWorkerInline bool
	BANTQualifiedThreshold    int

	KnowledgeBucket string

	// Email
	SendGridAPIKey      string
	SESFromEmail        string
	SESConfigurationSet string
	EmailFrom           string
	EmailFromName       string

	// Events
	NATSURL             string
	NATSToken           string
	EventsSubjectPrefix string

	HandoffSLA           time.Duration
	HandoffSweepSchedule string

	SeedAdminEmail    string
	SeedAdminPassword string
	SeedOrgName       string
}

// Load reads configuration from the environment. A local .env file is applied
// first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvAsDuration("JWT_TTL", 12*time.Hour),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		LLMPrimary:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PRIMARY", "bedrock"))),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 512),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.4),

		UseMemoryQueue:            getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:               getEnvAsInt("WORKER_COUNT", 2),
		JobMaxReceives:            getEnvAsInt("QUALIFICATION_MAX_RECEIVES", 5),
		JobRetryBase:              getEnvAsDuration("QUALIFICATION_RETRY_BASE", 10*time.Second),
		QualificationQueueURL:     getEnv("QUALIFICATION_QUEUE_URL", ""),
		QualificationJobsTable:    getEnv("QUALIFICATION_JOBS_TABLE", ""),
		QualificationWorkerInline: getEnvAsBool("QUALIFICATION_WORKER_INLINE", false),
		BANTQualifiedThreshold:    getEnvAsInt("BANT_QUALIFIED_THRESHOLD", 3),

		KnowledgeBucket: getEnv("KNOWLEDGE_BUCKET", ""),

		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		EmailFrom:           getEnv("EMAIL_FROM", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "AgentDesk"),

		NATSURL:             getEnv("NATS_URL", ""),
		NATSToken:           getEnv("NATS_TOKEN", ""),
		EventsSubjectPrefix: getEnv("EVENTS_SUBJECT_PREFIX", "agentdesk"),

		HandoffSLA:           getEnvAsDuration("HANDOFF_SLA", 5*time.Minute),
		HandoffSweepSchedule: getEnv("HANDOFF_SWEEP_SCHEDULE", "@every 1m"),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedOrgName:       getEnv("SEED_ORG_NAME", "Demo Org"),
	}
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
