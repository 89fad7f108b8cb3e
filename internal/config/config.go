package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Analysis AnalysisConfig
	Agent    AgentConfig
	Notify   NotifyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret string
	// Bcrypt hash of the chat-bot integration API key. Empty disables the
	// service ingest routes.
	BotAPIKeyHash string
}

// AnalysisConfig points at the external reasoning service.
type AnalysisConfig struct {
	URL            string
	TimeoutSeconds int
}

// AgentConfig tunes the autonomous decision engine. Thresholds are
// deployment parameters, not code constants.
type AgentConfig struct {
	HighConfidence         float64
	MediumConfidence       float64
	MinSuccessProbability  float64
	FollowUpBufferMinutes  int
	FollowUpDefaultMinutes int
	GraceWindowMinutes     int
	HistoryWindow          int
	DefaultTeam            string
	Workers                int
	PollIntervalSeconds    int
	LockTTLSeconds         int
	ScheduleRetries        int
}

// NotifyConfig holds outbound notification endpoints.
type NotifyConfig struct {
	SlackWebhookURL string
	EscalationRef   string
	TimeoutSeconds  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-agent-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("AUTH_JWT_SECRET", "dev-secret"),
			BotAPIKeyHash: os.Getenv("AUTH_BOT_API_KEY_HASH"),
		},
		Analysis: AnalysisConfig{
			URL:            getEnv("ANALYSIS_URL", "https://agent.resolvemeq.com/analyze/"),
			TimeoutSeconds: getEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 30),
		},
		Agent: AgentConfig{
			HighConfidence:         getEnvAsFloat("AGENT_HIGH_CONFIDENCE", 0.8),
			MediumConfidence:       getEnvAsFloat("AGENT_MEDIUM_CONFIDENCE", 0.6),
			MinSuccessProbability:  getEnvAsFloat("AGENT_MIN_SUCCESS_PROBABILITY", 0.8),
			FollowUpBufferMinutes:  getEnvAsInt("AGENT_FOLLOWUP_BUFFER_MINUTES", 15),
			FollowUpDefaultMinutes: getEnvAsInt("AGENT_FOLLOWUP_DEFAULT_MINUTES", 30),
			GraceWindowMinutes:     getEnvAsInt("AGENT_GRACE_WINDOW_MINUTES", 60),
			HistoryWindow:          getEnvAsInt("AGENT_HISTORY_WINDOW", 20),
			DefaultTeam:            getEnv("AGENT_DEFAULT_TEAM", "IT Support"),
			Workers:                getEnvAsInt("AGENT_WORKERS", 4),
			PollIntervalSeconds:    getEnvAsInt("AGENT_POLL_INTERVAL_SECONDS", 5),
			LockTTLSeconds:         getEnvAsInt("AGENT_LOCK_TTL_SECONDS", 60),
			ScheduleRetries:        getEnvAsInt("AGENT_SCHEDULE_RETRIES", 3),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: os.Getenv("NOTIFY_SLACK_WEBHOOK_URL"),
			EscalationRef:   getEnv("NOTIFY_ESCALATION_CHANNEL", "#it-escalations"),
			TimeoutSeconds:  getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
		},
	}

	if cfg.Agent.MediumConfidence > cfg.Agent.HighConfidence {
		return nil, fmt.Errorf("AGENT_MEDIUM_CONFIDENCE %.2f exceeds AGENT_HIGH_CONFIDENCE %.2f",
			cfg.Agent.MediumConfidence, cfg.Agent.HighConfidence)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the reasoning-service call timeout.
func (a AnalysisConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// FollowUpBuffer is the slack added on top of a solution's estimated time.
func (a AgentConfig) FollowUpBuffer() time.Duration {
	return time.Duration(a.FollowUpBufferMinutes) * time.Minute
}

// GraceWindow is how long a fired follow-up waits for a requester reply
// before the no-response default applies.
func (a AgentConfig) GraceWindow() time.Duration {
	return time.Duration(a.GraceWindowMinutes) * time.Minute
}

// PollInterval is the scheduler's due-task scan cadence.
func (a AgentConfig) PollInterval() time.Duration {
	if a.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

// LockTTL bounds how long a per-ticket exclusive section may be held.
func (a AgentConfig) LockTTL() time.Duration {
	if a.LockTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(a.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
