package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"course-admin-service/internal/lockout"
	"course-admin-service/internal/util"
)

type Config struct {
	Environment string

	Server      ServerConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Scylla      ScyllaConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Elastic     ElasticConfig
	Clickhouse  ClickhouseConfig
	KMS         KMSConfig
	Chat        ChatConfig
	Admin       AdminConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	// JWTSecret signs session tokens. The process refuses to start without it:
	// a guessable built-in default would make every deployment forgeable.
	JWTSecret        string
	Issuer           string
	TokenLifetime    time.Duration
	RefreshThreshold time.Duration
	BcryptCost       int
	MaxLoginAttempts int
	LockDuration     time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers            []string
	SecurityEventTopic string
}

type ElasticConfig struct {
	URL               string
	Username          string
	Password          string
	ConversationIndex string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type ChatConfig struct {
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

type AdminConfig struct {
	Email    string
	Password string
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present so local development matches the container setup.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:        util.GetEnv("JWT_SECRET", ""),
			Issuer:           util.GetEnv("JWT_ISSUER", "course-admin-service"),
			TokenLifetime:    util.GetEnvDuration("TOKEN_LIFETIME", 24*time.Hour),
			RefreshThreshold: util.GetEnvDuration("TOKEN_REFRESH_THRESHOLD", time.Hour),
			BcryptCost:       util.GetEnvInt("BCRYPT_COST", 12),
			MaxLoginAttempts: util.GetEnvInt("MAX_LOGIN_ATTEMPTS", 5),
			LockDuration:     util.GetEnvDuration("ACCOUNT_LOCK_DURATION", time.Hour),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvList("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "course_admin"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Redis: RedisConfig{
			URL:      util.GetEnv("REDIS_URL", "redis://127.0.0.1:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
			PoolSize: util.GetEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Brokers:            util.GetEnvList("KAFKA_BROKERS", nil),
			SecurityEventTopic: util.GetEnv("KAFKA_SECURITY_EVENT_TOPIC", "security-events"),
		},
		Elastic: ElasticConfig{
			URL:               util.GetEnv("ELASTICSEARCH_URL", ""),
			Username:          util.GetEnv("ELASTICSEARCH_USERNAME", ""),
			Password:          util.GetEnv("ELASTICSEARCH_PASSWORD", ""),
			ConversationIndex: util.GetEnv("ELASTICSEARCH_CONVERSATION_INDEX", "conversations"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      util.GetEnv("CLICKHOUSE_URL", ""),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "course_admin"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		KMS: KMSConfig{
			Enabled: util.GetEnvBool("KMS_ENABLED", false),
			KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			Region:  util.GetEnv("AWS_REGION", "eu-central-1"),
		},
		Chat: ChatConfig{
			RequestTimeout: util.GetEnvDuration("CHAT_REQUEST_TIMEOUT", 30*time.Second),
			RateLimit:      util.GetEnvInt("CHAT_RATE_LIMIT", 30),
			RateWindow:     util.GetEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
		Admin: AdminConfig{
			Email:    util.GetEnv("ADMIN_EMAIL", ""),
			Password: util.GetEnv("ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that must never reach a running process.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.TokenLifetime <= 0 {
		return fmt.Errorf("TOKEN_LIFETIME must be positive")
	}
	if c.Auth.RefreshThreshold <= 0 || c.Auth.RefreshThreshold >= c.Auth.TokenLifetime {
		return fmt.Errorf("TOKEN_REFRESH_THRESHOLD must be positive and below TOKEN_LIFETIME")
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		return fmt.Errorf("KMS_KEY_ID is required when KMS_ENABLED is set")
	}
	if c.IsProduction() && c.Admin.Email != "" && c.Admin.Password == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// LockoutPolicy builds the lockout policy from the auth settings.
func (c *Config) LockoutPolicy() lockout.Policy {
	policy := lockout.DefaultPolicy
	if c.Auth.MaxLoginAttempts > 0 {
		policy.MaxAttempts = c.Auth.MaxLoginAttempts
	}
	if c.Auth.LockDuration > 0 {
		policy.LockDuration = c.Auth.LockDuration
	}
	return policy
}
