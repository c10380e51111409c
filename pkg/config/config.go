package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers supported by the dispute subsystem.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Points modes decide when a completed chore's award reaches the ledger.
const (
	PointsModeOnCompletion = "on_completion"
	PointsModeOnResolution = "on_resolution"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Disputes   DisputeConfig
	Membership MembershipConfig
	Kafka      KafkaConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	OpTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DisputeConfig governs quorum deadlines, the auto-resolution sweeper and side-effect workers.
type DisputeConfig struct {
	StoreDriver      string
	ResolutionWindow time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
	SweepLockTTL     time.Duration
	EffectsGrace     time.Duration
	PointsMode       string
	Workers          int
	WorkerRetries    int
	WorkerRetryDelay time.Duration
	// MemorySeed is a YAML or JSON household fixture for the memory driver.
	MemorySeed       string
}

// MembershipConfig tunes caching of eligible-voter lookups.
type MembershipConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// KafkaConfig enables publishing of dispute resolution events.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	DisputeTopic string
	WriteTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("ENABLE_REDIS"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		OpTimeout: parseDuration(v.GetString("REDIS_OP_TIMEOUT"), 500*time.Millisecond),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Disputes = DisputeConfig{
		StoreDriver:      strings.ToLower(v.GetString("DISPUTE_STORE")),
		ResolutionWindow: parseDuration(v.GetString("DISPUTE_RESOLUTION_WINDOW"), 24*time.Hour),
		SweepInterval:    parseDuration(v.GetString("DISPUTE_SWEEP_INTERVAL"), time.Minute),
		SweepBatchSize:   v.GetInt("DISPUTE_SWEEP_BATCH_SIZE"),
		SweepLockTTL:     parseDuration(v.GetString("DISPUTE_SWEEP_LOCK_TTL"), 30*time.Second),
		EffectsGrace:     parseDuration(v.GetString("DISPUTE_EFFECTS_GRACE"), 5*time.Minute),
		PointsMode:       strings.ToLower(v.GetString("DISPUTE_POINTS_MODE")),
		Workers:          v.GetInt("DISPUTE_WORKERS"),
		WorkerRetries:    v.GetInt("DISPUTE_WORKER_RETRIES"),
		WorkerRetryDelay: parseDuration(v.GetString("DISPUTE_WORKER_RETRY_DELAY"), 2*time.Second),
		MemorySeed:       strings.TrimSpace(v.GetString("DISPUTE_MEMORY_SEED")),
	}
	if cfg.Disputes.StoreDriver != StoreDriverMemory {
		cfg.Disputes.StoreDriver = StoreDriverPostgres
	}
	if cfg.Disputes.PointsMode != PointsModeOnResolution {
		cfg.Disputes.PointsMode = PointsModeOnCompletion
	}

	cfg.Membership = MembershipConfig{
		CacheEnabled: v.GetBool("ENABLE_MEMBERSHIP_CACHE"),
		CacheTTL:     parseDuration(v.GetString("MEMBERSHIP_CACHE_TTL"), time.Minute),
	}

	cfg.Kafka = KafkaConfig{
		Enabled:      v.GetBool("ENABLE_KAFKA"),
		Brokers:      splitAndTrim(v.GetString("KAFKA_BROKERS")),
		DisputeTopic: v.GetString("KAFKA_DISPUTE_TOPIC"),
		WriteTimeout: parseDuration(v.GetString("KAFKA_WRITE_TIMEOUT"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "chores")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_OP_TIMEOUT", "500ms")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "chore-dispute-api")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DISPUTE_STORE", StoreDriverPostgres)
	v.SetDefault("DISPUTE_RESOLUTION_WINDOW", "24h")
	v.SetDefault("DISPUTE_SWEEP_INTERVAL", "1m")
	v.SetDefault("DISPUTE_SWEEP_BATCH_SIZE", 100)
	v.SetDefault("DISPUTE_SWEEP_LOCK_TTL", "30s")
	v.SetDefault("DISPUTE_EFFECTS_GRACE", "5m")
	v.SetDefault("DISPUTE_POINTS_MODE", PointsModeOnCompletion)
	v.SetDefault("DISPUTE_WORKERS", 2)
	v.SetDefault("DISPUTE_WORKER_RETRIES", 5)
	v.SetDefault("DISPUTE_WORKER_RETRY_DELAY", "2s")
	v.SetDefault("DISPUTE_MEMORY_SEED", "")

	v.SetDefault("ENABLE_MEMBERSHIP_CACHE", false)
	v.SetDefault("MEMBERSHIP_CACHE_TTL", "1m")

	v.SetDefault("ENABLE_KAFKA", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_DISPUTE_TOPIC", "chores.dispute.resolved")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "5s")
}

// isMissingFile treats an absent .env as optional; viper reports a path error
// rather than ConfigFileNotFoundError when SetConfigFile is used.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
