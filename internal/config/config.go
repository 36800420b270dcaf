package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	InstanceID string
	Redis      struct {
		Addr     string
		Password string
		DB       int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	RateLimit struct {
		TelegramRateLimiter int
	}
	Channels struct {
		File           string
		ReloadInterval time.Duration
	}
	Detection struct {
		BaselineInterval time.Duration
		AnomalyCooldown  time.Duration
	}
	Tasks struct {
		StatusTTL time.Duration
		Workers   int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	cfg.InstanceID = os.Getenv("INSTANCE_ID")

	// Redis relay and task queue
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = n
	}

	// Kafka ingest
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	if rl, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.RateLimit.TelegramRateLimiter = rl
	}

	cfg.Channels.File = os.Getenv("CHANNELS_FILE")

	var err error
	if cfg.Channels.ReloadInterval, err = durationEnv("CHANNEL_RELOAD_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.Detection.BaselineInterval, err = durationEnv("BASELINE_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.Detection.AnomalyCooldown, err = durationEnv("ANOMALY_COOLDOWN"); err != nil {
		return Config{}, err
	}
	if cfg.Tasks.StatusTTL, err = durationEnv("TASK_STATUS_TTL"); err != nil {
		return Config{}, err
	}
	if w, err := strconv.Atoi(os.Getenv("TASK_WORKERS")); err == nil {
		cfg.Tasks.Workers = w
	}

	// Validate required settings
	missing := []string{}
	if cfg.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "fleetwatch"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "telemetry"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.RateLimit.TelegramRateLimiter == 0 {
		cfg.RateLimit.TelegramRateLimiter = 20
	}
	if cfg.Channels.ReloadInterval == 0 {
		cfg.Channels.ReloadInterval = time.Minute
	}
	if cfg.Detection.BaselineInterval == 0 {
		cfg.Detection.BaselineInterval = time.Hour
	}
	if cfg.Detection.AnomalyCooldown == 0 {
		cfg.Detection.AnomalyCooldown = 900 * time.Second
	}
	if cfg.Tasks.StatusTTL == 0 {
		cfg.Tasks.StatusTTL = time.Hour
	}
	if cfg.Tasks.Workers == 0 {
		cfg.Tasks.Workers = 4
	}
}

// durationEnv parses a Go duration from key; an unset key yields zero.
func durationEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
