package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション設定を表す
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Reservation ReservationConfig
	Ticket      TicketConfig
	Auth        AuthConfig
}

// AppConfig は実行環境の設定
type AppConfig struct {
	Env            string // development / production
	Storage        string // postgres / memory
	MigrationsPath string
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig はRedis設定。Enabled が false ならプロセス内ガードとキャッシュなしで動く
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// RabbitMQConfig は通知キューの設定。URL が空なら通知はログ出力のみ
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// ReservationConfig は予約エンジンの設定
type ReservationConfig struct {
	HoldDuration      time.Duration
	ReaperInterval    time.Duration
	InitialStatus     string // reserved / pending
	DirectPayment     bool
	DistributedLock   bool
	LockTTL           time.Duration
	LockRetries       int
	LockRetryDelay    time.Duration
	SideEffectWorkers int
	SideEffectQueue   int
}

// TicketConfig はチケット出力の設定
type TicketConfig struct {
	OutputDir string
}

// AuthConfig は管理系APIの認証設定。JWTSecret が空なら認証しない
type AuthConfig struct {
	JWTSecret       string
	MetricsUser     string
	MetricsPassword string
}

// Load は .env（存在すれば）と環境変数から設定を読み込む
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:            getEnv("APP_ENV", "development"),
			Storage:        getEnv("STORAGE", "postgres"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "table_reservation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("NOTIFY_QUEUE", "booking.notifications"),
		},
		Reservation: ReservationConfig{
			HoldDuration:      getDurationEnv("HOLD_DURATION", 15*time.Minute),
			ReaperInterval:    getDurationEnv("REAPER_INTERVAL", 5*time.Second),
			InitialStatus:     getEnv("INITIAL_STATUS", "reserved"),
			DirectPayment:     getBoolEnv("DIRECT_PAYMENT", true),
			DistributedLock:   getBoolEnv("DISTRIBUTED_LOCK", true),
			LockTTL:           getDurationEnv("LOCK_TTL", 10*time.Second),
			LockRetries:       getIntEnv("LOCK_RETRIES", 50),
			LockRetryDelay:    getDurationEnv("LOCK_RETRY_DELAY", 20*time.Millisecond),
			SideEffectWorkers: getIntEnv("SIDE_EFFECT_WORKERS", 4),
			SideEffectQueue:   getIntEnv("SIDE_EFFECT_QUEUE", 256),
		},
		Ticket: TicketConfig{
			OutputDir: getEnv("TICKET_OUTPUT_DIR", "tickets"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			MetricsUser:     getEnv("METRICS_USER", ""),
			MetricsPassword: getEnv("METRICS_PASSWORD", ""),
		},
	}

	// PaaS形式の接続URLがあれば個別指定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}
	return cfg
}

// IsProduction は本番環境かを返す
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	c.DBName = strings.TrimPrefix(u.Path, "/")
	c.SSLMode = u.Query().Get("sslmode")
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if port := u.Port(); port != "" {
		c.Port = port
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
