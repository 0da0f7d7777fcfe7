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

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	SiteURL   string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Timetable     TimetableConfig
	Schedule      ScheduleConfig
	Announcements AnnouncementsConfig
	Notifications NotificationsConfig
	Mail          MailConfig
	Broker        BrokerConfig
	Events        EventsConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
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

// TimetableConfig selects the rotation schedule definitions and the zone periods are expressed in.
type TimetableConfig struct {
	Timezone       string
	FormatsFile    string
	StrictVariants bool
}

// ScheduleConfig governs memoisation of computed day schedules.
type ScheduleConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	MaxRangeDays int
}

// AnnouncementsConfig holds moderation policy switches.
type AnnouncementsConfig struct {
	AllowApprovedResubmit bool
	ApprovalBCC           []string
	ResendLimit           int
	ResendWindow          time.Duration
}

// NotificationsConfig sizes the notification worker pool.
type NotificationsConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// MailConfig configures outbound approval mail.
type MailConfig struct {
	SendGridAPIKey   string
	FromName         string
	FromAddress      string
	BreakerFailures  uint32
	BreakerTimeout   time.Duration
	BreakerHalfOpen  uint32
	BreakerResetSpan time.Duration
}

// BrokerConfig points at the message broker used for announcement broadcasts.
type BrokerConfig struct {
	URL string
}

// EventsConfig holds defaults for generated events.
type EventsConfig struct {
	LateStartOrganizationID string
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
	cfg.SiteURL = strings.TrimRight(v.GetString("SITE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 30*time.Minute),
		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:     v.GetBool("REDIS_ENABLED"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
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

	cfg.Timetable = TimetableConfig{
		Timezone:       v.GetString("TIMETABLE_TIMEZONE"),
		FormatsFile:    v.GetString("TIMETABLE_FORMATS_FILE"),
		StrictVariants: v.GetBool("TIMETABLE_STRICT_VARIANTS"),
	}

	cfg.Schedule = ScheduleConfig{
		CacheEnabled: v.GetBool("SCHEDULE_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("SCHEDULE_CACHE_TTL"), 6*time.Hour),
		MaxRangeDays: v.GetInt("SCHEDULE_MAX_RANGE_DAYS"),
	}

	cfg.Announcements = AnnouncementsConfig{
		AllowApprovedResubmit: v.GetBool("ANNOUNCEMENTS_ALLOW_APPROVED_RESUBMIT"),
		ApprovalBCC:           splitAndTrim(v.GetString("ANNOUNCEMENT_APPROVAL_BCC")),
		ResendLimit:           v.GetInt("RESEND_APPROVAL_LIMIT"),
		ResendWindow:          parseDuration(v.GetString("RESEND_APPROVAL_WINDOW"), time.Hour),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:    v.GetBool("NOTIFICATIONS_ENABLED"),
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		MaxRetries: v.GetInt("NOTIFY_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Mail = MailConfig{
		SendGridAPIKey:   v.GetString("SENDGRID_API_KEY"),
		FromName:         v.GetString("MAIL_FROM_NAME"),
		FromAddress:      v.GetString("MAIL_FROM_ADDRESS"),
		BreakerFailures:  uint32(v.GetInt("MAIL_BREAKER_FAILURES")),
		BreakerTimeout:   parseDuration(v.GetString("MAIL_BREAKER_TIMEOUT"), 30*time.Second),
		BreakerHalfOpen:  uint32(v.GetInt("MAIL_BREAKER_HALF_OPEN_REQUESTS")),
		BreakerResetSpan: parseDuration(v.GetString("MAIL_BREAKER_INTERVAL"), time.Minute),
	}

	cfg.Broker = BrokerConfig{URL: v.GetString("RABBITMQ_URL")}

	cfg.Events = EventsConfig{
		LateStartOrganizationID: v.GetString("LATE_START_ORGANIZATION_ID"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SITE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "metropolis")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "metropolis")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TIMETABLE_TIMEZONE", "UTC")
	v.SetDefault("TIMETABLE_FORMATS_FILE", "")
	v.SetDefault("TIMETABLE_STRICT_VARIANTS", false)

	v.SetDefault("SCHEDULE_CACHE_ENABLED", false)
	v.SetDefault("SCHEDULE_CACHE_TTL", "6h")
	v.SetDefault("SCHEDULE_MAX_RANGE_DAYS", 62)

	v.SetDefault("ANNOUNCEMENTS_ALLOW_APPROVED_RESUBMIT", false)
	v.SetDefault("ANNOUNCEMENT_APPROVAL_BCC", "")
	v.SetDefault("RESEND_APPROVAL_LIMIT", 2)
	v.SetDefault("RESEND_APPROVAL_WINDOW", "1h")

	v.SetDefault("NOTIFICATIONS_ENABLED", false)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Metropolis")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@localhost")
	v.SetDefault("MAIL_BREAKER_FAILURES", 5)
	v.SetDefault("MAIL_BREAKER_TIMEOUT", "30s")
	v.SetDefault("MAIL_BREAKER_HALF_OPEN_REQUESTS", 1)
	v.SetDefault("MAIL_BREAKER_INTERVAL", "1m")

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("LATE_START_ORGANIZATION_ID", "")
}

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
