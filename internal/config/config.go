package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	FrontendURL string
	CORSOrigins []string

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	ContractBucket     string
	ContestBucket      string
	EmailFunction      string
	PresenceFunction   string

	AdminEmail        string
	NotifyAdminEmails []string

	MailProvider       string
	MailFrom           string
	MailFromName       string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	MongoDBURI      string
	MongoDBPassword string
	MongoDBDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	AnalyticsProvider string
	PlausibleDomain   string
	GA4MeasurementID  string

	RequestTimeout time.Duration
	ListTimeout    time.Duration
	NotifyTimeout  time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		FrontendURL: getEnvWithDefault("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigins: splitList(getEnvWithDefault("CORS_ORIGINS", "http://localhost:3000")),

		SupabaseURL:        strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:    os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_KEY"),
		ContractBucket:     getEnvWithDefault("CONTRACT_BUCKET", "event-contracts"),
		ContestBucket:      getEnvWithDefault("CONTEST_BUCKET", "special-event-images"),
		EmailFunction:      getEnvWithDefault("EMAIL_FUNCTION", "send-email"),
		PresenceFunction:   getEnvWithDefault("PRESENCE_FUNCTION", "check-presence"),

		AdminEmail:        strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		NotifyAdminEmails: splitList(os.Getenv("NOTIFY_ADMIN_EMAILS")),

		MailProvider:       getEnvWithDefault("MAIL_PROVIDER", "function"),
		MailFrom:           os.Getenv("MAIL_FROM"),
		MailFromName:       getEnvWithDefault("MAIL_FROM_NAME", "Vereinsheim"),
		AWSRegion:          getEnvWithDefault("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),

		MongoDBURI:      os.Getenv("MONGODB_URI"),
		MongoDBPassword: os.Getenv("MONGODB_PASSWORD"),
		MongoDBDatabase: getEnvWithDefault("MONGODB_DATABASE", "vereinsheim"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		AnalyticsProvider: strings.ToLower(os.Getenv("ANALYTICS_PROVIDER")),
		PlausibleDomain:   os.Getenv("PLAUSIBLE_DOMAIN"),
		GA4MeasurementID:  os.Getenv("GA4_MEASUREMENT_ID"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnvWithDefault("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("REDIS_DB must be a number: %w", err)
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ListTimeout, err = getDuration("LIST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerated values.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseAnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	switch c.AnalyticsProvider {
	case "", "vercel", "plausible", "ga4":
	default:
		return fmt.Errorf("ANALYTICS_PROVIDER must be one of vercel, plausible, ga4 (got %q)", c.AnalyticsProvider)
	}
	switch c.MailProvider {
	case "function", "noop":
	case "ses":
		if c.MailFrom == "" {
			return fmt.Errorf("MAIL_FROM is required for the ses mail provider")
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be one of function, ses, noop (got %q)", c.MailProvider)
	}
	if c.MongoDBURI != "" && strings.Contains(c.MongoDBURI, "<password>") && c.MongoDBPassword == "" {
		return fmt.Errorf("MONGODB_PASSWORD is required when MONGODB_URI contains a password placeholder")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// LogValue keeps keys and passwords out of the logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("environment", c.Environment),
		slog.String("port", c.Port),
		slog.String("supabase_url", c.SupabaseURL),
		slog.String("mail_provider", c.MailProvider),
		slog.Bool("mongodb", c.MongoDBURI != ""),
		slog.Bool("redis", c.RedisAddr != ""),
		slog.Bool("cloudinary", c.CloudinaryEnabled()),
		slog.String("analytics", c.AnalyticsProvider),
		slog.Duration("request_timeout", c.RequestTimeout),
	)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
