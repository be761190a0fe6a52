package connect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-redis/redis/v8"
	"github.com/supabase-community/supabase-go"
	"github.com/vereinsheim/portal/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitSupabase creates the shared client. The service key is preferred so
// that server side writes work without a user session; the anon key is what
// per-user clients are built from.
func InitSupabase(cfg *config.Config) (*supabase.Client, error) {
	key := cfg.SupabaseAnonKey
	if cfg.SupabaseServiceKey != "" {
		key = cfg.SupabaseServiceKey
	}
	client, err := supabase.NewClient(cfg.SupabaseURL, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Supabase: %w", err)
	}
	return client, nil
}

// MongoDBConnect returns nil without error when no URI is configured; the
// activity log is then disabled.
func MongoDBConnect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	if cfg.MongoDBURI == "" {
		return nil, nil
	}
	fullURI := strings.Replace(cfg.MongoDBURI, "<password>", cfg.MongoDBPassword, 1)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fullURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("MongoDB connected", "database", cfg.MongoDBDatabase)
	return client, nil
}

func MongoDBDisconnect(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	return nil
}

// RedisConnect returns nil when REDIS_ADDR is unset.
func RedisConnect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("Redis connected", "addr", cfg.RedisAddr)
	return client, nil
}

// CloudinaryCredentials returns nil when the account is not configured.
func CloudinaryCredentials(cfg *config.Config, logger *slog.Logger) (*cloudinary.Cloudinary, error) {
	if !cfg.CloudinaryEnabled() {
		return nil, nil
	}
	cld, err := cloudinary.NewFromParams(
		cfg.CloudinaryCloudName,
		cfg.CloudinaryAPIKey,
		cfg.CloudinaryAPISecret,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	logger.Info("Cloudinary configured", "cloud_name", cfg.CloudinaryCloudName)
	return cld, nil
}
