package container

import (
	"fmt"
	"log/slog"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/go-redis/redis/v8"
	"github.com/supabase-community/supabase-go"
	"github.com/vereinsheim/portal/internal/config"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
	"github.com/vereinsheim/portal/internal/notify"
	"github.com/vereinsheim/portal/internal/policy"
	"github.com/vereinsheim/portal/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Policy    *policy.Policy
	Validator *helpers.TokenValidator
	Notifier  *notify.Notifier

	// Backend clients; Mongo, Redis and Cloudinary are nil when not configured
	SupabaseClient *supabase.Client
	MongoDBClient  *mongo.Client
	RedisClient    *redis.Client
	Cloudinary     *cloudinary.Cloudinary

	Activity models.ActivityRepo

	UserService     *services.UserService
	RequestService  *services.RequestService
	EventService    *services.EventService
	ContestService  *services.ContestService
	PresenceService *services.PresenceService
}

// Clients bundles the connections opened in main.
type Clients struct {
	Supabase   *supabase.Client
	MongoDB    *mongo.Client
	Redis      *redis.Client
	Cloudinary *cloudinary.Cloudinary
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *slog.Logger, clients Clients, validator *helpers.TokenValidator) (*Container, error) {
	pol := policy.New(cfg.AdminEmail)

	// Initialize repositories
	supa := models.SupabaseNewRepo(clients.Supabase, cfg.SupabaseURL, cfg.SupabaseAnonKey).
		WithBuckets(cfg.ContractBucket, cfg.ContestBucket)

	var activity models.ActivityRepo = models.NoopActivityRepo{}
	if clients.MongoDB != nil {
		activity = models.MongodbNewRepo(clients.MongoDB, cfg.MongoDBDatabase)
	}

	var cache models.Cache
	if clients.Redis != nil {
		cache = models.NewRedisCache(clients.Redis, "vereinsheim:")
	}

	var cdn services.CDNUploader
	if clients.Cloudinary != nil {
		cdn = helpers.NewCloudinaryUploader(clients.Cloudinary)
	}

	mailer, err := notify.NewMailer(notify.MailerConfig{
		Provider:     cfg.MailProvider,
		FunctionName: cfg.EmailFunction,
		FromAddress:  cfg.MailFrom,
		FromName:     cfg.MailFromName,
		SES: notify.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	}, clients.Supabase.Functions, logger)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	admins := cfg.NotifyAdminEmails
	if len(admins) == 0 && cfg.AdminEmail != "" {
		admins = []string{cfg.AdminEmail}
	}
	notifier, err := notify.NewNotifier(mailer, notify.Options{
		AdminEmails: admins,
		FrontendURL: cfg.FrontendURL,
		Timeout:     cfg.NotifyTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	images := services.NewImageService(cdn, supa, logger)

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Policy:          pol,
		Validator:       validator,
		Notifier:        notifier,
		SupabaseClient:  clients.Supabase,
		MongoDBClient:   clients.MongoDB,
		RedisClient:     clients.Redis,
		Cloudinary:      clients.Cloudinary,
		Activity:        activity,
		UserService:     services.NewUserService(supa, pol),
		RequestService:  services.NewRequestService(supa, supa, supa, activity, notifier, pol, logger),
		EventService:    services.NewEventService(supa, supa, pol, logger),
		ContestService:  services.NewContestService(supa, supa, images, notifier, pol, logger),
		PresenceService: services.NewPresenceService(clients.Supabase.Functions, cfg.PresenceFunction, cache, 0, logger),
	}, nil
}
