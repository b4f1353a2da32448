package pkg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/limiter"
	"github.com/certtrack/certificate-service/internal/migrations"
	"github.com/certtrack/certificate-service/internal/repositories"
	"github.com/certtrack/certificate-service/internal/repositories/memory"
	"github.com/certtrack/certificate-service/internal/repositories/postgres"
	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/internal/storage"
	"github.com/certtrack/certificate-service/internal/validator"
)

// Runtime holds the wired collaborators shared by the server and certctl
type Runtime struct {
	Repos    repositories.RepositoryManager
	Redis    *redis.Client
	Issuer   *auth.TokenIssuer
	Services services.ServiceManager
}

// NewRuntime connects the configured backends and initializes the services.
// Without DATABASE_URL the in-memory store is used.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Issuer: auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)}

	if cfg.RedisURL != "" {
		client, err := NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache and login limiter", "error", err)
		} else {
			rt.Redis = client
		}
	}

	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		rt.Repos = memory.NewRepositoryManager()
	} else {
		if cfg.Database.RunMigrations {
			if err := migrations.Up(ctx, cfg.Database.URL); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		db, err := InitDatabase(cfg)
		if err != nil {
			return nil, err
		}
		rt.Repos = postgres.NewRepositoryManager(postgres.RepositoryConfig{DB: db, RedisClient: rt.Redis})
	}
	if err := rt.Repos.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	deps := services.Dependencies{
		Repo:      rt.Repos.GetRepository(),
		Cache:     cache.NewCacheManager(rt.Redis),
		Publisher: newPublisher(cfg, logger),
		Files:     newFileStore(ctx, cfg, logger),
		Issuer:    rt.Issuer,
		Logger:    logger,
		Validator: validator.New(),
	}
	if rt.Redis != nil {
		deps.Limiter = limiter.NewRedis(rt.Redis, cfg.Login.MaxAttempts, cfg.Login.Lockout)
	}

	rt.Services = services.NewServiceManager(deps, services.ConfigFromApp(cfg))
	if err := rt.Services.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return rt, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.EventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NewLogEventPublisher(logger)
	}
	publisher, err := events.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Warn("Kafka unavailable, events will only be logged", "error", err)
		return events.NewLogEventPublisher(logger)
	}
	return publisher
}

func newFileStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) storage.FileStore {
	if !cfg.S3.Enabled() {
		return storage.Unconfigured{}
	}
	store, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		logger.Warn("Object storage unavailable, upload URLs disabled", "error", err)
		return storage.Unconfigured{}
	}
	return store
}

// Close shuts down services, then the store and Redis
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Services != nil {
		errs = append(errs, rt.Services.Shutdown(ctx))
	}
	if rt.Repos != nil {
		errs = append(errs, rt.Repos.Shutdown(ctx))
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	return errors.Join(errs...)
}
