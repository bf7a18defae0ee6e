package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-admin-service/internal/auth"
	"course-admin-service/internal/client"
	"course-admin-service/internal/config"
	"course-admin-service/internal/crypto"
	"course-admin-service/internal/encryption"
	"course-admin-service/internal/events"
	redisrepo "course-admin-service/internal/repository/redis"
	"course-admin-service/internal/repository/scylla"
	"course-admin-service/internal/service"
	"course-admin-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies. Scylla is
// the system of record and must be up; Redis, Kafka, Elasticsearch and
// ClickHouse degrade to warnings outside production.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	chatbotClient    *client.ChatbotClient

	// Managers
	hasher            *crypto.Hasher
	encryptionManager *encryption.Manager
	tokenIssuer       *auth.Issuer
	eventPublisher    *events.Publisher

	// Repositories
	userRepository         scylla.UserRepository
	catalogRepository      scylla.CatalogRepository
	conversationRepository scylla.ConversationRepository
	catalogCache           *redisrepo.CatalogCache
	rateLimiter            *redisrepo.RateLimiter

	// Services
	authService   *service.AuthService
	courseService *service.CourseService
	chatService   *service.ChatService
	reportService *service.ReportService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes every dependency.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)
	return factory, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ScyllaDB holds accounts and the catalog; nothing works without it.
	scyllaClient, err := scylla.NewScyllaClient(f.config)
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	util.Info("ScyllaDB client initialized and healthy")

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without audit events", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	f.chatbotClient = client.NewChatbotClient(f.config.Chat.RequestTimeout, util.Get())

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = crypto.NewHasher(f.config.Auth.BcryptCost)

	encryptionManager, err := encryption.NewManager(f.config)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = encryptionManager

	f.tokenIssuer = auth.NewIssuer(
		f.config.Auth.JWTSecret,
		f.config.Auth.Issuer,
		f.config.Auth.TokenLifetime,
		f.config.Auth.RefreshThreshold,
	)
	f.eventPublisher = events.NewPublisher(f.kafkaProducer, f.config.Kafka.SecurityEventTopic)

	util.Info("Managers initialized successfully")
	return nil
}

func (f *Factory) UserRepository() scylla.UserRepository {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.scyllaClient)
	}
	return f.userRepository
}

func (f *Factory) CatalogRepository() scylla.CatalogRepository {
	if f.catalogRepository == nil {
		f.catalogRepository = scylla.NewCatalogRepository(f.scyllaClient)
	}
	return f.catalogRepository
}

func (f *Factory) ConversationRepository() scylla.ConversationRepository {
	if f.conversationRepository == nil {
		f.conversationRepository = scylla.NewConversationRepository(f.scyllaClient)
	}
	return f.conversationRepository
}

func (f *Factory) CatalogCache() *redisrepo.CatalogCache {
	if f.catalogCache == nil {
		f.catalogCache = redisrepo.NewCatalogCache(f.redisClient)
	}
	return f.catalogCache
}

func (f *Factory) RateLimiter() *redisrepo.RateLimiter {
	if f.rateLimiter == nil {
		f.rateLimiter = redisrepo.NewRateLimiter(
			f.redisClient,
			f.config.Chat.RateLimit,
			f.config.Chat.RateWindow,
		)
	}
	return f.rateLimiter
}

func (f *Factory) AuthService() *service.AuthService {
	if f.authService == nil {
		f.authService = service.NewAuthService(
			f.UserRepository(),
			f.ConversationRepository(),
			f.hasher,
			f.tokenIssuer,
			f.config.LockoutPolicy(),
			f.eventPublisher,
		)
	}
	return f.authService
}

func (f *Factory) CourseService() *service.CourseService {
	if f.courseService == nil {
		f.courseService = service.NewCourseService(
			f.CatalogRepository(),
			f.encryptionManager,
			f.CatalogCache(),
		)
	}
	return f.courseService
}

func (f *Factory) ChatService() *service.ChatService {
	if f.chatService == nil {
		f.chatService = service.NewChatService(
			f.CourseService(),
			f.ConversationRepository(),
			f.chatbotClient,
			f.RateLimiter(),
			f.esClient,
			f.clickhouseClient,
			f.config.Elastic.ConversationIndex,
		)
	}
	return f.chatService
}

func (f *Factory) ReportService() *service.ReportService {
	if f.reportService == nil {
		f.reportService = service.NewReportService(
			f.UserRepository(),
			f.CatalogRepository(),
			f.clickhouseClient,
			f.esClient,
			f.config.Elastic.ConversationIndex,
		)
	}
	return f.reportService
}

// EnsureAdminUser bootstraps the configured admin account on startup.
func (f *Factory) EnsureAdminUser(ctx context.Context) error {
	return f.AuthService().EnsureAdminUser(ctx, f.config.Admin.Email, f.config.Admin.Password)
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
