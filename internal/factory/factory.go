package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fraudsim/internal/client"
	"fraudsim/internal/config"
	"fraudsim/internal/handler"
	"fraudsim/internal/model"
	mongorepo "fraudsim/internal/repository/mongo"
	"fraudsim/internal/service"
	"fraudsim/internal/tls"
	"fraudsim/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	mongoClient      *client.MongoClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Repository and services
	sessionRepository model.SessionRepository
	analyticsService  *service.AnalyticsService
	generationService *service.GenerationService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
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

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeServices(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("elasticsearch_enabled", cfg.Elasticsearch.Enabled),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.Clickhouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks.
// MongoDB is the system of record and must come up; the secondary backends are
// optional in development.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// MongoDB (required)
	mongoClient, err := client.NewMongoClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	f.mongoClient = mongoClient
	util.Info("MongoDB client initialized and healthy")

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

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

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

// initializeServices builds the session repository and the two domain
// services on top of the clients.
func (f *Factory) initializeServices() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := mongorepo.New(f.mongoClient.DB, f.config.Mongo.Collection, util.Get())
	if err := repo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure session indexes: %w", err)
	}
	f.sessionRepository = repo

	var sinks []service.SessionSink
	if f.esClient != nil {
		sinks = append(sinks, service.NewElasticsearchSink(f.esClient))
	}
	if f.kafkaProducer != nil {
		sinks = append(sinks, service.NewKafkaSink(f.kafkaProducer))
	}
	if f.clickhouseClient != nil {
		chSink, err := service.NewClickHouseSink(ctx, f.clickhouseClient, util.Get())
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("clickhouse sink: %w", err)
			}
			util.Warn("ClickHouse sink initialization failed - proceeding without it", util.ErrorField(err))
		} else {
			sinks = append(sinks, chSink)
		}
	}

	f.analyticsService = service.NewAnalyticsService(
		f.sessionRepository,
		f.redisClient,
		f.config.Redis.ReportTTL,
		util.Get(),
	)
	f.generationService = service.NewGenerationService(
		f.config.Generator,
		f.sessionRepository,
		sinks,
		f.redisClient,
		util.Get(),
	)

	return nil
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.mongoClient != nil {
		if err := f.mongoClient.HealthCheck(ctx); err != nil {
			healthErrors["mongo"] = err
		}
	} else {
		healthErrors["mongo"] = fmt.Errorf("mongo client not initialized")
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

// HealthCheckers exposes per-backend probes for the deep health endpoint.
func (f *Factory) HealthCheckers() map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"mongo": f.mongoClient.HealthCheck,
	}
	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	}
	if f.esClient != nil {
		checks["elasticsearch"] = func(context.Context) error { return f.esClient.HealthCheck() }
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}
	return checks
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.mongoClient != nil {
			if err := f.mongoClient.Close(); err != nil {
				util.Error("Failed to close MongoDB client", util.ErrorField(err))
			} else {
				util.Info("MongoDB client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) SessionRepository() model.SessionRepository {
	return f.sessionRepository
}

func (f *Factory) AnalyticsService() *service.AnalyticsService {
	return f.analyticsService
}

func (f *Factory) GenerationService() *service.GenerationService {
	return f.generationService
}
