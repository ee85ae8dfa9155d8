package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/lead-call-scheduler/internal/config"
	"github.com/acme/lead-call-scheduler/internal/infra/db"
	"github.com/acme/lead-call-scheduler/internal/infra/redis"
	"github.com/acme/lead-call-scheduler/internal/notify"
	"github.com/acme/lead-call-scheduler/internal/queue"
	"github.com/acme/lead-call-scheduler/internal/report"
	"github.com/acme/lead-call-scheduler/internal/repository"
	pgrepo "github.com/acme/lead-call-scheduler/internal/repository/postgres"
	scyllarepo "github.com/acme/lead-call-scheduler/internal/repository/scylla"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	callsvc "github.com/acme/lead-call-scheduler/internal/service/call"
	schedulesvc "github.com/acme/lead-call-scheduler/internal/service/schedule"
	telephonySvc "github.com/acme/lead-call-scheduler/internal/telephony"
	telephonyMock "github.com/acme/lead-call-scheduler/internal/telephony/mock"
	"github.com/acme/lead-call-scheduler/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Resolver *timespec.Resolver

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		queues       *queues
		providers    *providers
		notifiers    *notifiers
		reports      *report.Builder
	}
}

type repositories struct {
	Leads     repository.LeadRepository
	Agents    repository.AgentRepository
	Users     repository.UserRepository
	Batches   repository.BatchCallRepository
	CallStore repository.CallStore
}

type services struct {
	Call     *callsvc.Service
	Schedule *schedulesvc.Service
}

type queues struct {
	Jobs        *queue.DelayedQueue
	Completions *queue.CompletionPublisher
}

type providers struct {
	Telephony telephonySvc.Provider
}

type notifiers struct {
	Email notify.Sender
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	resolver, err := timespec.NewResolver(cfg.Scheduling.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap resolver: %w", err)
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Resolver: resolver,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Leads:     pgrepo.NewLeadRepository(c.Postgres.DB()),
			Agents:    pgrepo.NewAgentRepository(c.Postgres.DB()),
			Users:     pgrepo.NewUserRepository(c.Postgres.DB()),
			Batches:   pgrepo.NewBatchCallRepository(c.Postgres.DB()),
			CallStore: scyllarepo.NewCallStore(c.Scylla.Session()),
		}

		queues := &queues{
			Jobs:        queue.NewDelayedQueue(c.Redis.Inner(), c.Config.Scheduling.QueueKeyPrefix),
			Completions: queue.NewCompletionPublisher(c.Kafka, c.Config.Kafka.CompletionTopic),
		}

		providers := &providers{
			Telephony: telephonyMock.NewProvider(c.Config.CallBridge),
		}

		services := &services{
			Schedule: schedulesvc.NewService(
				c.Resolver,
				queues.Jobs,
				c.Config.Scheduling.DefaultFromNumber,
			),
			Call: callsvc.NewService(
				repos.Leads,
				repos.Agents,
				repos.Users,
				repos.Batches,
				repos.CallStore,
				providers.Telephony,
				c.Resolver,
			),
		}

		notifiers := &notifiers{
			Email: notify.NewSMTPSender(c.Config.Notify),
		}

		c.components.repositories = repos
		c.components.queues = queues
		c.components.services = services
		c.components.providers = providers
		c.components.notifiers = notifiers
		c.components.reports = report.NewBuilder(repos.Batches, repos.Leads, repos.CallStore)
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Queues exposes the job queue and completion publisher.
func (c *Container) Queues() *queues {
	c.initComponents()
	return c.components.queues
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Notifiers exposes notification senders.
func (c *Container) Notifiers() *notifiers {
	c.initComponents()
	return c.components.notifiers
}

// Reports exposes the batch report builder.
func (c *Container) Reports() *report.Builder {
	c.initComponents()
	return c.components.reports
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.queues != nil && c.components.queues.Completions != nil {
		if err := c.components.queues.Completions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("completion publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.CompletionTopic}, 12, 1)
}
