// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unclebandit/pushleopard-backend/internal/cache"
	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/db"
	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

// App holds the wired components shared by the server and worker binaries.
type App struct {
	Config *config.Config
	Logger logger.Logger
	DB     *sql.DB
	Queue  queue.Queue
	Cache  *cache.StatsCache

	CampaignRepo  *repository.CampaignRepository
	RecipientRepo *repository.RecipientRepository
	LogRepo       *repository.DeliveryLogRepository
	AuditRepo     *repository.AuditRepository

	Campaigns    *service.CampaignService
	Registration *service.RegistrationService
	Dispatcher   *service.Dispatcher
	Recoverer    *service.Recoverer
}

// New connects to every backing service named in cfg and wires the services.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: conn}

	if cfg.Database.Postgres.AutoMigrate {
		if err := db.Migrate(ctx, conn); err != nil {
			a.Close()
			return nil, err
		}
	}

	switch cfg.Queue.Driver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.Queue.URL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	default:
		a.Queue = queue.NewInMemoryQueue(log)
	}

	if cfg.Database.Redis.Address != "" {
		c := cache.NewStatsCache(cache.NewRedisClient(cfg.Database.Redis), config.GetDuration(cfg.Database.Redis.StatsTTL))
		if err := c.Ping(ctx); err != nil {
			// Reporting works without the cache.
			log.Warn("Redis unavailable, stats cache disabled", map[string]interface{}{"error": err})
			c.Close()
		} else {
			a.Cache = c
		}
	}

	gw, err := gateway.New(ctx, cfg.Gateway, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	a.CampaignRepo = &repository.CampaignRepository{DB: conn}
	a.RecipientRepo = &repository.RecipientRepository{DB: conn}
	a.LogRepo = &repository.DeliveryLogRepository{DB: conn}
	a.AuditRepo = &repository.AuditRepository{DB: conn}

	a.Campaigns = &service.CampaignService{
		CampaignRepo:  a.CampaignRepo,
		RecipientRepo: a.RecipientRepo,
		LogRepo:       a.LogRepo,
		Queue:         a.Queue,
		DispatchTopic: cfg.Queue.DispatchTopic,
		Logger:        log,
	}
	if a.Cache != nil {
		a.Campaigns.Cache = a.Cache
	}
	a.Registration = &service.RegistrationService{RecipientRepo: a.RecipientRepo, Logger: log}

	opts := service.DispatchOptionsFromConfig(cfg)
	a.Dispatcher = service.NewDispatcher(a.CampaignRepo, a.RecipientRepo, a.LogRepo, a.AuditRepo, gw, a.Queue, log, opts)
	a.Recoverer = service.NewRecoverer(a.CampaignRepo, a.Dispatcher, opts.StaleAfter, log)

	log.Info("Application wired", map[string]interface{}{
		"queue":    cfg.Queue.Driver,
		"gateway":  gw.Name(),
		"cache":    a.Cache != nil,
		"workers":  opts.Workers,
		"rate_sec": opts.RatePerSec,
	})
	return a, nil
}

// StartConsumers subscribes the dispatch job and endpoint event handlers.
func (a *App) StartConsumers() error {
	run := func(ctx context.Context, campaignID string) error {
		res, err := a.Dispatcher.Dispatch(ctx, campaignID)
		if err != nil {
			return err
		}
		a.Logger.Info("Queued dispatch finished", map[string]interface{}{
			"campaign_id": campaignID,
			"status":      string(res.Status),
			"sent":        res.Sent,
		})
		return nil
	}
	if err := queue.StartDispatchSubscriber(a.Queue, a.Config.Queue.DispatchTopic, run, a.Logger); err != nil {
		return fmt.Errorf("subscribe %s: %w", a.Config.Queue.DispatchTopic, err)
	}
	if err := queue.StartEndpointInvalidSubscriber(a.Queue, a.Config.Queue.EndpointEventsTopic, a.Registration.RemoveInvalid, a.Logger); err != nil {
		return fmt.Errorf("subscribe %s: %w", a.Config.Queue.EndpointEventsTopic, err)
	}
	return nil
}

// Close drains the queue and releases connections.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn("Queue close failed", map[string]interface{}{"error": err})
		}
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
