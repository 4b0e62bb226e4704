package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenguard/internal/config"
	"github.com/kailas-cloud/tokenguard/internal/db"
	"github.com/kailas-cloud/tokenguard/internal/db/memory"
	dbRedis "github.com/kailas-cloud/tokenguard/internal/db/redis"
	"github.com/kailas-cloud/tokenguard/internal/domain/pricing"
	"github.com/kailas-cloud/tokenguard/internal/metrics"
	"github.com/kailas-cloud/tokenguard/internal/repository/anonymous"
	"github.com/kailas-cloud/tokenguard/internal/repository/audit"
	"github.com/kailas-cloud/tokenguard/internal/repository/ipquota"
	quotarepo "github.com/kailas-cloud/tokenguard/internal/repository/quota"
	"github.com/kailas-cloud/tokenguard/internal/repository/ratelimit"
	"github.com/kailas-cloud/tokenguard/internal/scheduler"
	chiTransport "github.com/kailas-cloud/tokenguard/internal/transport/chi"
	openaiChat "github.com/kailas-cloud/tokenguard/internal/transport/openai"
	budgetuc "github.com/kailas-cloud/tokenguard/internal/usecase/budget"
	completionuc "github.com/kailas-cloud/tokenguard/internal/usecase/completion"
	healthuc "github.com/kailas-cloud/tokenguard/internal/usecase/health"
	meteruc "github.com/kailas-cloud/tokenguard/internal/usecase/meter"
	"github.com/kailas-cloud/tokenguard/internal/usecase/projection"
	quotauc "github.com/kailas-cloud/tokenguard/internal/usecase/quota"
	usageuc "github.com/kailas-cloud/tokenguard/internal/usecase/usage"
)

// app is the composition root: every long-lived component of one process.
type app struct {
	store     db.Store
	audit     *audit.Store
	oracle    *pricing.Oracle
	governor  *budgetuc.Governor
	scheduler *scheduler.Scheduler
	handler   http.Handler
}

func (a *app) Close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
	a.store.Close()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis", "valkey":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Password:   cfg.Password,
			DB:         cfg.DB,
			ClientName: "tokenguard",
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create database store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return store, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	schedule, err := cfg.Pricing.Schedule()
	if err != nil {
		return nil, err
	}
	tiers, err := cfg.Quota.Table()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))
	a := &app{store: store, oracle: pricing.NewOracle(schedule)}

	if cfg.Audit.Path != "" {
		a.audit, err = audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("Audit log opened", zap.String("path", a.audit.Path()))
	}

	ceiling, lo, hi := cfg.Budget.Ceiling()
	a.governor, err = budgetuc.New(budgetuc.Config{
		Ceiling:    ceiling,
		Min:        lo,
		Max:        hi,
		Thresholds: cfg.Budget.Thresholds(),
	}, time.Now, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	proj := projection.New(cfg.Budget.ProjectionWindow)
	meter := meteruc.New(a.oracle, a.governor, proj, time.Now, logger)
	if a.audit != nil {
		meter = meter.WithAudit(a.audit)
	}

	ledger := quotauc.New(quotarepo.NewMemoryStore(), quotauc.Config{
		Tiers:           tiers,
		HardWatermark:   cfg.Quota.Advisory.HardWatermark,
		SoftWatermark:   cfg.Quota.Advisory.SoftWatermark,
		SoftProbability: cfg.Quota.Advisory.Probability(),
	}, time.Now, logger)

	completion := completionuc.New(
		meter, a.governor, ledger,
		anonymous.New(store, anonymous.Config{Quota: cfg.Anonymous.Quota, TTL: cfg.Anonymous.TTL()}, time.Now),
		ipquota.New(store, cfg.Anonymous.IPDailyLimit, time.Now),
		logger,
	).WithRateLimiter(ratelimit.New(store, "chat", cfg.RateLimit.PerMinute, time.Now))

	// Nil interfaces, not typed nil pointers, when optional parts are off.
	var upstream healthuc.UpstreamChecker
	if cfg.Upstream.APIKey != "" {
		client := openaiChat.NewClient(&openaiChat.Config{
			APIKey:      cfg.Upstream.APIKey,
			BaseURL:     cfg.Upstream.BaseURL,
			Model:       cfg.Upstream.Model,
			MaxTokens:   cfg.Upstream.MaxTokens,
			Temperature: cfg.Upstream.Temperature,
			Timeout:     time.Duration(cfg.Upstream.TimeoutSec) * time.Second,
			Logger:      logger,
		})
		completion = completion.WithChat(client)
		upstream = client
	} else {
		logger.Warn("No upstream API key configured; chat endpoints will fail")
	}

	var (
		history usageuc.HistoryReader
		auditDB healthuc.Pinger
	)
	if a.audit != nil {
		history = a.audit
		auditDB = a.audit
	}
	usage := usageuc.New(meter, a.oracle, a.governor, proj, history, time.Now)
	health := healthuc.New(store, upstream, auditDB).WithBudget(a.governor)

	a.scheduler = scheduler.New(logger)
	if err := a.scheduler.Add(scheduler.JobBudgetSnapshot, cfg.Scheduler.BudgetSnapshot,
		scheduler.BudgetSnapshot(a.governor, metrics.Default, logger)); err != nil {
		a.Close()
		return nil, err
	}
	if a.audit != nil {
		retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
		if err := a.scheduler.Add(scheduler.JobAuditPrune, cfg.Scheduler.AuditPrune,
			scheduler.AuditPrune(a.audit, retention, time.Now, logger)); err != nil {
			a.Close()
			return nil, err
		}
	}

	server := chiTransport.NewServer(completion, a.governor, meter, ledger, usage, health)
	a.handler = chiTransport.NewRouter(server, chiTransport.RouterOptions{
		AdminKeys:  cfg.Auth.APIKeys,
		TrustProxy: cfg.Auth.TrustProxy,
	}, logger)
	return a, nil
}

// reloadPricing swaps a reloaded schedule into the oracle. Other sections need a restart.
func (a *app) reloadPricing(cfg config.Config, logger *zap.Logger) {
	s, err := cfg.Pricing.Schedule()
	if err != nil {
		logger.Error("Pricing reload rejected", zap.Error(err))
		return
	}
	a.oracle.Update(s)
	logger.Info("Pricing schedule updated",
		zap.String("discount_window", s.Discount.String()),
		zap.Float64("output_per_million", s.Standard.Output.PerMillion()),
	)
}
