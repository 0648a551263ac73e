package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskfolio/taskfolio-backend/api/routes"
	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/billing"
	"github.com/taskfolio/taskfolio-backend/internal/files"
	"github.com/taskfolio/taskfolio-backend/internal/memberships"
	"github.com/taskfolio/taskfolio-backend/internal/projects"
	"github.com/taskfolio/taskfolio-backend/internal/users"
	stripewebhook "github.com/taskfolio/taskfolio-backend/internal/webhooks/stripe"
	"github.com/taskfolio/taskfolio-backend/internal/workspaces"
	"github.com/taskfolio/taskfolio-backend/pkg/config"
	"github.com/taskfolio/taskfolio-backend/pkg/db"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
	"github.com/taskfolio/taskfolio-backend/pkg/metrics"
	"github.com/taskfolio/taskfolio-backend/pkg/migrate"
	"github.com/taskfolio/taskfolio-backend/pkg/pubsub"
	"github.com/taskfolio/taskfolio-backend/pkg/redis"
	"github.com/taskfolio/taskfolio-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var stripeClient *stripe.Client
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe api key not configured, billing surfaces disabled")
	}

	var scanNotifier files.ScanNotifier
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		scanNotifier, err = files.NewScanNotifier(pubsubClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create scan notifier", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "gcp project not configured, file scan notifications disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	quotaMetrics := metrics.NewQuotaMetrics(registry)

	usersRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	membershipRepo := memberships.NewRepository(dbClient.DB())
	workspaceRepo := workspaces.NewRepository(dbClient.DB())
	projectRepo := projects.NewRepository(dbClient.DB())
	fileRepo := files.NewRepository(dbClient.DB())
	auditRepo := audit.NewRepository(dbClient.DB())

	auditService, err := audit.NewService(audit.ServiceParams{
		Repo:   auditRepo,
		Logger: logg,
	})
	exitOn(logg, "audit service", err)

	prices := billing.PriceTable{
		ProPriceID:     cfg.Stripe.ProPriceID,
		StarterPriceID: cfg.Stripe.StarterPriceID,
	}
	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:   billingRepo,
		Stripe: billing.NewStripeClient(stripeClient),
		Logger: logg,
		Prices: prices,
		URLs: billing.CheckoutURLs{
			Success:      cfg.Stripe.CheckoutOK,
			Cancel:       cfg.Stripe.CheckoutCancel,
			PortalReturn: cfg.Stripe.PortalReturn,
		},
		TrialLength: cfg.Billing.TrialLength(),
	})
	exitOn(logg, "billing service", err)

	membershipService, err := memberships.NewService(memberships.ServiceParams{
		Repo:              membershipRepo,
		Users:             usersRepo,
		Entitlements:      billingService,
		Audit:             auditService,
		Logger:            logg,
		QuotaMetrics:      quotaMetrics,
		TransactionRunner: dbClient,
	})
	exitOn(logg, "membership service", err)

	workspaceService, err := workspaces.NewService(workspaces.ServiceParams{
		Repo:              workspaceRepo,
		Members:           membershipRepo,
		Audit:             auditService,
		Logger:            logg,
		TransactionRunner: dbClient,
	})
	exitOn(logg, "workspace service", err)

	projectService, err := projects.NewService(projects.ServiceParams{
		Repo:              projectRepo,
		Entitlements:      billingService,
		Audit:             auditService,
		Logger:            logg,
		QuotaMetrics:      quotaMetrics,
		TransactionRunner: dbClient,
	})
	exitOn(logg, "project service", err)

	fileService, err := files.NewService(files.ServiceParams{
		Repo:              fileRepo,
		Projects:          projectService,
		Entitlements:      billingService,
		Counter:           redisClient,
		Notifier:          scanNotifier,
		Audit:             auditService,
		Logger:            logg,
		QuotaMetrics:      quotaMetrics,
		TransactionRunner: dbClient,
	})
	exitOn(logg, "file service", err)

	ledger, err := stripewebhook.NewLedger(stripewebhook.NewEventRepository(dbClient.DB()))
	exitOn(logg, "webhook ledger", err)

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		Ledger:            ledger,
		Audit:             auditService,
		Logger:            logg,
		Metrics:           webhookMetrics,
		Prices:            prices,
		TransactionRunner: dbClient,
	})
	exitOn(logg, "stripe webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			workspaceService,
			membershipService,
			billingService,
			usersRepo,
			projectService,
			fileService,
			auditService,
			stripeClient,
			stripeWebhookService,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}

func exitOn(logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+what, err)
	os.Exit(1)
}
