package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/config"
	"github.com/mamadbah2/stockwatch/internal/metrics"
	"github.com/mamadbah2/stockwatch/internal/repository/localfile"
	"github.com/mamadbah2/stockwatch/internal/repository/memory"
	"github.com/mamadbah2/stockwatch/internal/repository/mongodb"
	"github.com/mamadbah2/stockwatch/internal/repository/sheets"
	"github.com/mamadbah2/stockwatch/internal/scheduler"
	"github.com/mamadbah2/stockwatch/internal/server/handlers"
	"github.com/mamadbah2/stockwatch/internal/server/router"
	"github.com/mamadbah2/stockwatch/internal/service/acknowledgment"
	"github.com/mamadbah2/stockwatch/internal/service/alerts"
	"github.com/mamadbah2/stockwatch/internal/service/mirror"
	"github.com/mamadbah2/stockwatch/internal/service/monitor"
	"github.com/mamadbah2/stockwatch/internal/service/notify"
	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/internal/service/reporting"
	"github.com/mamadbah2/stockwatch/pkg/clients/inventory"
	whatsappclient "github.com/mamadbah2/stockwatch/pkg/clients/whatsapp"
	"github.com/mamadbah2/stockwatch/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slot, closeSlot, err := openAckSlot(ctx, cfg)
	if err != nil {
		baseLogger.Fatal("failed to init acknowledgment store", zap.String("backend", cfg.AckStore.Backend), zap.Error(err))
	}
	defer closeSlot()

	acks := acknowledgment.NewStore(slot, baseLogger.Named("svc.acknowledgment"))
	restored := acks.Load(ctx)
	baseLogger.Info("acknowledgments restored", zap.String("backend", cfg.AckStore.Backend), zap.Int("count", len(restored)))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	inventoryClient := inventory.NewClient(cfg.Inventory)
	queue := alerts.NewQueue(alerts.Mode(cfg.Alerts.PresentationMode), acks, baseLogger.Named("svc.alerts"))
	table := render.NewTable(acks)

	fanout, closeNotifiers := buildNotifiers(cfg, baseLogger)
	defer closeNotifiers()

	opts := monitor.Options{
		NotifyTimeout: cfg.Alerts.NotifyTimeout,
		Metrics:       appMetrics,
	}
	if fanout.Len() > 0 {
		opts.Notifier = fanout
	}
	if cfg.Alerts.RemoteAckSync {
		opts.RemoteAck = inventoryClient
		baseLogger.Info("remote acknowledgment sync enabled")
	}
	mon := monitor.New(inventoryClient, acks, queue, table, opts, baseLogger.Named("svc.monitor"))

	sched := scheduler.NewScheduler(*cfg, mon, baseLogger.Named("scheduler"))

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		mirrorSvc := mirror.NewService(sheetsRepo, mon, cfg.Sheets.Range, baseLogger.Named("svc.mirror"))
		if err := sched.AddJob("sheet mirror", cfg.Sheets.Schedule, mirrorSvc); err != nil {
			baseLogger.Fatal("failed to schedule sheet mirror", zap.Error(err))
		}
	} else {
		baseLogger.Warn("google sheets credentials missing, inventory mirror disabled")
	}

	if cfg.WhatsApp.DigestEnabled() {
		digest := reporting.NewService(mon, whatsappclient.NewClient(cfg.WhatsApp), cfg.WhatsApp.Recipient, baseLogger.Named("svc.reporting"))
		if err := sched.AddJob("stock digest", cfg.WhatsApp.DigestSchedule, digest); err != nil {
			baseLogger.Fatal("failed to schedule stock digest", zap.Error(err))
		}
	}

	sched.Start()

	handler := handlers.NewHandler(mon, baseLogger.Named("handlers"))
	engine := router.New(handler, registry, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.WithCORS(engine, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Inventory.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	sched.Stop()
	mon.Wait()
}

func openAckSlot(ctx context.Context, cfg *config.Config) (acknowledgment.Slot, func(), error) {
	noop := func() {}

	switch cfg.AckStore.Backend {
	case config.AckStoreMongoDB:
		repo, err := mongodb.NewStateRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			return nil, noop, err
		}
		return repo, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := repo.Close(closeCtx); err != nil {
				zap.L().Error("failed to close mongodb connection", zap.Error(err))
			}
		}, nil
	case config.AckStoreFile:
		repo, err := localfile.NewStateRepository(cfg.AckStore.FilePath)
		if err != nil {
			return nil, noop, err
		}
		return repo, noop, nil
	case config.AckStoreMemory:
		return memory.NewStateRepository(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported ack store %q", cfg.AckStore.Backend)
	}
}

func buildNotifiers(cfg *config.Config, baseLogger *zap.Logger) (*notify.Fanout, func()) {
	var channels []notify.Notifier
	closers := []func(){}

	if cfg.WhatsApp.Enabled() {
		channels = append(channels, notify.NewWhatsAppNotifier(whatsappclient.NewClient(cfg.WhatsApp), cfg.WhatsApp.Recipient))
		baseLogger.Info("whatsapp alert notifications enabled")
	}

	if cfg.Kafka.Enabled() {
		publisher := notify.NewKafkaPublisher(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		channels = append(channels, publisher)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				baseLogger.Error("failed to close kafka writer", zap.Error(err))
			}
		})
		baseLogger.Info("kafka alert events enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	return notify.NewFanout(baseLogger.Named("svc.notify"), channels...), func() {
		for _, c := range closers {
			c()
		}
	}
}
