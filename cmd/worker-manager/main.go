package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"adr-workers/internal/certificates"
	"adr-workers/internal/common/camunda"
	"adr-workers/internal/common/config"
	"adr-workers/internal/common/database"
	"adr-workers/internal/common/logger"
	"adr-workers/internal/common/observability"
	"adr-workers/internal/identity"
	"adr-workers/internal/ledger"
	"adr-workers/internal/live"
	"adr-workers/internal/notify"
	"adr-workers/internal/reminders"
	"adr-workers/internal/reservations"
	"adr-workers/internal/schedule"
	"adr-workers/internal/tokens"
	httptransport "adr-workers/internal/transport/http"

	ac "adr-workers/internal/workers/certificates/activate-certificate"
	srn "adr-workers/internal/workers/notifications/send-reservation-notification"
	rp "adr-workers/internal/workers/participants/resolve-participant"
	er "adr-workers/internal/workers/reminders/evaluate-reminders"
	icl "adr-workers/internal/workers/reservations/issue-completion-link"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("failed to load config", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = zapLog.Sync() }()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("failed to init observability", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	pg, err := connectPostgres(ctx, cfg.Database.Postgres, zapLog)
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(cfg.Database.Postgres.GetURL()); err != nil {
			zapLog.Fatal("database migration failed", zap.Error(err))
		}
		zapLog.Info("database schema up to date")
	}

	rdb, err := connectRedis(ctx, cfg.Database.Redis, zapLog)
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	ready := map[string]httptransport.Pinger{"postgres": pg.Ping}
	if rdb != nil {
		ready["redis"] = rdb.Ping
	}

	// --- Delivery ledger ---
	var deliveries ledger.Ledger = ledger.NewPostgresLedger(pg.DB)
	if cfg.Ledger.Search.Enabled {
		es, err := connectElasticsearch(ctx, cfg.Database.Elasticsearch, zapLog)
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		ready["elasticsearch"] = es.Ping
		mirror := ledger.NewSearchMirror(es.Client, cfg.Ledger.Search.Index)
		if err := mirror.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("failed to prepare delivery index", zap.Error(err))
		}
		deliveries = ledger.NewFanout(deliveries, log, mirror)
		zapLog.Info("delivery ledger mirrored to elasticsearch", zap.String("index", cfg.Ledger.Search.Index))
	}

	// --- Notifications ---
	sms, email, err := buildSenders(ctx, cfg.Notifications, zapLog)
	if err != nil {
		zapLog.Fatal("failed to build notification channels", zap.Error(err))
	}

	var templates notify.TemplateStore = notify.NewPostgresTemplates(pg.DB)
	if rdb != nil {
		templates = notify.NewCachedTemplates(templates, rdb.Client, cfg.Templates.CacheTTL, log)
	}

	dispatcher := notify.NewDispatcher(templates, sms, email, deliveries, notify.Admins{
		Emails: cfg.Notifications.AdminEmailList(),
		Phone:  cfg.Notifications.AdminPhone,
	}, log)

	// --- Live events ---
	sink := live.NewSink(log)
	if cfg.Events.Kafka.Enabled {
		kc, err := live.NewKafkaClient(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		if err != nil {
			zapLog.Fatal("failed to create kafka client", zap.Error(err))
		}
		defer kc.Close()
		live.NewKafkaBridge(kc, cfg.Events.Kafka.Topic, log).Attach(ctx, sink)
		zapLog.Info("live events bridged to kafka", zap.String("topic", cfg.Events.Kafka.Topic))
	}

	// --- Domain services ---
	loc := cfg.Reminders.Location()
	resolver := identity.NewResolver(identity.NewPostgresStore(pg.DB), log)
	issuer := tokens.NewIssuer(pg.DB, tokens.Config{
		PublicURL:      cfg.Notifications.PublicURL,
		CompletionPath: cfg.Notifications.CompletionPath,
		TTL:            cfg.Tokens.TTL,
	}, log)
	reservationStore := reservations.NewPostgresStore(pg.DB)
	reservationService := reservations.NewService(reservationStore, resolver, dispatcher, issuer, sink, log)
	certificateService := certificates.NewService(pg.DB, loc, log)

	var marker reminders.Marker
	if rdb != nil {
		marker = reminders.NewRedisMarker(rdb.Client, cfg.Reminders.CourseMarkerTTL)
	}
	certificateReminders := reminders.NewCertificateEvaluator(certificateService, dispatcher, loc, obs, log)
	courseReminders := reminders.NewCourseEvaluator(reservationStore, dispatcher, marker, cfg.Reminders.CourseLeadDays, loc, obs, log)

	// --- Zeebe workers ---
	var zeebeClient zbc.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClient(camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe connection")
		if err != nil {
			zapLog.Fatal("zeebe failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))

		workerTimeout := func(taskType string) time.Duration {
			return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
		}
		handlers := map[string]camunda.HandlerFunc{
			rp.TaskType:  rp.NewHandler(&rp.Config{Timeout: workerTimeout(rp.TaskType)}, resolver, log).Handle,
			srn.TaskType: srn.NewHandler(&srn.Config{Timeout: workerTimeout(srn.TaskType)}, reservationService, log).Handle,
			er.CertificateTaskType: er.NewHandler(er.CertificateTaskType,
				&er.Config{Timeout: workerTimeout(er.CertificateTaskType), MaxDetails: 50}, certificateReminders, log).Handle,
			er.CourseTaskType: er.NewHandler(er.CourseTaskType,
				&er.Config{Timeout: workerTimeout(er.CourseTaskType), MaxDetails: 50}, courseReminders, log).Handle,
			icl.TaskType: icl.NewHandler(&icl.Config{Timeout: workerTimeout(icl.TaskType), DefaultSendVia: "sms"}, reservationService, log).Handle,
			ac.TaskType:  ac.NewHandler(&ac.Config{Timeout: workerTimeout(ac.TaskType)}, certificateService, log).Handle,
		}

		var jobWorkers []worker.JobWorker
		for taskType, handle := range handlers {
			if jw := camunda.StartWorker(zeebeClient, taskType, config.GetWorkerConfig(cfg, taskType), handle, zapLog); jw != nil {
				jobWorkers = append(jobWorkers, jw)
			}
		}
		zapLog.Info("Zeebe workers registered", zap.Int("started", len(jobWorkers)))
		ready["zeebe"] = func(ctx context.Context) error {
			_, err := zeebeClient.NewTopologyCommand().Send(ctx)
			return err
		}
		defer func() {
			for _, jw := range jobWorkers {
				jw.Close()
			}
			if err := zeebeClient.Close(); err != nil {
				zapLog.Error("Error closing Zeebe client", zap.Error(err))
			}
		}()
	} else {
		zapLog.Info("camunda disabled, running HTTP triggers only")
	}

	// --- In-process scheduler ---
	var scheduler *schedule.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = schedule.New(loc, 10*time.Minute, log)
		jobs := []struct {
			name, spec string
			runner     schedule.Runner
		}{
			{"certificate-reminders", cfg.Scheduler.CertificateCron, certificateReminders},
			{"course-reminders", cfg.Scheduler.CourseCron, courseReminders},
		}
		for _, j := range jobs {
			if err := scheduler.AddRunner(j.name, j.spec, j.runner); err != nil {
				zapLog.Fatal("invalid schedule", zap.Error(err))
			}
		}
		err := scheduler.Add("expire-certificates", "5 0 * * *", func(ctx context.Context) error {
			n, err := certificateService.ExpireOverdue(ctx, time.Now().In(loc))
			if err == nil && n > 0 {
				log.Info("certificates expired", map[string]interface{}{"count": n})
			}
			return err
		})
		if err != nil {
			zapLog.Fatal("invalid schedule", zap.Error(err))
		}
		scheduler.Start()
		zapLog.Info("scheduler started", zap.Int("jobs", scheduler.Entries()), zap.String("timezone", loc.String()))
	}

	// --- HTTP ---
	router := httptransport.NewRouter(httptransport.NewHandler(httptransport.Deps{
		CronSecret:   cfg.HTTP.CronSecret,
		Certificates: certificateReminders,
		Courses:      courseReminders,
		Reservations: reservationService,
		Certs:        certificateService,
		Tokens:       issuer,
		Events:       live.NewHandler(sink, live.DefaultPingInterval, log),
		Ready:        ready,
		Logger:       log,
	}))
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			zapLog.Warn("scheduled jobs still running at shutdown", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}
	zapLog.Info("Worker manager stopped")
}
