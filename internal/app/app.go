package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/events"
	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore"
	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/activitylog/internal/adapters/metrics"
	"github.com/atvirokodosprendimai/activitylog/internal/config"
	coreevents "github.com/atvirokodosprendimai/activitylog/internal/core/events"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
	"github.com/atvirokodosprendimai/activitylog/internal/core/usecase"
	"github.com/atvirokodosprendimai/activitylog/migrations"
)

const migrateTimeout = 30 * time.Second

// App holds the wired services shared by every command.
type App struct {
	Config   config.Config
	Log      *logrus.Logger
	Subjects *usecase.SubjectService
	Activity *usecase.ActivityService
	Auth     *usecase.AuthService

	db      *gormdb.DB
	outbox  *gormstore.OutboxRepository
	metrics *metrics.Prometheus
	promReg *prometheus.Registry
}

// New opens the database, applies migrations and builds the services.
// Registry gaps fail here so no request can hit an unregistered event.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	registry, err := coreevents.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("build event registry: %w", err)
	}

	db, err := gormdb.Open(gormdb.Options{
		Driver:        cfg.DB.Driver,
		DSN:           cfg.DB.DSN,
		MaxOpenConns:  cfg.DB.MaxOpenConns,
		SlowThreshold: cfg.DB.SlowQuery,
		Log:           log.WithField("component", "gorm"),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPrometheus(promReg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	activity := usecase.NewActivityService(registry, gormstore.NewActivityStore(db), m)
	log.WithFields(logrus.Fields{
		"driver":      db.Driver(),
		"event_types": len(registry.Keys()),
	}).Info("activity log ready")

	return &App{
		Config:   cfg,
		Log:      log,
		Subjects: usecase.NewSubjectService(gormstore.NewTransactor(db), gormstore.NewSubjectStore(db), activity),
		Activity: activity,
		Auth:     usecase.NewAuthService(gormstore.NewAPIKeyRepository(db)),
		db:       db,
		outbox:   gormstore.NewOutboxRepository(db),
		metrics:  m,
		promReg:  promReg,
	}, nil
}

func migrate(ctx context.Context, db *gormdb.DB) error {
	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		return fmt.Errorf("resolve writer sql db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	return migrations.Up(ctx, sqlDB, db.Driver())
}

func (a *App) HTTPServer() *http.Server {
	handler := httpapi.NewHandler(a.Subjects, a.Activity, a.Auth,
		httpapi.WithLogger(a.Log.WithField("component", "http")),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})),
	)
	return &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: a.Config.HTTP.ReadHeaderTimeout,
	}
}

// Publisher builds the configured outbox publisher. The returned closer
// is never nil.
func (a *App) Publisher() (ports.EventPublisher, io.Closer, error) {
	out := a.Config.Outbox
	switch out.Publisher {
	case config.PublisherWebhook:
		return events.NewWebhookPublisher(out.Webhook.URL, out.Webhook.Secret, out.Webhook.Timeout), nopCloser{}, nil
	case config.PublisherKafka:
		p, err := events.NewKafkaPublisher(out.Kafka.Bootstrap, out.Kafka.Topic, out.Kafka.Timeout, a.Log.WithField("component", "kafka"))
		if err != nil {
			return nil, nil, fmt.Errorf("kafka publisher: %w", err)
		}
		return p, p, nil
	default:
		return events.NewLogPublisher(a.Log.WithField("component", "outbox")), nopCloser{}, nil
	}
}

func (a *App) Dispatcher(publisher ports.EventPublisher) *usecase.OutboxDispatcher {
	out := a.Config.Outbox
	return usecase.NewOutboxDispatcher(a.outbox, publisher, out.Interval, out.BatchSize,
		usecase.WithDispatcherLogger(a.Log.WithField("component", "dispatcher")),
		usecase.WithDispatcherMetrics(a.metrics),
		usecase.WithMaxRetry(out.MaxRetry),
	)
}

// Drain dispatches due outbox events until none are left, or until ctx is
// done when follow is set, and logs the dispatch summary.
func (a *App) Drain(ctx context.Context, publisher ports.EventPublisher, follow bool) (usecase.OutboxDispatcherMetrics, error) {
	dispatcher := a.Dispatcher(publisher)
	log := a.Log.WithField("publisher", a.Config.Outbox.Publisher)

	var err error
	if follow {
		log.Info("outbox dispatcher started")
		dispatcher.Run(ctx)
	} else {
		for {
			var n int
			if n, err = dispatcher.DispatchOnce(ctx); err != nil || n == 0 {
				break
			}
		}
	}

	summary := dispatcher.Metrics()
	log.WithFields(logrus.Fields{
		"dispatched": summary.DispatchSuccessTotal,
		"failed":     summary.DispatchFailureTotal,
		"dead":       summary.DispatchDeadTotal,
	}).Info("outbox drained")
	return summary, err
}

func (a *App) Close() error {
	return a.db.Close()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
