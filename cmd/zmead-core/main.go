package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhuermu/zmead-sub004/internal/adapter/cachedstore"
	zmhttp "github.com/zhuermu/zmead-sub004/internal/adapter/http"
	"github.com/zhuermu/zmead-sub004/internal/adapter/ledgerhttp"
	"github.com/zhuermu/zmead-sub004/internal/adapter/martech"
	zmmcp "github.com/zhuermu/zmead-sub004/internal/adapter/mcp"
	"github.com/zhuermu/zmead-sub004/internal/adapter/memstore"
	zmnats "github.com/zhuermu/zmead-sub004/internal/adapter/nats"
	"github.com/zhuermu/zmead-sub004/internal/adapter/natskv"
	zmotel "github.com/zhuermu/zmead-sub004/internal/adapter/otel"
	"github.com/zhuermu/zmead-sub004/internal/adapter/postgres"
	"github.com/zhuermu/zmead-sub004/internal/adapter/recognizerhttp"
	"github.com/zhuermu/zmead-sub004/internal/adapter/redisstate"
	"github.com/zhuermu/zmead-sub004/internal/adapter/ristretto"
	"github.com/zhuermu/zmead-sub004/internal/adapter/tiered"
	"github.com/zhuermu/zmead-sub004/internal/adapter/ws"
	"github.com/zhuermu/zmead-sub004/internal/config"
	"github.com/zhuermu/zmead-sub004/internal/domain/credit"
	"github.com/zhuermu/zmead-sub004/internal/domain/event"
	"github.com/zhuermu/zmead-sub004/internal/logger"
	"github.com/zhuermu/zmead-sub004/internal/middleware"
	"github.com/zhuermu/zmead-sub004/internal/pool"
	"github.com/zhuermu/zmead-sub004/internal/port/cache"
	"github.com/zhuermu/zmead-sub004/internal/port/eventstore"
	"github.com/zhuermu/zmead-sub004/internal/port/messagequeue"
	"github.com/zhuermu/zmead-sub004/internal/port/notifier"
	"github.com/zhuermu/zmead-sub004/internal/port/statestore"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
	"github.com/zhuermu/zmead-sub004/internal/resilience"
	"github.com/zhuermu/zmead-sub004/internal/service"
)

const serviceName = "zmead-core"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (overrides ZMEAD_CONFIG)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"store_backend", cfg.Store.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := zmotel.Setup(ctx, cfg.Telemetry, serviceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	// --- Persistence ---
	store, events, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// --- NATS ---
	queue, err := zmnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()
	log.Info("nats connected", "url", cfg.NATS.URL)

	// --- State cache ---
	if cfg.Cache.Enabled {
		c, err := buildCache(ctx, cfg.Cache, queue)
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		store = cachedstore.New(store, c, cfg.Cache.L1TTL, log)
		log.Info("state cache enabled")
	}

	// --- Event pipeline ---
	hub := ws.NewHub()
	emitter := service.NewEmitter(events, queue, hub, log)

	if cfg.Telemetry.Enabled {
		cancelMetrics, err := startMetricsSubscriber(ctx, queue, log)
		if err != nil {
			return fmt.Errorf("metrics subscriber: %w", err)
		}
		defer cancelMetrics()
	}

	// --- Operator notifications ---
	notify, err := buildNotifiers(cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}

	// --- External clients ---
	ledgerClient := ledgerhttp.NewClient(cfg.Ledger)
	ledgerClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	rec := recognizerhttp.NewClient(cfg.Recognizer)

	outbound := pool.New(cfg.Outbound.MaxConcurrent)
	capClient := martech.NewClient(cfg.Capability, outbound)
	registry := tooling.NewRegistry()
	martech.RegisterTools(registry, capClient)

	// --- Services ---
	retrier := resilience.NewRetrier(resilience.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		Factor:         cfg.Retry.Factor,
		MaxDelay:       cfg.Retry.MaxDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	})

	meter := service.NewMeter(ledgerClient, store, credit.NewEstimator(), retrier, emitter, notify, log)
	planner := service.NewPlanner(registry, meter, emitter, log)
	gate := service.NewGate(cfg.Workflow.ConfirmationTTL, emitter, notify, log)
	router := service.NewRouter(planner, gate, store, emitter, cfg.Workflow.MaxPlanSteps, cfg.Workflow.TurnTimeout, log)
	assistant := service.NewAssistant(rec, store, router, gate, emitter, retrier, log)
	workflowSvc := service.NewWorkflowService(store, emitter, log)
	creditSvc := service.NewCreditService(store, ledgerClient)

	// --- HTTP ---
	handlers := &zmhttp.Handlers{
		Assistant: assistant,
		Workflows: workflowSvc,
		Credits:   creditSvc,
		Events:    events,
		Store:     store,
		Queue:     queue,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(zmhttp.Logger)
	r.Use(zmhttp.SecurityHeaders)
	r.Use(zmhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(zmotel.HTTPMiddleware(serviceName))
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()
	r.Use(limiter.Handler)

	r.Use(middleware.APIKeyAuth(cfg.Auth.Keys, cfg.Auth.Enabled))

	zmhttp.MountRoutes(r, handlers, hub.HandleWS)

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := zmmcp.NewServer(cfg.MCP, zmmcp.Deps{
			Workflows: workflowSvc,
			Credits:   creditSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildStore selects the persistence backend. The event store only has a
// durable backend on postgres; redis and memory deployments keep events
// in process.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (statestore.Store, eventstore.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("postgres connected, migrations applied")
		return postgres.NewStore(pool), postgres.NewEventStore(pool), nil

	case "redis":
		store, err := redisstate.NewStore(ctx, cfg.Redis, cfg.Workflow.StateTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		log.Info("redis connected", "addr", cfg.Redis.Addr)
		return store, memstore.NewEventStore(), nil

	case "memory":
		log.Warn("using in-memory store, state is lost on restart")
		return memstore.NewStore(), memstore.NewEventStore(), nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildCache assembles the state cache: ristretto L1 with NATS KV as L2.
func buildCache(ctx context.Context, cfg config.Cache, queue *zmnats.Queue) (cache.Cache, error) {
	l1, err := ristretto.New(cfg.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	kv, err := queue.KeyValue(ctx, cfg.L2Bucket, cfg.L2TTL)
	if err != nil {
		return nil, fmt.Errorf("nats kv: %w", err)
	}
	return tiered.New(l1, natskv.New(kv), cfg.L1TTL), nil
}

// buildNotifiers assembles the operator notification fanout from the
// configured channels. An empty fanout is valid.
func buildNotifiers(cfg config.Notify, log *slog.Logger) (*notifier.Fanout, error) {
	var notifiers []notifier.Notifier

	if cfg.Slack.WebhookURL != "" {
		n, err := notifier.New("slack", map[string]string{
			"webhook_url": cfg.Slack.WebhookURL,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if cfg.Email.Host != "" {
		n, err := notifier.New("email", map[string]string{
			"host":     cfg.Email.Host,
			"port":     fmt.Sprintf("%d", cfg.Email.Port),
			"from":     cfg.Email.From,
			"password": cfg.Email.Password,
			"to":       cfg.Email.To,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	if len(notifiers) > 0 {
		log.Info("operator notifications enabled", "channels", len(notifiers))
	}
	return notifier.NewFanout(log, notifiers...), nil
}

// startMetricsSubscriber feeds the workflow and credit event streams
// into the OTel instrument set.
func startMetricsSubscriber(ctx context.Context, queue messagequeue.Queue, log *slog.Logger) (func(), error) {
	metrics, err := zmotel.NewMetrics()
	if err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, subject string, data []byte) error {
		var ev event.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn("metrics: bad event", "subject", subject, "error", err)
			return nil
		}
		metrics.Observe(ctx, ev)
		return nil
	}

	cancelWorkflow, err := queue.Subscribe(ctx, messagequeue.SubjectWorkflowAll, handler)
	if err != nil {
		return nil, err
	}
	cancelCredit, err := queue.Subscribe(ctx, messagequeue.SubjectCreditAll, handler)
	if err != nil {
		cancelWorkflow()
		return nil, err
	}
	return func() {
		cancelWorkflow()
		cancelCredit()
	}, nil
}
