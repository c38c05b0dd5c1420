// Package bootstrap wires the services from configuration. Every external
// dependency is optional: without Postgres, Redis, AWS or an LLM key the
// in-memory implementations take over so the API runs locally.
package bootstrap

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/wolfman30/agentdesk/internal/admin"
	"github.com/wolfman30/agentdesk/internal/agents"
	"github.com/wolfman30/agentdesk/internal/api/router"
	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/bant"
	appconfig "github.com/wolfman30/agentdesk/internal/config"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/events"
	"github.com/wolfman30/agentdesk/internal/handoff"
	httpmiddleware "github.com/wolfman30/agentdesk/internal/http/middleware"
	"github.com/wolfman30/agentdesk/internal/leads"
	"github.com/wolfman30/agentdesk/internal/llm"
	"github.com/wolfman30/agentdesk/internal/notify"
	"github.com/wolfman30/agentdesk/internal/observability/metrics"
	"github.com/wolfman30/agentdesk/internal/usage"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// App holds the wired services of one process.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Pool     *pgxpool.Pool
	SQLDB    *sql.DB
	Redis    *redis.Client
	Registry *prometheus.Registry

	Auth          *auth.Service
	Agents        *agents.Service
	Leads         *leads.Service
	Notify        *notify.Service
	Hub           *notify.Hub
	Usage         usage.Recorder
	Conversations *conversation.Service
	Handoffs      *handoff.Service
	Jobs          conversation.JobStore
	Queue         conversation.JobQueue
	Processor     *conversation.JobProcessor
	Sweeper       *handoff.Sweeper

	memoryQueue bool
	outbox      *events.OutboxStore
	nats        *events.NATSPublisher
	relay       *notify.RedisBroadcaster

	cancel context.CancelFunc
	wg     sync.WaitGroup
	worker *conversation.Worker
}

// Build wires every service from cfg.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pool, sqlDB, err := BuildPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Pool, app.SQLDB = pool, sqlDB
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	app.Redis = BuildRedisClient(ctx, cfg, logger)

	if err := app.buildAuth(ctx); err != nil {
		app.Close()
		return nil, err
	}
	client, model := BuildLLMClient(ctx, cfg, awsCfg, logger)
	app.buildAgents(awsCfg, model)
	app.buildLeads()
	app.buildNotify(awsCfg)
	emitter, err := app.buildEvents()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.buildConversations(awsCfg, client, model, emitter)

	app.Sweeper, err = handoff.NewSweeper(app.Handoffs, cfg.HandoffSweepSchedule, cfg.HandoffSLA, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) buildAuth(ctx context.Context) error {
	var repo auth.Repository = auth.NewMemoryRepository()
	if a.Pool != nil {
		repo = auth.NewPostgresRepository(a.Pool)
	}
	secret := a.Config.JWTSecret
	if secret == "" {
		if a.Config.IsProduction() {
			return fmt.Errorf("bootstrap: JWT_SECRET is required in production")
		}
		secret = randomSecret()
		a.Logger.Warn("JWT_SECRET not set; generated an ephemeral secret")
	}
	a.Auth = auth.NewService(repo, auth.NewHasher(0), auth.NewTokenIssuer(secret, a.Config.JWTTTL), a.Logger)

	if a.Config.SeedAdminEmail != "" && a.Config.SeedAdminPassword != "" {
		if _, err := a.Auth.EnsureSeedAdmin(ctx, a.Config.SeedOrgName, a.Config.SeedAdminEmail, a.Config.SeedAdminPassword); err != nil {
			return fmt.Errorf("bootstrap: seed admin: %w", err)
		}
	}
	return nil
}

func (a *App) buildAgents(awsCfg aws.Config, model string) {
	var repo agents.Repository = agents.NewMemoryRepository()
	if a.Pool != nil {
		repo = agents.NewPostgresRepository(a.Pool)
	}
	var knowledge agents.KnowledgeStore = agents.NewMemoryKnowledgeStore()
	if a.Config.KnowledgeBucket != "" {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.UsePathStyle = awsCfg.BaseEndpoint != nil })
		knowledge = agents.NewS3KnowledgeStore(client, a.Config.KnowledgeBucket)
	}
	a.Agents = agents.NewService(repo, knowledge, model, a.Logger)
}

func (a *App) buildLeads() {
	var repo leads.Repository = leads.NewInMemoryRepository()
	if a.Pool != nil {
		repo = leads.NewPostgresRepository(a.Pool)
	}
	a.Leads = leads.NewService(repo, a.Config.BANTQualifiedThreshold, a.Logger)
}

func (a *App) buildNotify(awsCfg aws.Config) {
	var store notify.Store = notify.NewMemoryStore()
	if a.Pool != nil {
		store = notify.NewPostgresStore(a.Pool)
	}
	a.Hub = notify.NewHub()
	var broadcaster notify.Broadcaster = a.Hub
	if a.Redis != nil {
		a.relay = notify.NewRedisBroadcaster(a.Redis, a.Hub, a.Logger)
		broadcaster = a.relay
	}
	a.Notify = notify.NewService(store, broadcaster, a.buildEmail(awsCfg), a.Auth, a.Config.PublicBaseURL, a.Logger)
}

// buildEmail chains SendGrid before SES. Neither configured means log only.
func (a *App) buildEmail(awsCfg aws.Config) notify.EmailSender {
	from := notify.Address{Name: a.Config.EmailFromName, Email: a.Config.EmailFrom}
	var senders []notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey: a.Config.SendGridAPIKey,
		From:   from,
	}, a.Logger); sg != nil {
		senders = append(senders, sg)
	}
	if a.Config.SESFromEmail != "" {
		sesFrom := notify.Address{Name: a.Config.EmailFromName, Email: a.Config.SESFromEmail}
		if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			From:             sesFrom,
			ConfigurationSet: a.Config.SESConfigurationSet,
		}, a.Logger); ses != nil {
			senders = append(senders, ses)
		}
	}
	if len(senders) == 0 {
		return notify.NewLogSender(a.Logger)
	}
	return notify.NewChainSender(a.Logger, senders...)
}

func (a *App) buildEvents() (events.Emitter, error) {
	var handler events.DeliveryHandler
	if a.Config.NATSURL != "" {
		pub, err := events.NewNATSPublisher(a.Config.NATSURL, a.Config.NATSToken, a.Config.EventsSubjectPrefix, a.Logger)
		if err != nil {
			return nil, err
		}
		a.nats = pub
		handler = pub
	}
	if a.Pool != nil && handler != nil {
		a.outbox = events.NewOutboxStore(a.Pool)
		return a.outbox, nil
	}
	return events.NewLogEmitter(a.Logger, handler), nil
}

func (a *App) buildConversations(awsCfg aws.Config, client llm.Client, model string, emitter events.Emitter) {
	cfg := a.Config
	chatMetrics := metrics.NewChatMetrics(a.Registry)

	var store conversation.Store = conversation.NewMemoryStore()
	var handoffStore handoff.Store = handoff.NewMemoryStore()
	a.Usage = usage.NewMemoryRecorder()
	if a.Pool != nil {
		store = conversation.NewPostgresStore(a.Pool)
		handoffStore = handoff.NewPostgresStore(a.Pool)
		a.Usage = usage.NewPostgresRecorder(a.Pool)
	}

	a.Handoffs = handoff.NewService(handoff.Deps{
		Conversations: store,
		Store:         handoffStore,
		Notifier:      a.Notify,
		Events:        emitter,
		Leads:         a.Leads,
		Metrics:       chatMetrics,
	}, a.Logger)

	if cfg.QualificationJobsTable != "" {
		a.Jobs = conversation.NewDynamoJobStore(dynamodb.NewFromConfig(awsCfg), cfg.QualificationJobsTable, a.Logger)
	} else {
		a.Jobs = conversation.NewMemoryJobStore()
	}
	if cfg.UseMemoryQueue || cfg.QualificationQueueURL == "" {
		a.Queue = conversation.NewMemoryQueue(256)
		a.memoryQueue = true
	} else {
		a.Queue = conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.QualificationQueueURL)
	}

	deps := conversation.Deps{
		Store:               store,
		Agents:              a.Agents,
		LLM:                 client,
		Detector:            bant.NewDetector(a.Logger),
		Extractor:           bant.NewExtractor(client, model, a.Logger),
		Leads:               a.Leads,
		Usage:               a.Usage,
		Events:              emitter,
		Notifier:            a.Notify,
		Handoffs:            a.Handoffs,
		Metrics:             chatMetrics,
		InlineQualification: cfg.QualificationWorkerInline,
		MaxTokens:           int32(cfg.LLMMaxTokens),
	}
	if !cfg.QualificationWorkerInline {
		deps.Queue = conversation.NewPublisher(a.Queue, a.Jobs, a.Logger)
	}
	if a.Redis != nil {
		deps.History = conversation.NewRedisHistoryCache(a.Redis, otel.Tracer("agentdesk.internal.conversation.history"))
	}
	a.Conversations = conversation.NewService(deps, a.Logger)
	a.Processor = conversation.NewJobProcessor(a.Conversations, a.Jobs, a.Logger)
}

// Router builds the HTTP handler.
func (a *App) Router() http.Handler {
	checks := map[string]router.HealthCheck{}
	if a.Pool != nil {
		checks["database"] = func(ctx context.Context) error { return a.Pool.Ping(ctx) }
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return router.New(&router.Config{
		Logger:              a.Logger,
		TokenParser:         a.Auth.Tokens(),
		AuthHandler:         auth.NewHandler(a.Auth, a.Logger),
		AgentsHandler:       agents.NewHandler(a.Agents, a.Logger),
		ConversationHandler: conversation.NewHandler(a.Conversations, a.Jobs, a.Logger),
		HandoffHandler:      handoff.NewHandler(a.Handoffs, a.Logger),
		LeadsHandler:        leads.NewHandler(a.Leads, a.Logger),
		NotifyHandler:       notify.NewHandler(a.Notify, a.Hub, a.Config.CORSAllowedOrigins, a.Logger),
		AdminHandler:        admin.NewHandler(a.SQLDB, a.Logger),
		UsageHandler:        usage.NewHandler(a.Usage, a.Logger),
		MetricsHandler:      promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		HealthChecks:        checks,
		CORSAllowedOrigins:  a.Config.CORSAllowedOrigins,
		RateLimiter:         httpmiddleware.NewRateLimiter(a.Config.RateLimitRPS, a.Config.RateLimitBurst),
	})
}

// UsesMemoryQueue reports whether jobs stay in process, in which case the API
// must run its own worker.
func (a *App) UsesMemoryQueue() bool {
	return a.memoryQueue
}

// NewWorker builds a queue worker over the app's processor.
func (a *App) NewWorker() *conversation.Worker {
	return conversation.NewWorker(a.Processor, a.Queue, a.Logger,
		conversation.WithWorkerCount(a.Config.WorkerCount),
		conversation.WithMaxReceives(a.Config.JobMaxReceives),
		conversation.WithRetryBase(a.Config.JobRetryBase))
}

// StartBackground runs the handoff sweeper, the outbox deliverer, the Redis
// notification relay and, with inProcessWorker, a qualification worker.
func (a *App) StartBackground(ctx context.Context, inProcessWorker bool) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Sweeper.Start()
	if a.outbox != nil && a.nats != nil {
		deliverer := events.NewDeliverer(a.outbox, a.nats, a.Logger)
		a.goRun(func() { deliverer.Start(ctx) })
	}
	if a.relay != nil {
		a.goRun(func() {
			if err := a.relay.Run(ctx, nil); err != nil {
				a.Logger.Error("notification relay stopped", "error", err)
			}
		})
	}
	if inProcessWorker {
		a.worker = a.NewWorker()
		a.worker.Start(ctx)
	}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown stops background work, waiting at most until ctx is done.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel == nil {
		return
	}
	a.Sweeper.Stop(ctx)
	a.cancel()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		if a.worker != nil {
			a.worker.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Logger.Warn("background shutdown timed out")
	}
}

// Close releases connections.
func (a *App) Close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.SQLDB != nil {
		_ = a.SQLDB.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("bootstrap: random secret: %v", err))
	}
	return hex.EncodeToString(buf)
}
