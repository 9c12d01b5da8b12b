// Package bootstrap assembles the service from configuration: it picks the
// concrete stores and model collaborators and wires the pipeline to the
// HTTP surface.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"github.com/callsight/callsight/internal/api"
	"github.com/callsight/callsight/internal/config"
	"github.com/callsight/callsight/internal/events"
	"github.com/callsight/callsight/internal/job"
	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/metrics"
	"github.com/callsight/callsight/internal/pipeline"
	"github.com/callsight/callsight/internal/retry"
	"github.com/callsight/callsight/internal/server"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/stream"
	"github.com/callsight/callsight/internal/suggest"
	"github.com/callsight/callsight/internal/transcript"
)

// App holds the running service and its teardown handles.
type App struct {
	Config *config.Config
	Log    logger.Logger
	Server *server.Server

	service *pipeline.Service
	bus     *events.Bus
	redis   *redis.Client
}

// New loads configuration and wires every component. Optional backends
// degrade gracefully: no Redis means in-memory transcripts, no
// Elasticsearch means no knowledge retrieval, no Anthropic key means
// rule-based extraction.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	app := &App{Config: cfg, Log: log}

	m := metrics.New(cfg.Service.Name)
	bus := events.NewBus(log)
	app.bus = bus
	store := job.NewStore(log, job.WithMaxAttempts(cfg.Pipeline.MaxAttempts))

	transcripts, err := app.buildTranscriptStore(log)
	if err != nil {
		return nil, err
	}
	broadcaster := stream.NewBroadcaster(log,
		stream.WithConnectionBuffer(cfg.Stream.ConnectionBuffer),
		stream.WithStats(m),
	)

	driver := pipeline.NewDriver(
		store,
		transcripts,
		app.buildExtractor(log),
		app.buildRetriever(log),
		app.buildComposer(log),
		broadcaster,
		bus,
		m,
		log,
		pipeline.Config{
			StageTimeout: cfg.Pipeline.StageTimeout,
			Backoff: retry.Backoff{
				InitialDelay: cfg.Pipeline.InitialBackoff,
				MaxDelay:     cfg.Pipeline.MaxBackoff,
			},
			RetrievalLimit: cfg.Pipeline.RetrievalLimit,
			MinSimilarity:  cfg.Pipeline.MinSimilarity,
		},
	)
	app.service = pipeline.NewService(driver, store, transcripts, broadcaster, bus, log)

	engine := server.New(cfg.Service, log)
	engine.GET("/metrics", m.Handler())
	api.RegisterRoutes(engine, api.NewHandlers(store, bus, log), broadcaster, cfg.Auth.JWTSecret, log)
	app.Server = server.NewServer(cfg.Service, engine, log)

	return app, nil
}

// Start begins pipeline processing. The HTTP server is started separately
// so the caller owns its error.
func (a *App) Start(ctx context.Context) {
	a.service.Start(ctx)
}

// Shutdown stops the HTTP server, drains the pipeline, and closes the
// backends.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)

	a.service.Close()
	a.bus.Close()
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	_ = a.Log.Sync()
	return err
}

func (a *App) buildTranscriptStore(log logger.Logger) (transcript.Store, error) {
	if a.Config.Redis.Address == "" {
		log.Info("transcript store: in-memory")
		return transcript.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", a.Config.Redis.Address, err)
	}
	a.redis = client

	log.Info("transcript store: redis", logger.String("address", a.Config.Redis.Address))
	return transcript.NewRedisStore(client, transcript.DefaultTTL), nil
}

func (a *App) buildRetriever(log logger.Logger) knowledge.Retriever {
	if a.Config.Elasticsearch.Address == "" {
		log.Info("knowledge retrieval disabled, no elasticsearch address")
		return knowledge.NopRetriever{}
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{a.Config.Elasticsearch.Address},
		Username:  a.Config.Elasticsearch.Username,
		Password:  a.Config.Elasticsearch.Password,
	})
	if err != nil {
		log.Warn("elasticsearch client failed, knowledge retrieval disabled", logger.Error(err))
		return knowledge.NopRetriever{}
	}

	log.Info("knowledge retrieval: elasticsearch", logger.String("address", a.Config.Elasticsearch.Address))
	return knowledge.NewESRetriever(client, log)
}

func (a *App) buildExtractor(log logger.Logger) signals.Extractor {
	if a.Config.Anthropic.APIKey == "" {
		log.Info("signal extraction: keyword rules, no model key")
		return signals.NewRuleExtractor()
	}
	log.Info("signal extraction: anthropic", logger.String("model", a.Config.Anthropic.Model))
	return signals.NewLLMExtractor(a.Config.Anthropic.APIKey, a.Config.Anthropic.Model, log)
}

func (a *App) buildComposer(log logger.Logger) suggest.Composer {
	if a.Config.Anthropic.APIKey == "" {
		log.Info("suggestion composing: templates, no model key")
		return suggest.NewTemplateComposer()
	}
	return suggest.NewLLMComposer(a.Config.Anthropic.APIKey, a.Config.Anthropic.Model, log)
}
