// Package app wires the copilot's collaborators from configuration. Both
// entrypoints build through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"sales-copilot/handler"
	"sales-copilot/internal/bundle"
	"sales-copilot/internal/config"
	"sales-copilot/internal/integrations/catalog"
	"sales-copilot/internal/integrations/openai"
	"sales-copilot/internal/integrations/paramstore"
	"sales-copilot/internal/integrations/reasoning"
	"sales-copilot/internal/integrations/restclient"
	"sales-copilot/internal/objection"
	"sales-copilot/internal/repository"
	"sales-copilot/internal/usecase"
)

type App struct {
	Handler *handler.Handler
	Writer  *repository.Writer

	redis  *redis.Client
	params *paramstore.Client
	tokens []*paramstore.TokenSource
}

// New builds the application. Nothing here performs network I/O; secrets
// are resolved on first use.
func New(ctx context.Context, cfg *config.Config, awsCfg aws.Config, log *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: parameter store: %w", err)
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: state store: %w", err)
	}
	writer, err := repository.NewWriter(store, cfg.WriterBuffer, log)
	if err != nil {
		return nil, fmt.Errorf("app: session writer: %w", err)
	}

	a := &App{Writer: writer, params: params}
	svc, err := a.service(cfg, params, store, log)
	if err != nil {
		_ = writer.Close(ctx)
		a.closeRedis()
		return nil, err
	}

	h, err := handler.NewHandler(svc,
		handler.WithFlusher(writer),
		handler.WithLogger(log),
		handler.WithCORSOrigins(cfg.CORSOrigins...),
	)
	if err != nil {
		_ = writer.Close(ctx)
		a.closeRedis()
		return nil, fmt.Errorf("app: handler: %w", err)
	}
	a.Handler = h
	return a, nil
}

func (a *App) service(cfg *config.Config, params *paramstore.Client, store *repository.Client, log *slog.Logger) (*usecase.Service, error) {
	bearer, err := paramstore.NewTokenSource(params, cfg.ParamName(cfg.CatalogTokenParam))
	if err != nil {
		return nil, fmt.Errorf("app: catalog credential: %w", err)
	}
	a.tokens = append(a.tokens, bearer)
	catalogREST, err := restclient.New(cfg.CatalogBaseURL, bearer,
		restclient.WithHTTPDoer(restclient.NewRetryClient(nil, 2, log)))
	if err != nil {
		return nil, fmt.Errorf("app: catalog transport: %w", err)
	}
	catalogClient, err := catalog.New(catalogREST)
	if err != nil {
		return nil, err
	}

	var items usecase.CatalogReader = catalogClient
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache, err := catalog.NewCache(catalogClient, a.redis, cfg.CatalogCacheTTL,
			catalog.WithCacheKey(cfg.CatalogCacheKey), catalog.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("app: catalog cache: %w", err)
		}
		items = cache
	}

	bundles, err := bundle.NewResolver(catalogClient)
	if err != nil {
		return nil, err
	}

	objections := objection.Default()
	if cfg.ObjectionCorpus != "" {
		objections, err = objection.Load(cfg.ObjectionCorpus)
		if err != nil {
			return nil, fmt.Errorf("app: objection corpus: %w", err)
		}
	}

	steps, recommender, err := a.reasoner(cfg, params, bearer, log)
	if err != nil {
		return nil, err
	}

	return usecase.NewService(usecase.Deps{
		Conversations: store,
		Sessions:      store,
		SessionWriter: a.Writer,
		Catalog:       items,
		Bundles:       bundles,
		Objections:    objections,
		Steps:         steps,
		Recommender:   recommender,
		Logger:        log,
	})
}

func (a *App) reasoner(cfg *config.Config, params *paramstore.Client, bearer *paramstore.TokenSource, log *slog.Logger) (usecase.StepGenerator, usecase.StrategyRecommender, error) {
	switch cfg.ReasoningBackend {
	case config.BackendOpenAI:
		tokens, err := paramstore.NewTokenSource(params, cfg.ParamName(cfg.OpenAITokenParam))
		if err != nil {
			return nil, nil, fmt.Errorf("app: openai credential: %w", err)
		}
		a.tokens = append(a.tokens, tokens)
		opts := []openai.Option{openai.WithTemperature(cfg.OpenAITemperature)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm, err := openai.NewClient(tokens, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("app: openai client: %w", err)
		}
		r, err := usecase.NewLLMReasoner(llm, cfg.OpenAIModel)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case config.BackendHTTP:
		rest, err := restclient.New(cfg.ReasoningBaseURL, bearer,
			restclient.WithHTTPDoer(restclient.NewRetryClient(nil, cfg.ReasoningRetries, log)))
		if err != nil {
			return nil, nil, fmt.Errorf("app: reasoning transport: %w", err)
		}
		r, err := reasoning.New(rest)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown reasoning backend %q", cfg.ReasoningBackend)
	}
}

// Warm resolves every collaborator credential in one Parameter Store read.
// A failure is not fatal: each credential is still read on first use.
func (a *App) Warm(ctx context.Context) error {
	return paramstore.Preload(ctx, a.params, a.tokens...)
}

// Close drains queued session writes and releases the Redis pool.
func (a *App) Close(ctx context.Context) error {
	err := a.Writer.Close(ctx)
	a.closeRedis()
	return err
}

func (a *App) closeRedis() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
