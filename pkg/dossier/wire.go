package dossier

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xhad/dossier/internal/types"
	"github.com/xhad/dossier/pkg/config"
	"github.com/xhad/dossier/pkg/financials"
	"github.com/xhad/dossier/pkg/fusion"
	"github.com/xhad/dossier/pkg/llm"
	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/pkg/market"
	"github.com/xhad/dossier/pkg/policy"
	"github.com/xhad/dossier/pkg/processor"
	"github.com/xhad/dossier/pkg/registry"
	"github.com/xhad/dossier/pkg/scraper"
	"github.com/xhad/dossier/pkg/search"
	"github.com/xhad/dossier/pkg/store"
)

// NewFromConfig wires the production collaborators. The returned cleanup
// closes the ledger and the archive.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, func(), error) {
	logger = logging.OrNop(logger)
	gen, err := llm.NewWithConfig(ctx, llm.GeneratorConfig{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Models.Clean,
		CallDelay:    cfg.LLM.CallDelay,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}

	weights := policy.New(cfg.Domains)
	provider, err := newProvider(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	source, err := search.NewSource(search.SourceConfig{
		Provider: provider,
		Fetcher: scraper.NewWithConfig(scraper.ScraperConfig{
			MaxConcurrent: cfg.Scraper.MaxConcurrent,
			RateLimit:     cfg.Scraper.RateLimit,
			Timeout:       cfg.Scraper.Timeout,
			UserAgent:     cfg.Scraper.UserAgent,
			Logger:        logger,
		}),
		Policy:    weights,
		PageDelay: cfg.Search.PageDelay,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := processor.NewPipeline(processor.PipelineConfig{
		Generator: gen,
		Models: types.ModelNames{
			Clean:     cfg.LLM.Models.Clean,
			Relevance: cfg.LLM.Models.Relevance,
			Summary:   cfg.LLM.Models.Summary,
			Fusion:    cfg.LLM.Models.Fusion,
		},
		ChunkSize:  cfg.Processor.ChunkSize,
		CallDelay:  cfg.Processor.CallDelay,
		ChunkDelay: cfg.Processor.ChunkDelay,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}

	fuser, err := fusion.New(fusion.Config{
		Generator: gen,
		Model:     cfg.LLM.Models.Fusion,
		MaxTokens: cfg.LLM.FusionMaxTokens,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	digest, err := market.New(market.Config{
		Generator: gen,
		Model:     cfg.LLM.Models.Market,
		Searcher:  source,
		Distiller: pipeline,
		Domains:   weights.Domains(),
		Pages:     cfg.Search.PagesMarket,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	svcConfig := Config{
		Registry:       registry.NewJSONExtractor(cfg.Paths.RegistryDir, logger),
		Searcher:       source,
		Distiller:      pipeline,
		Fuser:          fuser,
		Market:         digest,
		Financials:     financials.Lookup,
		FinancialsFile: cfg.Paths.FinancialsFile,
		Domains:        weights.Domains(),
		PagesCompany:   cfg.Search.PagesCompany,
		PagesExecutive: cfg.Search.PagesExecutive,
		OutputDir:      cfg.Paths.OutputDir,
		Logger:         logger,
	}

	if cfg.Ledger.Path != "" {
		ledger, err := store.OpenLedger(cfg.Ledger.Path, logger)
		if err != nil {
			logger.Warn("dossier: ledger disabled", zap.Error(err))
		} else {
			svcConfig.Ledger = ledger
			closers = append(closers, func() { ledger.Close() })
		}
	}

	if cfg.Database.URL != "" {
		embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   cfg.LLM.EmbeddingModel,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err == nil {
			var vs *store.VectorStore
			vs, err = store.NewVectorStore(ctx, store.VectorStoreConfig{
				ConnString: cfg.Database.URL,
				TableName:  cfg.Database.TableName,
				VectorDim:  cfg.Database.VectorDim,
				Embedder:   embedder,
				Logger:     logger,
			})
			if err == nil {
				svcConfig.Archive = vs
				closers = append(closers, vs.Close)
			}
		}
		if err != nil {
			logger.Warn("dossier: summary archive disabled", zap.Error(err))
		}
	}

	svc, err := New(svcConfig)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

func newProvider(cfg *config.Config, logger *zap.Logger) (search.Provider, error) {
	switch cfg.Search.Provider {
	case "yandex":
		return search.NewYandex(search.YandexConfig{
			IAMToken:          cfg.Search.IAMToken,
			FolderID:          cfg.Search.FolderID,
			Endpoint:          cfg.Search.Endpoint,
			OperationEndpoint: cfg.Search.OperationEndpoint,
			PollInterval:      cfg.Search.PollInterval,
			Client:            &http.Client{Timeout: cfg.Search.Timeout},
			Logger:            logger,
		})
	case "duckduckgo":
		return search.NewDuckDuckGo(search.DuckDuckGoConfig{UserAgent: cfg.Scraper.UserAgent, Logger: logger}), nil
	default:
		return nil, errors.New("dossier: unknown search provider " + cfg.Search.Provider)
	}
}

// WithStatus returns a Service that reports progress to fn. The receiver is
// not modified.
func (s *Service) WithStatus(fn func(status string)) *Service {
	c := *s
	c.config.OnStatus = fn
	if fn == nil {
		c.config.OnStatus = func(string) {}
	}
	return &c
}

// RunWithStatus is Run with a per-call progress callback.
func (s *Service) RunWithStatus(ctx context.Context, inn string, fn func(status string)) (*Result, *ErrorPayload) {
	return s.WithStatus(fn).Run(ctx, inn)
}
