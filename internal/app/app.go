// Package app wires the configured components shared by the service and the
// offline CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/doc-sentinel/internal/anonymizer"
	"github.com/raaihank/doc-sentinel/internal/cache"
	"github.com/raaihank/doc-sentinel/internal/config"
	"github.com/raaihank/doc-sentinel/internal/extract"
	"github.com/raaihank/doc-sentinel/internal/history"
	"github.com/raaihank/doc-sentinel/internal/llm"
	"github.com/raaihank/doc-sentinel/internal/logger"
	"github.com/raaihank/doc-sentinel/internal/processor"
	"github.com/raaihank/doc-sentinel/internal/suppliers"
	"github.com/raaihank/doc-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Options selects the long-running parts
type Options struct {
	// Service enables the websocket hub and the supplier file watcher
	Service bool
}

// App holds the constructed components. Optional ones are nil when
// disabled.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     *suppliers.Store
	Engine    *anonymizer.Engine
	Extractor *extract.Extractor
	LLM       *llm.Client
	Processor *processor.Processor
	Cache     *cache.ResultCache
	History   *history.Store
	Hub       *websocket.Hub
	Watcher   *suppliers.Watcher

	redis   *redis.Client
	persist bool
}

// Build constructs every component from cfg. Supplier load failures are
// logged and leave the store empty; unreachable redis or postgres is fatal.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if cfg.Suppliers.Backend == "redis" || cfg.Cache.Enabled {
		client, err := cache.NewClient(ctx, cache.ClientConfig{
			URL:            cfg.Redis.URL,
			MaxConnections: cfg.Redis.MaxConnections,
			MinIdleConns:   cfg.Redis.MinIdleConns,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
		log.Info("Connected to redis", zap.String("url", cache.MaskURL(cfg.Redis.URL)))
	}

	var backend suppliers.Backend
	var fileBackend *suppliers.FileBackend
	switch cfg.Suppliers.Backend {
	case "redis":
		backend = suppliers.NewRedisBackend(a.redis, cfg.Redis.KeyPrefix)
	default:
		fileBackend = suppliers.NewFileBackend(cfg.Suppliers.Path)
		backend = fileBackend
	}

	a.Store = suppliers.NewStore(backend, cfg.Anonymization.ReservedPrefix, log.WithComponent("suppliers").Logger)
	// a failed load is already logged by the store
	loadErr := a.Store.Load(ctx)

	library, err := anonymizer.DefaultLibrary().Select(cfg.Anonymization.Detectors)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Engine = anonymizer.New(library, a.Store, log.WithComponent("anonymizer").Logger)

	a.Extractor = extract.New(extract.Config{
		Pdftotext:     cfg.Extraction.Pdftotext,
		Pdftoppm:      cfg.Extraction.Pdftoppm,
		Tesseract:     cfg.Extraction.Tesseract,
		DPI:           cfg.Extraction.DPI,
		MaxPages:      cfg.Extraction.MaxPages,
		PDFLanguage:   cfg.Extraction.PDFLanguage,
		ImageLanguage: cfg.Extraction.ImageLanguage,
	}, log.WithComponent("extract").Logger)

	a.LLM, err = llm.New(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTotalTokens:    cfg.LLM.MaxTotalTokens,
		MaxOutputTokens:   cfg.LLM.MaxOutputTokens,
		TokenSafetyMargin: cfg.LLM.TokenSafetyMargin,
		Timeout:           cfg.LLM.Timeout,
	}, log.WithComponent("llm").Logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	a.Processor = processor.New(a.Engine, a.Extractor, a.LLM, log)

	if cfg.Cache.Enabled {
		a.Cache = cache.NewResultCache(a.redis, cfg.Redis.KeyPrefix, cfg.Cache.TTL, log.WithComponent("cache").Logger)
		a.Processor.WithCache(a.Cache)
	}

	if cfg.History.Enabled {
		a.History, err = history.Open(ctx, history.Config{
			DatabaseURL:     cfg.History.DatabaseURL,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		}, log.WithComponent("history").Logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Processor.WithHistory(a.History)
	}

	if !opts.Service {
		return a, nil
	}
	// never overwrite a document that could not be read
	a.persist = loadErr == nil

	if cfg.WebSocket.Enabled {
		a.Hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastRequests:       cfg.WebSocket.Events.BroadcastRequests,
			BroadcastAnonymizations: cfg.WebSocket.Events.BroadcastAnonymizations,
			BroadcastSuppliers:      cfg.WebSocket.Events.BroadcastSuppliers,
			BroadcastConnections:    cfg.WebSocket.Events.BroadcastConnections,
			Username:                cfg.WebSocket.Username,
			Password:                cfg.WebSocket.Password,
		}, log.WithComponent("websocket").Logger)
		a.Processor.WithEvents(a.Hub)
	}

	if fileBackend != nil && cfg.Suppliers.Watch {
		a.Watcher, err = suppliers.NewWatcher(a.Store, fileBackend, log.WithComponent("suppliers").Logger)
		if err != nil {
			// the service still works without hot reload
			log.Warn("Supplier file watch disabled", zap.Error(err))
		} else if a.Hub != nil {
			hub := a.Hub
			store := a.Store
			a.Watcher.OnReload(func(ids []string) {
				hub.BroadcastEvent(websocket.Event{
					Type:      websocket.EventTypeSupplierUpdate,
					Timestamp: time.Now(),
					Data: websocket.SupplierUpdateEvent{
						Action:    "reload",
						Persisted: true,
						Suppliers: store.Len(),
					},
				})
			})
		}
	}

	return a, nil
}

// Start launches the background goroutines
func (a *App) Start(ctx context.Context) {
	if a.Hub != nil {
		go a.Hub.Run(ctx)
	}
	if a.Watcher != nil {
		a.Watcher.Start()
	}
}

// Close releases connections. A service app also performs the final
// supplier persist.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Watcher != nil {
		errs = append(errs, a.Watcher.Close())
	}
	if a.persist {
		if err := a.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("persist suppliers: %w", err))
		}
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
