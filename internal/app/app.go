package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/handlers"
	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/services/analyzers"
	"github.com/ternarybob/dashnote/internal/services/domain"
	"github.com/ternarybob/dashnote/internal/services/llm"
	"github.com/ternarybob/dashnote/internal/services/loader"
	"github.com/ternarybob/dashnote/internal/services/orchestrator"
	"github.com/ternarybob/dashnote/internal/services/report"
	"github.com/ternarybob/dashnote/internal/services/session"
	"github.com/ternarybob/dashnote/internal/services/stats"
	"github.com/ternarybob/dashnote/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Analysis pipeline
	Pipeline *Pipeline

	// Session services
	SessionService *session.Service
	SessionCleaner *session.Cleaner
	ReportService  *report.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	SessionHandler *handlers.SessionHandler
	WSHandler      *handlers.WebSocketHandler
}

// Pipeline is the annotation graph and the services behind it. The CLI and
// the MCP server use it without the HTTP and session layers.
type Pipeline struct {
	Provider     *llm.ProviderFactory
	Loader       *loader.Loader
	Terms        *domain.Adapter
	Orchestrator *orchestrator.Orchestrator
	Stats        stats.Options
}

// NewPipeline builds the collaborators and the orchestrator from config
func NewPipeline(cfg *common.Config, logger arbor.ILogger) (*Pipeline, error) {
	terms := domain.NewAdapter(cfg.DomainTerms, logger)
	if cfg.Analysis.DomainTermsFile != "" {
		if err := terms.LoadTermsFile(cfg.Analysis.DomainTermsFile); err != nil {
			return nil, fmt.Errorf("failed to load domain terms: %w", err)
		}
	}

	provider := llm.NewProviderFactory(cfg, logger)
	opts := analyzers.Options{
		ImageMaxBytes: cfg.Analysis.ImageMaxBytes,
		PreviewRows:   cfg.Analysis.PreviewRows,
	}

	statsOpts := stats.Options{
		SeasonalityThreshold: cfg.Analysis.SeasonalityThreshold,
		IQRMultiplier:        cfg.Analysis.IQRMultiplier,
	}

	ld := loader.New(logger, loader.Policy(cfg.Analysis.ColumnPolicy))

	orch := orchestrator.New(
		orchestrator.Dependencies{
			Visual:    analyzers.NewVisualExtractor(provider, opts, logger),
			Domain:    analyzers.NewDomainInferer(provider, opts, logger),
			Narrative: analyzers.NewNarrator(provider, opts, logger),
			Loader:    ld,
			Terms:     terms,
		},
		orchestrator.Config{
			Timeout:          common.Duration(cfg.LLM.Timeout, 3*time.Minute),
			ReviewEnabled:    cfg.Analysis.ReviewEnabled,
			NarrativeEnabled: cfg.Analysis.NarrativeEnabled,
			HistoryWindow:    cfg.Analysis.HistoryWindow,
			DefaultDomain:    cfg.Analysis.DefaultDomain,
			ImageMaxBytes:    cfg.Analysis.ImageMaxBytes,
			Stats:            statsOpts,
		},
		logger,
	)

	logger.Debug().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Str("column_policy", string(ld.Policy())).
		Strs("domains", terms.Domains()).
		Msg("Annotation pipeline initialized")

	return &Pipeline{
		Provider:     provider,
		Loader:       ld,
		Terms:        terms,
		Orchestrator: orch,
		Stats:        statsOpts,
	}, nil
}

// Close releases provider clients
func (p *Pipeline) Close() error {
	return p.Provider.Close()
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Created before the session service, which publishes through it
	app.WSHandler = handlers.NewWebSocketHandler(app.Logger)

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.SessionCleaner.Start(cfg.Session.CleanupSchedule); err != nil {
		return nil, fmt.Errorf("failed to start session cleanup: %w", err)
	}

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Bool("in_memory", cfg.Storage.Badger.InMemory).
		Bool("auto_annotate", cfg.Analysis.AutoAnnotate).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	return nil
}

func (a *App) initServices() error {
	pipeline, err := NewPipeline(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Pipeline = pipeline

	ttl := common.Duration(a.Config.Session.TTL, 2*time.Hour)
	a.SessionService = session.NewService(
		a.StorageManager.SessionStorage(),
		pipeline.Orchestrator,
		pipeline.Loader,
		a.WSHandler,
		session.Config{
			UploadsDir:    a.Config.Storage.UploadsDir,
			ImageMaxBytes: a.Config.Analysis.ImageMaxBytes,
			DataMaxBytes:  a.Config.Analysis.DataMaxBytes,
			TTL:           ttl,
			AutoAnnotate:  a.Config.Analysis.AutoAnnotate,
		},
		a.Logger,
	)
	a.SessionCleaner = session.NewCleaner(a.SessionService, ttl, a.Logger)
	a.ReportService = report.NewService(a.Logger)
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(
		a.SessionService,
		a.ReportService,
		a.Config.Analysis.ImageMaxBytes,
		a.Config.Analysis.DataMaxBytes,
		a.Logger,
	)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SessionCleaner != nil {
		a.SessionCleaner.Stop()
	}

	if a.Pipeline != nil {
		if err := a.Pipeline.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
