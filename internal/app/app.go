package app

import (
	"context"
	"fmt"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/artifacts"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/broadcast"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/handlers"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/pipeline"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/services/analysis"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/services/opener"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/services/scheduler"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/storage/badger"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/tasks"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Control loop and pipeline
	Dispatcher   *tasks.Dispatcher
	Runner       *tasks.Runner
	Bridge       *analysis.Bridge
	Opener       interfaces.Opener
	Resolver     *artifacts.Resolver
	Cleaner      *artifacts.Cleaner
	Orchestrator *pipeline.Orchestrator
	View         interfaces.View

	// Live subscribers
	Hub *broadcast.Hub

	// Server-only services, set up by InitServer
	db               *badger.BadgerDB
	MappingStorage   interfaces.MappingStorage
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	WSHandler       *handlers.WebSocketHandler
	AnalyzeHandler  *handlers.AnalyzeHandler
	PipelineHandler *handlers.PipelineHandler
	MappingHandler  *handlers.MappingHandler
	ConfigHandler   *handlers.ConfigHandler
	StatusHandler   *handlers.StatusHandler
}

// New wires the pipeline core: control loop, task runner, helper bridge and orchestrator.
// view receives every user-visible update.
func New(cfg *common.Config, logger arbor.ILogger, view interfaces.View) (*App, error) {
	if view == nil {
		return nil, fmt.Errorf("view is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
		View:      view,
	}

	app.initPipeline()

	logger.Debug().
		Int("max_workers", cfg.Tasks.MaxWorkers).
		Str("output_root", cfg.Output.Root).
		Str("bridge", cfg.Bridge.Command).
		Msg("Pipeline initialized")

	return app, nil
}

func (a *App) initPipeline() {
	cfg := a.Config

	a.Dispatcher = tasks.NewDispatcher(cfg.Tasks.QueueSize, a.Logger)
	a.Runner = tasks.NewRunner(
		a.ctx,
		a.Dispatcher,
		tasks.NewSubmitter(cfg.Tasks.MaxWorkers, a.Logger),
		common.ParseDurationOr(cfg.Tasks.ProgressInterval, 0),
		a.Logger,
	)

	a.Bridge = analysis.NewBridge(cfg.Bridge, a.Logger)
	a.Opener = opener.NewService(a.Logger)
	a.Resolver = artifacts.NewResolver(cfg.Output.ReportExt, a.Logger)
	a.Cleaner = artifacts.NewCleaner(cfg.Output.Root, a.Logger)
	a.Hub = broadcast.NewHub(a.Logger)

	a.Orchestrator = pipeline.NewOrchestrator(
		a.Runner,
		pipeline.Collaborators{
			Analyzer: a.Bridge,
			Searcher: a.Bridge,
			Batcher:  a.Bridge,
		},
		a.Resolver,
		a.Opener,
		a.View,
		pipeline.OptionsFromConfig(cfg),
		a.Logger,
	)
	a.Orchestrator.AddObserver(broadcast.NewPipelineObserver(a.Hub))
}

// InitServer opens the mapping store, schedules cleanup and builds the HTTP handlers
func (a *App) InitServer() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db
	a.MappingStorage = badger.NewMappingStorage(db, a.Logger)

	if err := a.initScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	a.WSHandler = handlers.NewWebSocketHandler(a.Hub, &a.Config.WebSocket, a.Logger)
	a.AnalyzeHandler = handlers.NewAnalyzeHandler(a.Bridge, a.Hub, a.MappingStorage, a.Logger)
	a.PipelineHandler = handlers.NewPipelineHandler(a.Orchestrator, a.Logger)
	a.MappingHandler = handlers.NewMappingHandler(a.MappingStorage, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.Logger, a.Config)
	a.StatusHandler = handlers.NewStatusHandler(a.Hub, a.SchedulerService, a.Logger)

	a.Logger.Info().
		Str("database", a.Config.Storage.Badger.Path).
		Msg("Server components initialized")
	return nil
}

func (a *App) initScheduler() error {
	schedule := a.Config.Output.CleanupSchedule
	if schedule == "" || a.Config.Output.RetentionDays <= 0 {
		a.Logger.Debug().Msg("Scheduled results cleanup disabled")
		return nil
	}

	service := scheduler.NewService(a.Logger)
	if err := service.RegisterJob(handlers.CleanupJobName, schedule, func() error {
		_, err := a.RunCleanup()
		return err
	}); err != nil {
		return err
	}
	if err := service.Start(); err != nil {
		return err
	}

	a.SchedulerService = service
	return nil
}

// RunCleanup removes date buckets older than the configured retention
func (a *App) RunCleanup() ([]string, error) {
	removed, err := a.Cleaner.Cleanup(a.Config.Output.RetentionDays)
	if err != nil {
		return removed, fmt.Errorf("results cleanup failed: %w", err)
	}
	return removed, nil
}

// Context is cancelled by Close; the control loop and tasks run under it
func (a *App) Context() context.Context {
	return a.ctx
}

// Close stops background work and releases the database
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.db = nil
	}

	a.Logger.Debug().Msg("Application closed")
	return nil
}
