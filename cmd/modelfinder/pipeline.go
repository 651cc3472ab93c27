package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/app"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/console"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/pipeline"
)

var errInterrupted = errors.New("interrupted before the run finished")

type runFailedError struct {
	message string
}

func (e *runFailedError) Error() string {
	return fmt.Sprintf("run failed: %s", e.message)
}

var batchPattern string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <workflow.json>",
	Short: "Find the missing models of one workflow and search download links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(o *pipeline.Orchestrator) (string, error) {
			return o.Analyze(args[0])
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Process every matching workflow in a directory and search the combined summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(func(o *pipeline.Orchestrator) (string, error) {
			return o.Batch(args[0], batchPattern)
		})
	},
}

var viewLastCmd = &cobra.Command{
	Use:   "view-last <workflow.json>",
	Short: "Open the latest report produced for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTerminalApp(func(application *app.App) error {
			path, err := application.Orchestrator.ViewLast(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Opened %s\n", path)
			return nil
		})
	},
}

var openResultsCmd = &cobra.Command{
	Use:   "open-results",
	Short: "Open the results folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTerminalApp(func(application *app.App) error {
			_, err := application.Orchestrator.OpenResultsFolder()
			return err
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete result folders older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.Output.RetentionDays <= 0 {
			fmt.Println("Retention is disabled (output.retention_days = 0), nothing to clean")
			return nil
		}
		return withTerminalApp(func(application *app.App) error {
			removed, err := application.RunCleanup()
			for _, dir := range removed {
				fmt.Printf("Removed %s\n", dir)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Cleanup complete: %d folder(s) removed\n", len(removed))
			return nil
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "", "Glob pattern(s) of workflow files, ';' separated (default from config)")
}

func newTerminalView() *console.TerminalView {
	return console.NewTerminalView(os.Stdout, color.SupportColor())
}

// withTerminalApp runs fn against an app whose notifications go to the terminal.
// Notifications posted by fn are flushed before returning.
func withTerminalApp(fn func(application *app.App) error) error {
	application, err := app.New(config, logger, newTerminalView())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	err = fn(application)
	application.Dispatcher.Drain()
	return err
}

// runPipeline starts one run and drives the control loop until it finishes.
// The loop keeps going briefly after the last stage so a pending auto-open still happens.
func runPipeline(start func(o *pipeline.Orchestrator) (string, error)) error {
	view := newTerminalView()
	application, err := app.New(config, logger, view)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	view.Welcome(common.AppName, common.GetVersion())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	linger := 2 * pipeline.OptionsFromConfig(config).OpenDelay
	watcher := newRunWatcher(func(run models.PipelineRun) {
		logger.Info().
			Str("run_id", run.ID).
			Str("outcome", string(run.Outcome)).
			Str("report", run.Report).
			Msg("Run finished")
		application.Dispatcher.PostAfter(linger, cancel)
	})
	application.Orchestrator.AddObserver(watcher)

	runID, err := start(application.Orchestrator)
	if err != nil {
		return err
	}
	logger.Debug().Str("run_id", runID).Msg("Run started")

	if err := application.Dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return watcher.Err()
}
