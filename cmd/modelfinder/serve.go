package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/app"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/console"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/server"
)

var openUI bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and web UI",
	Long:  `Starts the model finder server: workflow upload analysis, pipeline runs over HTTP, live progress over WebSocket and the irregular name mapping store.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&openUI, "open", false, "Open the web UI in the browser once the server is up (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(config, logger)

	application, err := app.New(config, logger, console.NewLoggerView(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	if err := application.InitServer(); err != nil {
		return err
	}

	// Control loop
	loopDone := make(chan error, 1)
	common.SafeGo(logger, "control-loop", func() {
		loopDone <- application.Dispatcher.Run(application.Context())
	})

	srv := server.New(application)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Start()
	})

	if openUI || config.Preferences.OpenUI {
		delay := common.ParseDurationOr(config.Preferences.OpenUIDelay, 3*time.Second)
		time.AfterFunc(delay, func() {
			if err := application.Opener.Open(srv.URL()); err != nil {
				logger.Warn().Err(err).Str("url", srv.URL()).Msg("Failed to open web UI")
			}
		})
	}

	logger.Info().Str("url", srv.URL()).Msg("Server ready")
	fmt.Printf("\nServer running on %s\n", srv.URL())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown requested")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("Server failed")
		}
	case runErr = <-loopDone:
		logger.Error().Err(runErr).Msg("Control loop stopped unexpectedly")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	fmt.Println("\nServer stopped")
	return runErr
}
