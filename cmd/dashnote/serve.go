package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/dashnote/internal/app"
	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket events",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := loadConfig(false)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			common.ApplyFlagOverrides(config, port, host)

			if dir, err := common.LogsDir(); err == nil {
				common.InstallCrashHandler(dir)
			}
			defer common.RecoverWithCrashFile()

			common.PrintBanner(common.Version)

			logger.Info().
				Int("port", config.Server.Port).
				Str("host", config.Server.Host).
				Msg("Starting dashnote server")

			application, err := app.New(config, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer application.Close()

			srv := server.New(application)
			errChan := make(chan error, 1)
			common.SafeGo(logger, "http-server", func() {
				errChan <- srv.Start()
			})

			logger.Info().
				Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
				Msg("Server ready - Press Ctrl+C to stop")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-sigChan:
				logger.Info().Msg("Interrupt signal received")
			case err := <-errChan:
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("Server shutdown failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "Server host (overrides config)")
	return cmd
}
