// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	logger, level, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tp, err := initTracing(ctx, cfg.Tracing, cfg.Environment)
	if err != nil {
		logger.Error("Failed to initialize tracing", zap.Error(err))
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start service", zap.Error(err))
		return err
	}
	defer func() { _ = app.Close() }()

	// Log configuration with masked sensitive values
	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("environment", cfg.Environment),
		zap.String("owner", masked.Owner.Name),
		zap.String("llm_provider", masked.LLM.Provider),
		zap.String("llm_model", masked.LLM.Model),
		zap.String("llm_api_key", masked.LLM.APIKey),
		zap.String("store_driver", masked.Store.Driver),
		zap.Duration("request_timeout", masked.Server.RequestTimeout),
		zap.Bool("tracing_export", cfg.Tracing.Enabled()),
	)

	// Only the log level is applied live; other changes need a restart
	if err := config.WatchConfig(opts.loadOptions(), logger, func(updated *config.Config) {
		level.SetLevel(parseLevel(updated.Logging.Level))
		logger.Info("Configuration reloaded", zap.String("log_level", updated.Logging.Level))
	}); err != nil {
		logger.Info("Config hot reload disabled", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting portfolio assistant",
			zap.String("addr", server.Addr),
			zap.Bool("model_enabled", app.service.ModelEnabled()))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	logger.Info("Portfolio assistant stopped")
	return nil
}
