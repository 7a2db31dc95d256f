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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/store"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var fixturesPath, dbPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load YAML fixtures into the SQLite content store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts, fixturesPath, dbPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&fixturesPath, "fixtures", "f", "./configs/fixtures.yaml", "Path to the fixtures file")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default store.sqlite_path)")

	return cmd
}

func runSeed(ctx context.Context, opts *rootOptions, fixturesPath, dbPath string, out io.Writer) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	logger, _, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if dbPath == "" {
		if cfg.Store.Driver != store.DriverSQLite {
			return fmt.Errorf("seed writes to SQLite; store driver is %q, pass --db", cfg.Store.Driver)
		}
		dbPath = cfg.Store.SQLitePath
	}

	fixtures, err := store.LoadFixtures(fixturesPath)
	if err != nil {
		return err
	}

	sqlite, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sqlite.Close() }()

	if err := sqlite.Seed(ctx, fixtures); err != nil {
		return err
	}

	logger.Info("Seed completed",
		zap.String("db", dbPath),
		zap.Strings("tables", fixtures.TableNames()))
	_, err = fmt.Fprintf(out, "Seeded %d table(s) into %s\n", len(fixtures.TableNames()), dbPath)
	return err
}
