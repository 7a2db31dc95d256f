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
	"io"

	"github.com/spf13/cobra"

	"github.com/your-org/portfolio-assistant/internal/llm"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModels(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

func runModels(ctx context.Context, opts *rootOptions, out io.Writer) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if !cfg.LLM.Enabled() {
		return errors.New("no language model API key configured")
	}

	logger, _, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	provider, err := newProvider(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}

	models, err := provider.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	return printModels(out, models, cfg.LLM.ModelPriority)
}

// printModels lists every model, marking those that can generate content,
// and names the one rediscovery would pick.
func printModels(out io.Writer, models []llm.ModelInfo, priority []string) error {
	if len(priority) == 0 {
		priority = llm.DefaultModelPriority
	}

	for _, m := range models {
		marker := " "
		if m.Supports(llm.GenerateContentAction) {
			marker = "*"
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", marker, m.Name); err != nil {
			return err
		}
	}

	if chosen, ok := llm.SelectModel(models, priority); ok {
		_, err := fmt.Fprintf(out, "\nDiscovery would select: %s\n", chosen)
		return err
	}
	_, err := fmt.Fprintln(out, "\nNo model supports content generation")
	return err
}
