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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/your-org/portfolio-assistant/internal/chat"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), opts, strings.Join(args, " "), asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the HTTP response body instead of plain text")

	return cmd
}

func runAsk(ctx context.Context, opts *rootOptions, question string, asJSON bool, out io.Writer) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	logger, _, err := initializeLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	result, err := app.service.Answer(ctx, question)
	if err != nil {
		var fallbackErr *chat.FallbackError
		if errors.As(err, &fallbackErr) {
			if writeErr := writeAnswer(out, asJSON, map[string]any{
				"error":    fallbackErr.Error(),
				"fallback": fallbackErr.Fallback,
			}, fallbackErr.Fallback); writeErr != nil {
				return writeErr
			}
		}
		return err
	}

	body := map[string]any{"response": result.Response}
	if result.Fallback {
		body["note"] = "fallback"
	} else {
		body["model"] = result.Model
	}
	return writeAnswer(out, asJSON, body, result.Response)
}

func writeAnswer(out io.Writer, asJSON bool, body map[string]any, text string) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(body)
	}
	_, err := fmt.Fprintln(out, text)
	return err
}
