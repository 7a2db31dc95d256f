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
	"github.com/spf13/cobra"

	"github.com/your-org/portfolio-assistant/internal/config"
)

// rootOptions holds the flags shared by every subcommand
type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "portfolio-assistant",
		Short: "Grounded chat backend for a personal portfolio",
		Long: `portfolio-assistant answers visitor questions about the portfolio owner
using only the projects, experience, certifications, publications and skills
held in the content store.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file (default ./.env when present)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newSeedCmd(opts),
		newModelsCmd(opts),
	)

	return rootCmd
}

func (o *rootOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigPath:       o.configPath,
		EnvFile:          o.envFile,
		Environment:      config.CurrentEnvironment(),
		ValidateRequired: true,
	}
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadWithOptions(o.loadOptions())
}
