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

// Package store provides the structured content store backends the
// assistant reads portfolio rows from.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/config"
	"github.com/your-org/portfolio-assistant/internal/content"
)

// Supported backend drivers
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
	DriverMemory    = "memory"
)

var (
	// ErrSourceNotFound is returned when a source table does not exist
	ErrSourceNotFound = errors.New("source not found")
	// ErrInvalidSourceName is returned for names that are not plain identifiers
	ErrInvalidSourceName = errors.New("invalid source name")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Backend is a content store that can also be health-checked and closed.
type Backend interface {
	content.Store
	Ping(ctx context.Context) error
	Close() error
}

// ValidateSourceName rejects anything that is not a plain table identifier.
// Source names come from configuration, but they are interpolated into
// queries and URLs so they are checked anyway.
func ValidateSourceName(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSourceName, name)
	}
	return nil
}

// Open creates the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)
	case DriverPostgREST:
		return NewPostgRESTStore(cfg.PostgRESTURL, cfg.APIKey, cfg.Timeout, logger)
	case DriverMemory:
		if cfg.FixturesPath == "" {
			return NewMemoryStore(nil), nil
		}
		fixtures, err := LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(fixtures), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
