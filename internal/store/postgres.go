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

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation
const undefinedTable = "42P01"

// PostgresStore reads content rows through a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a pool for dsn. Connections are established lazily.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Select returns up to limit rows of the source table.
func (p *PostgresStore) Select(ctx context.Context, source string, limit int) ([]content.Row, error) {
	if err := ValidateSourceName(source); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT $1", pgx.Identifier{source}.Sanitize())
	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, p.wrapError(source, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, p.wrapError(source, err)
	}

	result := make([]content.Row, len(maps))
	for i, m := range maps {
		row := make(content.Row, len(m))
		for k, v := range m {
			row[k] = normalizeValue(v)
		}
		result[i] = row
	}
	return result, nil
}

func (p *PostgresStore) wrapError(source string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	}
	return fmt.Errorf("failed to query %s: %w", source, err)
}

// Ping verifies a connection can be acquired
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases every pooled connection
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// normalizeValue converts driver-specific values into the plain types the
// rest of the assistant understands.
func normalizeValue(v any) any {
	switch value := v.(type) {
	case pgtype.Numeric:
		f, err := value.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(value).String()
	case time.Time:
		if value.Hour() == 0 && value.Minute() == 0 && value.Second() == 0 && value.Nanosecond() == 0 {
			return value.Format(time.DateOnly)
		}
		return value.Format(time.RFC3339)
	case int16:
		return int64(value)
	case int32:
		return int64(value)
	case float32:
		return float64(value)
	default:
		return v
	}
}
