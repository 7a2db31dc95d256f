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
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/content"
)

// SQLiteStore handles queries to a SQLite content database
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// :memory: databases are per-connection
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Select returns up to limit rows of the source table in rowid order.
// A missing table surfaces as the driver's "no such table" error.
func (s *SQLiteStore) Select(ctx context.Context, source string, limit int) ([]content.Row, error) {
	if err := ValidateSourceName(source); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM "%s" LIMIT ?`, source)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", source, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows reads every row into a column-name keyed map
func scanRows(rows *sql.Rows) ([]content.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []content.Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(content.Row, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
				continue
			}
			row[column] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// Seed creates each fixture table if needed and inserts its rows in order.
// Column types are inferred from the first non-nil value of each field;
// lists and maps are stored as JSON text.
func (s *SQLiteStore) Seed(ctx context.Context, fixtures *Fixtures) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range fixtures.TableNames() {
		rows := fixtures.Tables[table]
		columns := columnTypes(rows)
		if len(columns) == 0 {
			continue
		}

		names := make([]string, 0, len(columns))
		for name := range columns {
			if err := ValidateSourceName(name); err != nil {
				return fmt.Errorf("table %s: %w", table, err)
			}
			names = append(names, name)
		}
		sort.Strings(names)

		defs := make([]string, len(names))
		for i, name := range names {
			defs[i] = fmt.Sprintf(`"%s" %s`, name, columns[name])
		}
		createStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, table, strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, createStmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}

		quoted := make([]string, len(names))
		for i, name := range names {
			quoted[i] = fmt.Sprintf(`"%s"`, name)
		}
		insertStmt := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
			table, strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

		for _, row := range rows {
			args := make([]any, len(names))
			for i, name := range names {
				arg, err := sqliteValue(row[name])
				if err != nil {
					return fmt.Errorf("table %s column %s: %w", table, name, err)
				}
				args[i] = arg
			}
			if _, err := tx.ExecContext(ctx, insertStmt, args...); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
		}

		s.logger.Info("Seeded content table",
			zap.String("table", table),
			zap.Int("rows", len(rows)))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}

// columnTypes maps each field seen in rows to a SQLite declared type.
// BOOLEAN is declared so the driver hands booleans back as bool.
func columnTypes(rows []content.Row) map[string]string {
	types := make(map[string]string)
	for _, row := range rows {
		for name, v := range row {
			if _, seen := types[name]; seen && v == nil {
				continue
			}
			if t, ok := types[name]; ok && t != "" {
				continue
			}
			switch v.(type) {
			case nil:
				types[name] = ""
			case bool:
				types[name] = "BOOLEAN"
			case int, int32, int64:
				types[name] = "INTEGER"
			case float32, float64:
				types[name] = "REAL"
			default:
				types[name] = "TEXT"
			}
		}
	}
	for name, t := range types {
		if t == "" {
			types[name] = "TEXT"
		}
	}
	return types
}

func sqliteValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, int, int32, int64, float32, float64, string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
}
