/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// language=SQL
// dialect=PostgreSQL
const createPGKVSQL = `CREATE TABLE IF NOT EXISTS promptdeck_kv (
	key         TEXT PRIMARY KEY,
	value       BYTEA NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// language=SQL
// dialect=PostgreSQL
const loadPGKVSQL = `SELECT value FROM promptdeck_kv WHERE key = $1`

// language=SQL
// dialect=PostgreSQL
const upsertPGKVSQL = `INSERT INTO promptdeck_kv(key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// language=SQL
// dialect=PostgreSQL
const deletePGKVSQL = `DELETE FROM promptdeck_kv WHERE key = $1`

// PostgresStore keeps values in a shared Postgres table through the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, &StoreError{Op: "open", Err: errors.New("postgres dsn is required")}
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("open postgres: %w", err)}
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("ping postgres: %w", err)}
	}
	if _, err := db.ExecContext(ctx, createPGKVSQL); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("create table: %w", err)}
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validKey("load", key); err != nil {
		return nil, false, err
	}
	var v []byte
	err := p.db.QueryRowContext(ctx, loadPGKVSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("load", key, err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, value []byte) error {
	if err := validKey("save", key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := p.db.ExecContext(ctx, upsertPGKVSQL, key, value)
	return wrap("save", key, err)
}

func (p *PostgresStore) Remove(ctx context.Context, key string) error {
	if err := validKey("remove", key); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, deletePGKVSQL, key)
	return wrap("remove", key, err)
}

func (p *PostgresStore) Close() error {
	return wrap("close", "", p.db.Close())
}
