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
	"fmt"
	"log/slog"
	"path/filepath"

	"promptdeck/internal/config"
	applog "promptdeck/internal/log"
)

// Open selects and opens the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	l := applog.WithOperation(applog.WithComponent("store"), "open").With(slog.String("driver", cfg.Driver))
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.DriverFile:
		s, err = NewFileStore(cfg.Dir)
	case config.DriverSQLite, "":
		s, err = OpenSQLite(ctx, filepath.Join(cfg.Dir, SQLiteFileName))
	case config.DriverPostgres:
		s, err = OpenPostgres(ctx, cfg.DSN)
	case config.DriverMemory:
		s = NewMemStore()
	default:
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("unknown store driver %q", cfg.Driver)}
	}
	if err != nil {
		l.Error("open store failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("store opened")
	return s, nil
}
