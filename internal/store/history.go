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
	"time"
)

// language=SQL
// dialect=SQLite
const insertHistorySQL = `INSERT INTO script_history(ts, text) VALUES (?, ?)`

// language=SQL
// dialect=SQLite
const listHistorySQL = `SELECT ts, text FROM script_history ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneHistorySQL = `DELETE FROM script_history WHERE id NOT IN (
	SELECT id FROM script_history ORDER BY ts DESC, id DESC LIMIT ?
)`

// historyTSLayout is fixed-width so timestamps sort lexicographically.
const historyTSLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultHistoryKeep is the number of script loads kept when no limit is configured.
const DefaultHistoryKeep = 50

// AppendHistory records the raw text of a successfully loaded script.
func (s *SQLiteStore) AppendHistory(ctx context.Context, text string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, insertHistorySQL, ts.UTC().Format(historyTSLayout), text)
	return wrap("history_append", "", err)
}

// ListHistory returns up to limit most recent loads, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryKeep
	}
	rows, err := s.db.QueryContext(ctx, listHistorySQL, limit)
	if err != nil {
		return nil, wrap("history_list", "", err)
	}
	defer func() { _ = rows.Close() }()
	var out []HistoryEntry
	for rows.Next() {
		var tsStr, txt string
		if err := rows.Scan(&tsStr, &txt); err != nil {
			return nil, wrap("history_list", "", err)
		}
		ts, _ := time.Parse(historyTSLayout, tsStr)
		out = append(out, HistoryEntry{TS: ts, Text: txt})
	}
	return out, wrap("history_list", "", rows.Err())
}

// PruneHistory keeps at most keep entries and deletes older ones.
func (s *SQLiteStore) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneHistorySQL, keep)
	if err != nil {
		return 0, wrap("history_prune", "", err)
	}
	n, err := res.RowsAffected()
	return n, wrap("history_prune", "", err)
}
