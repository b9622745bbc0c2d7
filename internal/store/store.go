/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package store is the key/value persistence substrate. Values are opaque blobs;
// callers own their own (de)serialization.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Logical keys used by the application.
const (
	KeyScript = "script"
	KeyImages = "images"
)

// Store is a durable key/value store.
// Load reports ok=false for a key that was never saved or has been removed.
// Removing an absent key is not an error.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// History is implemented by backends that keep a log of loaded script texts.
type History interface {
	AppendHistory(ctx context.Context, text string, ts time.Time) error
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
	PruneHistory(ctx context.Context, keep int) (int64, error)
}

// HistoryEntry is one recorded script load.
type HistoryEntry struct {
	TS   time.Time
	Text string
}

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrClosed     = errors.New("store closed")
)

// StoreError wraps every backend failure with the operation and key involved.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// validKey keeps keys usable as file names on every backend.
func validKey(op, key string) error {
	if !keyPattern.MatchString(key) {
		return &StoreError{Op: op, Key: key, Err: ErrInvalidKey}
	}
	return nil
}
