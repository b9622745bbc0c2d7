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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"promptdeck/internal/config"
)

// exerciseStore checks the contract every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, KeyScript); err != nil || ok {
		t.Fatalf("load missing: ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, KeyScript, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, KeyImages, []byte(`{"1":{"url":"u"}}`)); err != nil {
		t.Fatalf("save images: %v", err)
	}
	got, ok, err := s.Load(ctx, KeyScript)
	if err != nil || !ok || string(got) != `{"a":1}` {
		t.Fatalf("load: %q ok=%v err=%v", got, ok, err)
	}
	if err := s.Save(ctx, KeyScript, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = s.Load(ctx, KeyScript)
	if string(got) != `{"a":2}` {
		t.Fatalf("overwrite not visible: %q", got)
	}

	if err := s.Remove(ctx, KeyScript); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Load(ctx, KeyScript); ok {
		t.Fatal("removed key still present")
	}
	if err := s.Remove(ctx, KeyScript); err != nil {
		t.Fatalf("remove absent key: %v", err)
	}
	// Keys are independent.
	if got, ok, _ := s.Load(ctx, KeyImages); !ok || string(got) != `{"1":{"url":"u"}}` {
		t.Fatalf("images key affected by script removal: %q ok=%v", got, ok)
	}

	err = s.Save(ctx, "../escape", []byte("x"))
	var se *StoreError
	if !errors.As(err, &se) || !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected invalid key StoreError, got %v", err)
	}
}

func TestMemStoreContract(t *testing.T) {
	s := NewMemStore()
	exerciseStore(t, s)
	_ = s.Close()
	if err := s.Save(context.Background(), KeyScript, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestFileStoreContract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exerciseStore(t, s)
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), SQLiteFileName))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("PDK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PDK_TEST_PG_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	_ = s.Remove(ctx, KeyScript)
	_ = s.Remove(ctx, KeyImages)
	exerciseStore(t, s)
}

func TestFileStoreBinaryValue(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	blob := []byte{0, 1, 2, 0xff}
	if err := s.Save(ctx, "blob", blob); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx, "blob")
	if err != nil || !ok || string(got) != string(blob) {
		t.Fatalf("load: %v ok=%v err=%v", got, ok, err)
	}
}

func TestFileStoreFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, KeyScript, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save(ctx, KeyScript, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "script.json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	got, ok, err := s.Load(ctx, KeyScript)
	if err != nil || !ok {
		t.Fatalf("load after corruption: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"v":1}` {
		t.Fatalf("expected previous version from backup, got %q", got)
	}
}

func TestFileStoreCorruptWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "script.json"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err = s.Load(context.Background(), KeyScript)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "load" {
		t.Fatalf("expected load StoreError, got %v", err)
	}
}

func TestFileStorePrunesBackups(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.BackupKeep = 2
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		if err := s.Save(ctx, KeyImages, []byte(`{}`)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if n := len(s.backups(KeyImages)); n != 2 {
		t.Fatalf("backups = %d, want 2", n)
	}
	if err := s.Remove(ctx, KeyImages); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := len(s.backups(KeyImages)); n != 0 {
		t.Fatalf("backups after remove = %d", n)
	}
}

func TestSQLiteMigrationsAndHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), SQLiteFileName)
	ctx := context.Background()
	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d err=%v", v, err)
	}
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, txt := range []string{"one", "two", "three"} {
		if err := s.AppendHistory(ctx, txt, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	hist, err := s.ListHistory(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hist) != 3 || hist[0].Text != "three" || hist[2].Text != "one" {
		t.Fatalf("unexpected history order: %+v", hist)
	}
	if !hist[0].TS.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("ts = %v", hist[0].TS)
	}
	n, err := s.PruneHistory(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("prune: n=%d err=%v", n, err)
	}
	_ = s.Close()

	// Reopen keeps data and does not re-run migrations destructively.
	s2, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	hist, err = s2.ListHistory(ctx, 0)
	if err != nil || len(hist) != 1 || hist[0].Text != "three" {
		t.Fatalf("history after reopen: %+v err=%v", hist, err)
	}
}

func TestSQLiteImplementsHistory(t *testing.T) {
	var _ History = (*SQLiteStore)(nil)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, driver := range []string{config.DriverFile, config.DriverSQLite, config.DriverMemory} {
		s, err := Open(ctx, config.StoreConfig{Driver: driver, Dir: filepath.Join(dir, driver)})
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		switch s.(type) {
		case *FileStore:
			if driver != config.DriverFile {
				t.Fatalf("%s opened a file store", driver)
			}
		case *SQLiteStore:
			if driver != config.DriverSQLite {
				t.Fatalf("%s opened a sqlite store", driver)
			}
		case *MemStore:
			if driver != config.DriverMemory {
				t.Fatalf("%s opened a memory store", driver)
			}
		default:
			t.Fatalf("%s: unexpected type %T", driver, s)
		}
		_ = s.Close()
	}
	if _, err := Open(ctx, config.StoreConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(ctx, config.StoreConfig{Driver: config.DriverPostgres}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	l1, err := Lock(dir)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := Lock(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := l1.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	l2, err := Lock(dir)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = l2.Unlock()
	var nilLock *DirLock
	if err := nilLock.Unlock(); err != nil {
		t.Fatalf("nil unlock: %v", err)
	}
}
