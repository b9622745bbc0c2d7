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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	applog "promptdeck/internal/log"
)

const (
	BackupsDirName = "backups"
	// DefaultBackupKeep is how many previous versions of a key the file store retains.
	DefaultBackupKeep = 5
)

// fileRecord is the on-disk envelope. JSON values are stored inline so the file
// stays readable; anything else is stored base64-encoded in Blob.
type fileRecord struct {
	Key     string          `json:"key"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data,omitempty"`
	Blob    []byte          `json:"blob,omitempty"`
}

func (r fileRecord) value() []byte {
	if len(r.Data) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.Data); err == nil {
			return buf.Bytes()
		}
		return []byte(r.Data)
	}
	if r.Blob == nil {
		return []byte{}
	}
	return r.Blob
}

// FileStore keeps one JSON file per key under Dir. Writes go to a temp file that is
// fsynced and renamed over the target; the previous version is copied to a
// timestamped backup first. A current file that cannot be parsed falls back to the
// latest readable backup.
type FileStore struct {
	Dir        string
	BackupKeep int

	mu     sync.Mutex
	closed bool
}

// NewFileStore creates dir (and its backups folder) if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, &StoreError{Op: "open", Err: errors.New("directory is required")}
	}
	if err := os.MkdirAll(filepath.Join(dir, BackupsDirName), 0o755); err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("create state dir: %w", err)}
	}
	return &FileStore{Dir: dir, BackupKeep: DefaultBackupKeep}, nil
}

func (f *FileStore) path(key string) string { return filepath.Join(f.Dir, key+".json") }

func (f *FileStore) backupPrefix(key string) string { return key + ".json." }

func (f *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	if err := validKey("load", key); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false, &StoreError{Op: "load", Key: key, Err: ErrClosed}
	}
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err == nil {
		rec, perr := decodeRecord(b)
		if perr == nil {
			return rec.value(), true, nil
		}
		err = perr
	}
	l := applog.WithOperation(applog.WithComponent("store"), "load").With(slog.String("key", key))
	l.Warn("current value unreadable, trying latest backup", slog.Any("err", err))
	rec, berr := f.latestBackup(key)
	if berr != nil {
		return nil, false, &StoreError{Op: "load", Key: key, Err: fmt.Errorf("%w; backup attempt: %v", err, berr)}
	}
	return rec.value(), true, nil
}

func decodeRecord(b []byte) (fileRecord, error) {
	var rec fileRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return fileRecord{}, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}

func (f *FileStore) Save(_ context.Context, key string, value []byte) error {
	if err := validKey("save", key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &StoreError{Op: "save", Key: key, Err: ErrClosed}
	}
	rec := fileRecord{Key: key, SavedAt: time.Now().UTC()}
	if len(value) > 0 && json.Valid(value) {
		rec.Data = json.RawMessage(value)
	} else {
		rec.Blob = value
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("marshal record: %w", err)}
	}
	data = append(data, '\n')

	target := f.path(key)
	bdir := filepath.Join(f.Dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("ensure backups dir: %w", err)}
	}
	if _, statErr := os.Stat(target); statErr == nil {
		stamp := time.Now().UTC().Format("20060102-150405.000000000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s%s.bak", f.backupPrefix(key), stamp))
		if cerr := copyFile(target, bpath); cerr != nil {
			return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("backup current value: %w", cerr)}
		}
		f.pruneBackups(key)
	}

	temp := filepath.Join(f.Dir, fmt.Sprintf(".%s.tmp-%d-%d", key, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		_ = os.Remove(temp)
		return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("write temp file: %w", werr)}
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		return &StoreError{Op: "save", Key: key, Err: fmt.Errorf("replace value: %w", rerr)}
	}
	return nil
}

// Remove deletes the value and its backups so a later Load cannot resurrect it.
func (f *FileStore) Remove(_ context.Context, key string) error {
	if err := validKey("remove", key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &StoreError{Op: "remove", Key: key, Err: ErrClosed}
	}
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "remove", Key: key, Err: err}
	}
	for _, p := range f.backups(key) {
		_ = os.Remove(p)
	}
	return nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// backups returns the backup paths of key, oldest first.
func (f *FileStore) backups(key string) []string {
	bdir := filepath.Join(f.Dir, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	prefix := f.backupPrefix(key)
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out
}

func (f *FileStore) pruneBackups(key string) {
	keep := f.BackupKeep
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	all := f.backups(key)
	for len(all) > keep {
		_ = os.Remove(all[0])
		all = all[1:]
	}
}

// latestBackup returns the newest backup of key that still parses.
func (f *FileStore) latestBackup(key string) (fileRecord, error) {
	all := f.backups(key)
	if len(all) == 0 {
		return fileRecord{}, errors.New("no backups found")
	}
	var lastErr error
	for i := len(all) - 1; i >= 0; i-- {
		b, err := os.ReadFile(all[i])
		if err != nil {
			lastErr = err
			continue
		}
		rec, err := decodeRecord(b)
		if err != nil {
			lastErr = err
			continue
		}
		return rec, nil
	}
	return fileRecord{}, fmt.Errorf("no readable backup: %w", lastErr)
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = sf.Close() }()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
