/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	applog "promptdeck/internal/log"
	"promptdeck/internal/script"
	"promptdeck/internal/store"
)

var (
	ErrNoDocument = errors.New("no script loaded")
	ErrUnknownID  = errors.New("no entry with this id")
)

// Loader reads a persisted value.
type Loader interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
}

// Persister queues writes without blocking; *persist.Writer implements it.
type Persister interface {
	Save(key string, value []byte)
	Remove(key string)
}

// Ledger owns the loaded document, the working entry list and the snapshot taken at
// the last successful load. It is safe for concurrent use.
type Ledger struct {
	src Loader
	out Persister
	log *slog.Logger

	mu       sync.Mutex
	doc      *script.Document
	entries  []Entry
	original []Entry
}

// New returns an empty ledger backed by src and out. Call Restore to pick up the
// persisted document.
func New(src Loader, out Persister) *Ledger {
	return &Ledger{src: src, out: out, log: applog.WithComponent("ledger")}
}

// Restore reads the persisted document and rebuilds the entries with their copied
// flags as stored. An absent key leaves the ledger empty.
func (l *Ledger) Restore(ctx context.Context) error {
	doc, ok, err := l.readStored(ctx)
	if err != nil || !ok {
		return err
	}
	entries := fromDocument(doc)
	l.mu.Lock()
	l.doc = &doc
	l.entries = entries
	l.original = clone(entries)
	l.mu.Unlock()
	l.log.Info("script restored", slog.Int("chapters", len(doc.Chapters)), slog.Int("entries", len(entries)))
	return nil
}

func (l *Ledger) readStored(ctx context.Context) (script.Document, bool, error) {
	b, ok, err := l.src.Load(ctx, store.KeyScript)
	if err != nil {
		return script.Document{}, false, err
	}
	if !ok {
		return script.Document{}, false, nil
	}
	var doc script.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return script.Document{}, false, fmt.Errorf("decode stored script: %w", err)
	}
	return doc, true, nil
}

// Load parses raw and replaces the document, the entries and the original snapshot.
// Copied flags carry over from the document currently in memory or, when none is
// loaded, from the persisted one. On a parse error nothing changes.
func (l *Ledger) Load(ctx context.Context, raw string) (script.Document, error) {
	doc, err := script.Parse(raw)
	if err != nil {
		return script.Document{}, err
	}

	l.mu.Lock()
	var prior *script.Document
	if l.doc != nil {
		p := overlay(*l.doc, l.entries)
		prior = &p
	}
	l.mu.Unlock()

	if prior == nil {
		stored, ok, rerr := l.readStored(ctx)
		if rerr != nil {
			l.log.Warn("prior script unreadable, merging without it", slog.Any("err", rerr))
		} else if ok {
			prior = &stored
		}
	}

	entries := Merge(doc, prior)
	l.mu.Lock()
	d := doc.Clone()
	l.doc = &d
	l.entries = entries
	l.original = clone(entries)
	l.persistLocked()
	l.mu.Unlock()

	l.log.Info("script loaded",
		slog.Int("chapters", len(doc.Chapters)),
		slog.Int("entries", len(entries)),
		slog.Int("remaining", Remaining(entries)),
	)
	return doc, nil
}

// MarkCopied marks the entries identified by id as copied.
func (l *Ledger) MarkCopied(id script.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.doc == nil {
		return ErrNoDocument
	}
	changed, found := false, false
	for _, e := range l.entries {
		if id != "" && e.Key == id {
			found = true
			changed = changed || !e.Copied
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownID, id.String())
	}
	if changed {
		l.entries = MarkCopied(l.entries, id)
		l.persistLocked()
	}
	return nil
}

// ResetCopied clears every copied flag.
func (l *Ledger) ResetCopied() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.doc == nil {
		return ErrNoDocument
	}
	l.entries = ResetAll(l.entries)
	l.persistLocked()
	return nil
}

// RestoreOriginal replaces the working list with the snapshot taken at the last
// successful load, discarding copy progress made since.
func (l *Ledger) RestoreOriginal() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.doc == nil {
		return ErrNoDocument
	}
	l.entries = clone(l.original)
	l.persistLocked()
	return nil
}

// Clear drops the document, the entries and the snapshot, and removes the
// persisted script. The image cache is not affected.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.doc = nil
	l.entries = nil
	l.original = nil
	l.out.Remove(store.KeyScript)
}

// Loaded reports whether a document is present.
func (l *Ledger) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc != nil
}

// Entries returns a copy of the working list.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return clone(l.entries)
}

// Document returns the loaded document with the current copied flags.
func (l *Ledger) Document() (script.Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.doc == nil {
		return script.Document{}, false
	}
	return overlay(*l.doc, l.entries), true
}

// Lookup returns the first entry whose key is id.
func (l *Ledger) Lookup(id script.ID) (Entry, bool) {
	if id == "" {
		return Entry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Key == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Prompt returns the prompt of the entry identified by id.
func (l *Ledger) Prompt(id script.ID) (string, bool) {
	e, ok := l.Lookup(id)
	if !ok {
		return "", false
	}
	return e.Prompt, true
}

func (l *Ledger) persistLocked() {
	b, err := json.Marshal(overlay(*l.doc, l.entries))
	if err != nil {
		l.log.Error("encode script failed", slog.Any("err", err))
		return
	}
	l.out.Save(store.KeyScript, b)
}
