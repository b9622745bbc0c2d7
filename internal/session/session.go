/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session is the application service behind the CLI and the HTTP API. It
// owns the ledger, the image cache, the generation gate and the persistence writer
// of one process.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"promptdeck/internal/coordinator"
	"promptdeck/internal/generator"
	"promptdeck/internal/imagecache"
	"promptdeck/internal/ledger"
	applog "promptdeck/internal/log"
	"promptdeck/internal/metrics"
	"promptdeck/internal/persist"
	"promptdeck/internal/script"
	"promptdeck/internal/store"
)

var (
	ErrNoScript      = ledger.ErrNoDocument
	ErrNothingToCopy = errors.New("nothing to copy")
	ErrNoHistory     = errors.New("the configured store does not keep a script history")
)

// Options configures a Session.
type Options struct {
	Store       store.Store
	Generator   generator.Generator
	Credentials func() (apiKey, model string)
	Timeout     time.Duration
	Clipboard   Clipboard
	// HistoryKeep bounds the script history on stores that keep one.
	HistoryKeep int
}

// Session wires the components together. One per process.
type Session struct {
	st      store.Store
	w       *persist.Writer
	ledger  *ledger.Ledger
	images  *imagecache.Cache
	coord   *coordinator.Coordinator
	clip    Clipboard
	keep    int
	log     *slog.Logger
	restore error
}

// Open restores persisted state and returns a ready session. Unreadable persisted
// state is logged and reported by RestoreError; the session starts without it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("session: generator is required")
	}
	l := applog.WithComponent("session")
	w := persist.New(opts.Store)
	led := ledger.New(opts.Store, w)
	imgs := imagecache.New(opts.Store, w)
	clip := opts.Clipboard
	if clip == nil {
		clip = DiscardClipboard{}
	}
	keep := opts.HistoryKeep
	if keep <= 0 {
		keep = store.DefaultHistoryKeep
	}
	s := &Session{
		st:     opts.Store,
		w:      w,
		ledger: led,
		images: imgs,
		clip:   clip,
		keep:   keep,
		log:    l,
	}
	s.coord = coordinator.New(coordinator.Config{
		Generator:   opts.Generator,
		Prompts:     led,
		Images:      imgs,
		Credentials: opts.Credentials,
		Timeout:     opts.Timeout,
	})

	var errs []error
	if err := led.Restore(ctx); err != nil {
		l.Warn("restore script failed", slog.Any("err", err))
		errs = append(errs, err)
	}
	if err := imgs.Load(ctx); err != nil {
		l.Warn("restore images failed", slog.Any("err", err))
		errs = append(errs, err)
	}
	s.restore = errors.Join(errs...)
	w.OnError(func(key string, err error) {
		l.Error("state not saved; in-memory state is kept", slog.String("key", key), slog.Any("err", err))
		metrics.PersistFailed(key)
	})
	return s, nil
}

// RestoreError reports what could not be restored at Open, if anything.
func (s *Session) RestoreError() error { return s.restore }

// LoadResult summarizes a successful load.
type LoadResult struct {
	Title     string `json:"title,omitempty"`
	Chapters  int    `json:"chapters"`
	Entries   int    `json:"entries"`
	Remaining int    `json:"remaining"`
}

// LoadScript parses raw and replaces the working state. On error nothing changes.
func (s *Session) LoadScript(ctx context.Context, raw string) (LoadResult, error) {
	doc, err := s.ledger.Load(ctx, raw)
	metrics.ScriptLoaded(err == nil)
	if err != nil {
		return LoadResult{}, err
	}
	s.recordHistory(ctx, raw)
	entries := s.ledger.Entries()
	return LoadResult{
		Title:     doc.Title,
		Chapters:  len(doc.Chapters),
		Entries:   len(entries),
		Remaining: ledger.Remaining(entries),
	}, nil
}

func (s *Session) recordHistory(ctx context.Context, raw string) {
	h, ok := s.st.(store.History)
	if !ok {
		return
	}
	if err := h.AppendHistory(ctx, raw, time.Now()); err != nil {
		s.log.Warn("record script history failed", slog.Any("err", err))
		return
	}
	if _, err := h.PruneHistory(ctx, s.keep); err != nil {
		s.log.Warn("prune script history failed", slog.Any("err", err))
	}
}

// History lists recent script loads when the store keeps them.
func (s *Session) History(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	h, ok := s.st.(store.History)
	if !ok {
		return nil, ErrNoHistory
	}
	return h.ListHistory(ctx, limit)
}

// Document returns the loaded document with its copied flags.
func (s *Session) Document() (script.Document, error) {
	doc, ok := s.ledger.Document()
	if !ok {
		return script.Document{}, ErrNoScript
	}
	return doc, nil
}

// TextSummary is every chapter text joined by blank lines.
func (s *Session) TextSummary() (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}
	return script.TextSummary(doc), nil
}

// TitleAndHashtags renders the title and the hashtags on two lines.
func (s *Session) TitleAndHashtags() (string, error) {
	doc, err := s.Document()
	if err != nil {
		return "", err
	}
	return script.TitleAndHashtags(doc), nil
}

// CopyPrompt hands the prompt of id to the clipboard and marks it copied. The mark
// is only applied when the clipboard accepted the text.
func (s *Session) CopyPrompt(id script.ID) (string, error) {
	if !s.ledger.Loaded() {
		return "", ErrNoScript
	}
	prompt, ok := s.ledger.Prompt(id)
	if !ok {
		return "", ledger.ErrUnknownID
	}
	if err := s.clip.WriteText(prompt); err != nil {
		return "", err
	}
	if err := s.ledger.MarkCopied(id); err != nil {
		return "", err
	}
	metrics.PromptCopied()
	return prompt, nil
}

// CopyAllText hands the text summary to the clipboard.
func (s *Session) CopyAllText() (string, error) {
	txt, err := s.TextSummary()
	if err != nil {
		return "", err
	}
	return s.copyText(txt)
}

// CopyTitleAndHashtags hands title and hashtags to the clipboard.
func (s *Session) CopyTitleAndHashtags() (string, error) {
	txt, err := s.TitleAndHashtags()
	if err != nil {
		return "", err
	}
	return s.copyText(txt)
}

func (s *Session) copyText(txt string) (string, error) {
	if txt == "" {
		return "", ErrNothingToCopy
	}
	if err := s.clip.WriteText(txt); err != nil {
		return "", err
	}
	return txt, nil
}

func (s *Session) MarkCopied(id script.ID) error { return s.ledger.MarkCopied(id) }

func (s *Session) ResetCopied() error { return s.ledger.ResetCopied() }

// RestorePrompts brings back the entry list as it was right after the last load.
func (s *Session) RestorePrompts() error { return s.ledger.RestoreOriginal() }

// ClearAll drops the script and every cached image, in memory and in the store.
// A generation already in flight still commits its image when it completes.
func (s *Session) ClearAll() {
	s.ledger.Clear()
	s.images.Clear()
	s.log.Info("state cleared")
}

// GenerateImage starts a generation for id. The returned task settles when the
// generator answers. model overrides the configured model when not empty.
func (s *Session) GenerateImage(ctx context.Context, id script.ID, model string) (*coordinator.Task, error) {
	if !s.ledger.Loaded() {
		return nil, ErrNoScript
	}
	return s.coord.RequestWithModel(ctx, id, model)
}

// GeneratePrompt starts a generation for a free-standing prompt. No script is
// needed and the image is not cached.
func (s *Session) GeneratePrompt(ctx context.Context, prompt, model string) (*coordinator.Task, error) {
	return s.coord.RequestPrompt(ctx, prompt, model)
}

// SaveImages forces a save of the image cache and waits for it.
func (s *Session) SaveImages(ctx context.Context) error {
	s.images.Persist()
	return s.w.Flush(ctx)
}

// Image returns the cached image of id.
func (s *Session) Image(id script.ID) (imagecache.ImageRef, bool) { return s.images.Get(id) }

// Images returns a copy of the image cache.
func (s *Session) Images() map[script.ID]imagecache.ImageRef { return s.images.All() }

// EntryView is an entry with its image and generation state.
type EntryView struct {
	ledger.Entry
	Image      *imagecache.ImageRef `json:"image,omitempty"`
	Generating bool                 `json:"generating"`
}

// Entries returns the working list in order.
func (s *Session) Entries() []EntryView {
	entries := s.ledger.Entries()
	st := s.coord.State()
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		v := EntryView{Entry: e, Generating: st.Busy && st.ActiveID == e.Key}
		if ref, ok := s.images.Get(e.Key); ok {
			r := ref
			v.Image = &r
		}
		out = append(out, v)
	}
	return out
}

// GenerationStatus describes the latest settled generation.
type GenerationStatus struct {
	ID     script.ID `json:"id,omitempty"`
	OK     bool      `json:"ok"`
	URL    string    `json:"url,omitempty"`
	Notice string    `json:"notice,omitempty"`
	At     time.Time `json:"at"`
}

// Status is the operator dashboard line.
type Status struct {
	Loaded         bool              `json:"loaded"`
	Title          string            `json:"title,omitempty"`
	Entries        int               `json:"entries"`
	Remaining      int               `json:"remaining"`
	Images         int               `json:"images"`
	Busy           bool              `json:"busy"`
	ActiveID       script.ID         `json:"active_id,omitempty"`
	LastGeneration *GenerationStatus `json:"last_generation,omitempty"`
	PersistError   string            `json:"persist_error,omitempty"`
}

func (s *Session) Status() Status {
	entries := s.ledger.Entries()
	st := s.coord.State()
	out := Status{
		Loaded:    s.ledger.Loaded(),
		Entries:   len(entries),
		Remaining: ledger.Remaining(entries),
		Images:    s.images.Len(),
		Busy:      st.Busy,
		ActiveID:  st.ActiveID,
	}
	if doc, ok := s.ledger.Document(); ok {
		out.Title = doc.Title
	}
	if o, ok := s.coord.LastOutcome(); ok {
		gs := &GenerationStatus{ID: o.ID, OK: o.Err == nil, URL: o.Ref.URL, At: o.At}
		if o.Err != nil {
			gs.Notice = Notice(o.Err)
		}
		out.LastGeneration = gs
	}
	if err := s.w.LastError(); err != nil {
		out.PersistError = Notice(err)
	}
	return out
}

// Flush waits for pending state writes.
func (s *Session) Flush(ctx context.Context) error { return s.w.Flush(ctx) }

// Close flushes pending writes and closes the store.
func (s *Session) Close(ctx context.Context) error {
	ferr := s.w.Flush(ctx)
	werr := s.w.Close()
	serr := s.st.Close()
	return errors.Join(ferr, werr, serr)
}
