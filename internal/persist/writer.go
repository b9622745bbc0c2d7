/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package persist runs best-effort, fire-and-forget saves against a store.Store on a
// single background goroutine. A failed write is reported and remembered; it never
// unwinds the in-memory change that triggered it.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	applog "promptdeck/internal/log"
	"promptdeck/internal/store"
)

// DefaultOpTimeout bounds a single store call.
const DefaultOpTimeout = 10 * time.Second

var ErrClosed = errors.New("persist writer closed")

type op struct {
	seq    uint64
	value  []byte
	remove bool
}

// Writer serializes store writes. Pending writes to the same key coalesce: only the
// latest value (or removal) is written.
type Writer struct {
	st        store.Store
	log       *slog.Logger
	opTimeout time.Duration

	mu       sync.Mutex
	onError  func(key string, err error)
	pending  map[string]op
	order    []string
	queued   uint64
	done     uint64
	errCount uint64
	lastErr  error
	closed   bool

	wake   chan struct{}
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// New starts a writer for st.
func New(st store.Store) *Writer {
	w := &Writer{
		st:        st,
		log:       applog.WithComponent("persist"),
		opTimeout: DefaultOpTimeout,
		pending:   make(map[string]op),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// OnError installs a hook called for every failed write. It runs on the writer
// goroutine, or on the caller's goroutine for writes rejected after Close.
func (w *Writer) OnError(fn func(key string, err error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

// Save queues value under key and returns immediately. The slice is copied.
func (w *Writer) Save(key string, value []byte) {
	w.enqueue(key, op{value: append([]byte(nil), value...)})
}

// Remove queues the removal of key and returns immediately.
func (w *Writer) Remove(key string) {
	w.enqueue(key, op{remove: true})
}

func (w *Writer) enqueue(key string, o op) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.fail(key, ErrClosed)
		return
	}
	w.queued++
	o.seq = w.queued
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = o
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// LastError returns the most recent write failure, or nil if none happened.
func (w *Writer) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Flush waits until every write queued before the call has been attempted. It
// returns the latest failure among those writes, or ctx's error on timeout.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.queued
	mark := w.errCount
	w.mu.Unlock()
	for {
		w.mu.Lock()
		reached := w.done >= target
		var err error
		if reached && w.errCount > mark {
			err = w.lastErr
		}
		w.mu.Unlock()
		if reached {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.exited:
			return ErrClosed
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Close writes whatever is still pending and stops the goroutine. Saves issued
// after Close fail with ErrClosed.
func (w *Writer) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		mark := w.errCount
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
		<-w.exited
		w.mu.Lock()
		if w.errCount > mark {
			err = w.lastErr
		}
		w.mu.Unlock()
	})
	return err
}

func (w *Writer) loop() {
	defer close(w.exited)
	for {
		select {
		case <-w.stop:
			w.drain()
			return
		case <-w.wake:
			w.drain()
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			w.mu.Unlock()
			return
		}
		keys := w.order
		batch := w.pending
		w.order = nil
		w.pending = make(map[string]op)
		w.mu.Unlock()

		var maxSeq uint64
		for _, k := range keys {
			o := batch[k]
			w.apply(k, o)
			if o.seq > maxSeq {
				maxSeq = o.seq
			}
		}
		w.mu.Lock()
		if maxSeq > w.done {
			w.done = maxSeq
		}
		w.mu.Unlock()
	}
}

func (w *Writer) apply(key string, o op) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	defer cancel()
	var err error
	if o.remove {
		err = w.st.Remove(ctx, key)
	} else {
		err = w.st.Save(ctx, key, o.value)
	}
	if err != nil {
		w.fail(key, err)
		return
	}
	w.log.Debug("persisted", slog.String("key", key), slog.Bool("remove", o.remove), slog.Int("bytes", len(o.value)))
}

func (w *Writer) fail(key string, err error) {
	w.mu.Lock()
	w.errCount++
	w.lastErr = err
	hook := w.onError
	w.mu.Unlock()
	w.log.Warn("persist failed", slog.String("key", key), slog.Any("err", err))
	if hook != nil {
		hook(key, err)
	}
}
