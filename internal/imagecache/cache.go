/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imagecache maps chapter identities to generated image references. Its
// lifecycle is independent from the loaded script: entries survive script reloads
// and clears until the cache itself is cleared.
package imagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "promptdeck/internal/log"
	"promptdeck/internal/script"
	"promptdeck/internal/store"
)

// ImageRef points at generated image data; it never holds the bytes themselves
// unless the generator only returned inline data, in which case URL is a data URI.
type ImageRef struct {
	URL string `json:"url"`
}

// Loader reads a persisted value.
type Loader interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
}

// Persister queues writes without blocking.
type Persister interface {
	Save(key string, value []byte)
	Remove(key string)
}

// loadTimeout bounds the lazy load triggered by the first access.
const loadTimeout = 5 * time.Second

// Cache is an explicitly owned image cache instance. It loads the persisted map
// lazily on first use and persists on every Put.
type Cache struct {
	src Loader
	out Persister
	log *slog.Logger

	mu     sync.Mutex
	loaded bool
	refs   map[script.ID]ImageRef
}

func New(src Loader, out Persister) *Cache {
	return &Cache{src: src, out: out, log: applog.WithComponent("imagecache"), refs: make(map[script.ID]ImageRef)}
}

// Load reads the persisted map unless it was already loaded. A corrupt value is
// reported and the cache starts empty.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	b, ok, err := c.src.Load(ctx, store.KeyImages)
	if err != nil {
		return err
	}
	c.loaded = true
	if !ok {
		return nil
	}
	refs := make(map[script.ID]ImageRef)
	if err := json.Unmarshal(b, &refs); err != nil {
		return fmt.Errorf("decode stored images: %w", err)
	}
	for id, ref := range refs {
		if _, exists := c.refs[id]; !exists {
			c.refs[id] = ref
		}
	}
	c.log.Debug("images restored", slog.Int("count", len(refs)))
	return nil
}

func (c *Cache) ensureLocked() {
	if c.loaded {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if err := c.loadLocked(ctx); err != nil {
		c.log.Warn("lazy load of images failed", slog.Any("err", err))
	}
}

// Get returns the reference stored for id.
func (c *Cache) Get(id script.ID) (ImageRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked()
	ref, ok := c.refs[id]
	return ref, ok
}

// Put stores ref under id, replacing any earlier reference, and persists the map.
func (c *Cache) Put(id script.ID, ref ImageRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked()
	c.refs[id] = ref
	c.persistLocked()
}

// Persist queues a save of the current map.
func (c *Cache) Persist() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked()
	c.persistLocked()
}

// Clear drops every reference and removes the persisted map.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = make(map[script.ID]ImageRef)
	c.loaded = true
	c.out.Remove(store.KeyImages)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked()
	return len(c.refs)
}

// All returns a copy of the map.
func (c *Cache) All() map[script.ID]ImageRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked()
	out := make(map[script.ID]ImageRef, len(c.refs))
	for k, v := range c.refs {
		out[k] = v
	}
	return out
}

func (c *Cache) persistLocked() {
	b, err := json.Marshal(c.refs)
	if err != nil {
		c.log.Error("encode images failed", slog.Any("err", err))
		return
	}
	c.out.Save(store.KeyImages, b)
}
