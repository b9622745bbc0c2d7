/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package imagecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promptdeck/internal/script"
	"promptdeck/internal/store"
)

type memPersister struct{ st *store.MemStore }

func (p memPersister) Save(key string, value []byte) { _ = p.st.Save(context.Background(), key, value) }
func (p memPersister) Remove(key string)             { _ = p.st.Remove(context.Background(), key) }

func TestPutGetOverwrites(t *testing.T) {
	st := store.NewMemStore()
	c := New(st, memPersister{st})
	c.Put("1", ImageRef{URL: "https://x/a.png"})
	if ref, ok := c.Get("1"); !ok || ref.URL != "https://x/a.png" {
		t.Fatalf("get = %+v ok=%v", ref, ok)
	}
	c.Put("1", ImageRef{URL: "https://x/b.png"})
	if ref, _ := c.Get("1"); ref.URL != "https://x/b.png" {
		t.Fatalf("overwrite failed: %+v", ref)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestPersistAndLazyLoad(t *testing.T) {
	st := store.NewMemStore()
	c := New(st, memPersister{st})
	c.Put("1", ImageRef{URL: "u1"})
	c.Put(`"1"`, ImageRef{URL: "u-string"})

	c2 := New(st, memPersister{st})
	if ref, ok := c2.Get("1"); !ok || ref.URL != "u1" {
		t.Fatalf("lazy load: %+v ok=%v", ref, ok)
	}
	if ref, ok := c2.Get(`"1"`); !ok || ref.URL != "u-string" {
		t.Fatalf("string id lost: %+v ok=%v", ref, ok)
	}
	all := c2.All()
	if len(all) != 2 {
		t.Fatalf("all = %v", all)
	}
	all["1"] = ImageRef{URL: "mutated"}
	if ref, _ := c2.Get("1"); ref.URL != "u1" {
		t.Fatal("All returned a shared map")
	}
}

func TestClearIsIndependent(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()
	_ = st.Save(ctx, store.KeyScript, []byte(`{"chapitres":[]}`))
	c := New(st, memPersister{st})
	c.Put(script.ID("1"), ImageRef{URL: "u"})
	c.Clear()
	if c.Len() != 0 {
		t.Fatal("cache not cleared")
	}
	if _, ok, _ := st.Load(ctx, store.KeyImages); ok {
		t.Fatal("images key still stored")
	}
	if _, ok, _ := st.Load(ctx, store.KeyScript); !ok {
		t.Fatal("clearing images touched the script key")
	}
}

func TestLoadCorruptValue(t *testing.T) {
	st := store.NewMemStore()
	_ = st.Save(context.Background(), store.KeyImages, []byte(`not json`))
	c := New(st, memPersister{st})
	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	if c.Len() != 0 {
		t.Fatal("corrupt value must leave the cache empty")
	}
	c.Put("2", ImageRef{URL: "u"})
	if ref, ok := c.Get("2"); !ok || ref.URL != "u" {
		t.Fatal("cache unusable after corrupt load")
	}
}

type failingLoader struct{}

func (failingLoader) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, &store.StoreError{Op: "load", Key: store.KeyImages, Err: errors.New("io")}
}

func TestLoadErrorIsReturned(t *testing.T) {
	c := New(failingLoader{}, memPersister{store.NewMemStore()})
	var se *store.StoreError
	if err := c.Load(context.Background()); !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

// gatedPersister records the order of writes and holds Remove until released.
type gatedPersister struct {
	mu      sync.Mutex
	ops     []string
	removed chan struct{}
	saved   chan struct{}
	release chan struct{}
}

func (p *gatedPersister) Save(string, []byte) {
	p.mu.Lock()
	p.ops = append(p.ops, "save")
	p.mu.Unlock()
	select {
	case p.saved <- struct{}{}:
	default:
	}
}

func (p *gatedPersister) Remove(string) {
	p.mu.Lock()
	p.ops = append(p.ops, "remove")
	p.mu.Unlock()
	close(p.removed)
	<-p.release
}

func TestClearRemovesBeforeConcurrentPutSaves(t *testing.T) {
	p := &gatedPersister{removed: make(chan struct{}), saved: make(chan struct{}, 1), release: make(chan struct{})}
	c := New(store.NewMemStore(), p)

	cleared := make(chan struct{})
	go func() {
		c.Clear()
		close(cleared)
	}()
	<-p.removed

	put := make(chan struct{})
	go func() {
		c.Put(script.PositionID(1), ImageRef{URL: "https://x/1.png"})
		close(put)
	}()
	select {
	case <-p.saved:
		t.Fatal("put persisted while clear was still removing")
	case <-time.After(50 * time.Millisecond):
	}
	close(p.release)
	<-cleared
	<-put

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ops) != 2 || p.ops[0] != "remove" || p.ops[1] != "save" {
		t.Fatalf("write order = %v", p.ops)
	}
	if _, ok := c.Get(script.PositionID(1)); !ok {
		t.Fatal("put after clear lost")
	}
}
