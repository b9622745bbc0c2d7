/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"promptdeck/internal/generator"
	"promptdeck/internal/session"
	"promptdeck/internal/store"
)

const sample = `{"titre":"Ep1","chapitres":[{"id":1,"texte":"Hello","prompt":"a cat"},{"id":"intro","prompt":"a dog"}],"hashtags":["#x"]}`

type gen struct {
	release chan struct{}
	resp    generator.Response
	err     error
}

func (g *gen) Generate(ctx context.Context, _ generator.Request) (generator.Response, error) {
	if g.release != nil {
		<-g.release
	}
	return g.resp, g.err
}

func newTestServer(t *testing.T, g generator.Generator) *httptest.Server {
	t.Helper()
	sess, err := session.Open(context.Background(), session.Options{Store: store.NewMemStore(), Generator: g})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	srv := httptest.NewServer(New(sess).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = sess.Close(context.Background())
	})
	return srv
}

func do(t *testing.T, method, u, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, u, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestLoadAndSummary(t *testing.T) {
	srv := newTestServer(t, &gen{})
	code, body := do(t, http.MethodGet, srv.URL+"/api/summary", "")
	if code != http.StatusConflict || body["notice"] != "Load a script first." {
		t.Fatalf("summary before load: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/script", `{"titre":`)
	if code != http.StatusBadRequest || !strings.HasPrefix(body["notice"].(string), "Invalid JSON") {
		t.Fatalf("bad script: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/script", sample)
	if code != http.StatusOK || body["entries"].(float64) != 2 {
		t.Fatalf("load: %d %v", code, body)
	}
	code, body = do(t, http.MethodGet, srv.URL+"/api/summary", "")
	if code != http.StatusOK || body["text"] != "Hello" || body["title_hashtags"] != "Ep1\n#x" {
		t.Fatalf("summary: %d %v", code, body)
	}
}

func TestCopyMarkAndEntries(t *testing.T) {
	srv := newTestServer(t, &gen{})
	do(t, http.MethodPost, srv.URL+"/api/script", sample)

	code, body := do(t, http.MethodPost, srv.URL+"/api/entries/intro/copy", "")
	if code != http.StatusOK || body["text"] != "a dog" {
		t.Fatalf("copy: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/"+url.PathEscape(`"1"`)+"/copied", "")
	if code != http.StatusNotFound {
		t.Fatalf("string id must not match numeric id: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/1/copied", "")
	if code != http.StatusOK || body["remaining"].(float64) != 0 {
		t.Fatalf("mark: %d %v", code, body)
	}

	resp, err := http.Get(srv.URL + "/api/entries")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	var entries []session.EntryView
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	_ = resp.Body.Close()
	if len(entries) != 2 || !entries[0].Copied || !entries[1].Copied {
		t.Fatalf("entries: %+v", entries)
	}

	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/reset-copied", "")
	if code != http.StatusOK || body["remaining"].(float64) != 2 {
		t.Fatalf("reset: %d %v", code, body)
	}
	code, _ = do(t, http.MethodPost, srv.URL+"/api/entries/restore", "")
	if code != http.StatusOK {
		t.Fatalf("restore: %d", code)
	}
}

func TestGenerateWaitAndBusy(t *testing.T) {
	g := &gen{release: make(chan struct{}), resp: generator.Response{Images: []generator.Image{{URL: "https://x/y.png"}}}}
	srv := newTestServer(t, g)
	do(t, http.MethodPost, srv.URL+"/api/script", sample)

	code, body := do(t, http.MethodPost, srv.URL+"/api/entries/1/image", "")
	if code != http.StatusAccepted || body["status"] != "pending" {
		t.Fatalf("generate: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/intro/image", "")
	if code != http.StatusConflict || body["notice"] != "A generation is already running." {
		t.Fatalf("busy: %d %v", code, body)
	}
	close(g.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, st := do(t, http.MethodGet, srv.URL+"/api/status", "")
		if st["busy"] == false {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("generation did not settle")
		}
		time.Sleep(10 * time.Millisecond)
	}

	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/intro/image?wait=1", "")
	if code != http.StatusOK || body["url"] != "https://x/y.png" {
		t.Fatalf("generate wait: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/nope/image", "")
	if code != http.StatusNotFound {
		t.Fatalf("unknown entry: %d %v", code, body)
	}
}

func TestGenerateNoImage(t *testing.T) {
	srv := newTestServer(t, &gen{resp: generator.Response{}})
	do(t, http.MethodPost, srv.URL+"/api/script", sample)
	code, body := do(t, http.MethodPost, srv.URL+"/api/entries/1/image?wait=true", "")
	if code != http.StatusBadGateway || body["notice"] != "The generator returned no image." {
		t.Fatalf("no image: %d %v", code, body)
	}
}

func TestClearStateAndHealth(t *testing.T) {
	srv := newTestServer(t, &gen{})
	do(t, http.MethodPost, srv.URL+"/api/script", sample)
	code, _ := do(t, http.MethodDelete, srv.URL+"/api/state", "")
	if code != http.StatusNoContent {
		t.Fatalf("clear: %d", code)
	}
	_, st := do(t, http.MethodGet, srv.URL+"/api/status", "")
	if st["loaded"] != false {
		t.Fatalf("status after clear: %v", st)
	}
	code, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", code, body)
	}
	code, body = do(t, http.MethodGet, srv.URL+"/version", "")
	if code != http.StatusOK || body["version"] == "" {
		t.Fatalf("version: %d %v", code, body)
	}
	code, _ = do(t, http.MethodGet, srv.URL+"/api/history", "")
	if code != http.StatusNotImplemented {
		t.Fatalf("history on memory store: %d", code)
	}
	code, _ = do(t, http.MethodPost, srv.URL+"/api/images/save", "")
	if code != http.StatusNoContent {
		t.Fatalf("save images: %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &gen{})
	do(t, http.MethodPost, srv.URL+"/api/script", sample)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "promptdeck_script_loads_total") {
		t.Fatalf("metrics: %d %s", resp.StatusCode, raw)
	}
}

type recordingGen struct {
	mu   sync.Mutex
	reqs []generator.Request
}

func (g *recordingGen) Generate(_ context.Context, req generator.Request) (generator.Response, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	return generator.Response{Images: []generator.Image{{URL: "https://x/free.png"}}}, nil
}

func TestGenerateFreePromptWithModel(t *testing.T) {
	g := &recordingGen{}
	srv := newTestServer(t, g)

	code, body := do(t, http.MethodPost, srv.URL+"/api/images", `{"prompt":"  "}`)
	if code != http.StatusUnprocessableEntity || body["notice"] != "Enter a prompt first." {
		t.Fatalf("blank prompt: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/images", `{"prompt":`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad body: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/images?wait=true", `{"prompt":"a red fox","model":"custom:1"}`)
	if code != http.StatusOK || body["url"] != "https://x/free.png" {
		t.Fatalf("free prompt: %d %v", code, body)
	}
	if _, ok := body["id"]; ok {
		t.Fatalf("free prompt reported an entry id: %v", body)
	}
	_, st := do(t, http.MethodGet, srv.URL+"/api/status", "")
	if st["images"].(float64) != 0 {
		t.Fatalf("free prompt cached an image: %v", st)
	}

	do(t, http.MethodPost, srv.URL+"/api/script", sample)
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/1/image?wait=true&model=other:2", "")
	if code != http.StatusOK {
		t.Fatalf("entry with model: %d %v", code, body)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.reqs) != 2 || g.reqs[0].Model != "custom:1" || g.reqs[0].Prompt != "a red fox" || g.reqs[1].Model != "other:2" {
		t.Fatalf("requests = %+v", g.reqs)
	}
}

func TestIDLessEntryByPosition(t *testing.T) {
	srv := newTestServer(t, &gen{resp: generator.Response{Images: []generator.Image{{URL: "https://x/anon.png"}}}})
	do(t, http.MethodPost, srv.URL+"/api/script", `{"chapitres":[{"texte":"t","prompt":"a cat"}]}`)

	code, body := do(t, http.MethodPost, srv.URL+"/api/entries/@1/copy", "")
	if code != http.StatusOK || body["text"] != "a cat" {
		t.Fatalf("copy: %d %v", code, body)
	}
	code, body = do(t, http.MethodPost, srv.URL+"/api/entries/@1/image?wait=true", "")
	if code != http.StatusOK || body["id"] != "@1" || body["url"] != "https://x/anon.png" {
		t.Fatalf("generate: %d %v", code, body)
	}
}

func TestStatusForTimeout(t *testing.T) {
	err := fmt.Errorf("%w: send request: %w", generator.ErrTransport, context.DeadlineExceeded)
	if got := StatusFor(err); got != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", got)
	}
	if got := session.Notice(err); got != "The image generator did not answer in time." {
		t.Fatalf("notice = %q", got)
	}
}
