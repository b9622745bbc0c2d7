/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package httpapi exposes the operator surface over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"promptdeck/internal/coordinator"
	applog "promptdeck/internal/log"
	"promptdeck/internal/metrics"
	"promptdeck/internal/script"
	"promptdeck/internal/session"
	"promptdeck/internal/store"
	"promptdeck/internal/version"
)

// maxScriptBytes caps the size of an uploaded script.
const maxScriptBytes = 8 << 20

// Service is the part of *session.Session the API needs.
type Service interface {
	LoadScript(ctx context.Context, raw string) (session.LoadResult, error)
	TextSummary() (string, error)
	TitleAndHashtags() (string, error)
	CopyPrompt(id script.ID) (string, error)
	MarkCopied(id script.ID) error
	ResetCopied() error
	RestorePrompts() error
	ClearAll()
	GenerateImage(ctx context.Context, id script.ID, model string) (*coordinator.Task, error)
	GeneratePrompt(ctx context.Context, prompt, model string) (*coordinator.Task, error)
	SaveImages(ctx context.Context) error
	Entries() []session.EntryView
	Status() session.Status
	History(ctx context.Context, limit int) ([]store.HistoryEntry, error)
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc    Service
	log    *slog.Logger
	router chi.Router
}

func New(svc Service) *Server {
	s := &Server{svc: svc, log: applog.WithComponent("httpapi")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/script", s.handleLoad)
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.svc.Status())
		})
		r.Get("/summary", s.handleSummary)
		r.Get("/history", s.handleHistory)
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.svc.Entries())
			})
			r.Post("/reset-copied", s.handleNoBody(s.svc.ResetCopied))
			r.Post("/restore", s.handleNoBody(s.svc.RestorePrompts))
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/copy", s.handleCopy)
				r.Post("/copied", s.handleMark)
				r.Post("/image", s.handleGenerate)
			})
		})
		r.Post("/images", s.handleGeneratePrompt)
		r.Post("/images/save", func(w http.ResponseWriter, r *http.Request) {
			if err := s.svc.SaveImages(r.Context()); err != nil {
				s.writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Delete("/state", func(w http.ResponseWriter, r *http.Request) {
			s.svc.ClearAll()
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error(), Notice: "Script is too large."})
		return
	}
	res, err := s.svc.LoadScript(r.Context(), string(raw))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	txt, err := s.svc.TextSummary()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	th, err := s.svc.TitleAndHashtags()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": txt, "title_hashtags": th})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	type item struct {
		TS   time.Time `json:"ts"`
		Text string    `json:"text"`
	}
	out := make([]item, 0, len(hist))
	for _, h := range hist {
		out = append(out, item{TS: h.TS, Text: h.Text})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNoBody(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.svc.Status())
	}
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	txt, err := s.svc.CopyPrompt(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": txt})
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := s.svc.MarkCopied(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Status())
}

type generateResponse struct {
	ID     script.ID `json:"id,omitempty"`
	Status string    `json:"status"`
	URL    string    `json:"url,omitempty"`
}

// handleGenerate starts a generation for one entry. ?model= overrides the
// configured model for this request.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	task, err := s.svc.GenerateImage(r.Context(), id, r.URL.Query().Get("model"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondTask(w, r, id, task)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// handleGeneratePrompt generates an image for a prompt given in the body. The
// result is returned but not attached to any entry.
func (s *Server) handleGeneratePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScriptBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Notice: "Invalid request body."})
		return
	}
	task, err := s.svc.GeneratePrompt(r.Context(), req.Prompt, req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondTask(w, r, "", task)
}

// respondTask answers 202 right away, or with ?wait=true blocks until the task settles.
func (s *Server) respondTask(w http.ResponseWriter, r *http.Request, id script.ID, task *coordinator.Task) {
	if !isTrue(r.URL.Query().Get("wait")) {
		writeJSON(w, http.StatusAccepted, generateResponse{ID: id, Status: "pending"})
		return
	}
	ref, err := task.Wait(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{ID: id, Status: "done", URL: ref.URL})
}

// entryID reads the {id} segment. The segment carries the ID text: a JSON number,
// a quoted JSON string, or a bare string.
func entryID(w http.ResponseWriter, r *http.Request) (script.ID, bool) {
	raw := chi.URLParam(r, "id")
	s, err := url.PathUnescape(raw)
	if err != nil || s == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid entry id", Notice: "Invalid entry id."})
		return "", false
	}
	return script.ParseID(s), true
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

type errorBody struct {
	Error  string `json:"error"`
	Notice string `json:"notice"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= 500 {
		s.log.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Notice: session.Notice(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request through the application logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", time.Since(start)),
			slog.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
