/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package coordinator gates image generation so that at most one request is in
// flight process-wide. Concurrent requests are rejected, never queued.
package coordinator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"promptdeck/internal/generator"
	"promptdeck/internal/imagecache"
	applog "promptdeck/internal/log"
	"promptdeck/internal/metrics"
	"promptdeck/internal/script"
)

var (
	ErrBusy         = errors.New("a generation is already running")
	ErrUnknownEntry = errors.New("no entry with a prompt for this id")
	ErrNoImage      = errors.New("generator returned no usable image")
	ErrEmptyPrompt  = generator.ErrEmptyPrompt
	ErrTransport    = generator.ErrTransport
)

// DefaultTimeout bounds one generator call when Config.Timeout is zero.
const DefaultTimeout = 2 * time.Minute

// PromptSource resolves the prompt of an entry. *ledger.Ledger implements it.
type PromptSource interface {
	Prompt(id script.ID) (string, bool)
}

// ImageSink receives successful results. *imagecache.Cache implements it.
type ImageSink interface {
	Put(id script.ID, ref imagecache.ImageRef)
}

// Config wires the coordinator to its collaborators.
type Config struct {
	Generator generator.Generator
	Prompts   PromptSource
	Images    ImageSink
	// Credentials is read at dispatch time so key or model changes apply to the
	// next request.
	Credentials func() (apiKey, model string)
	Timeout     time.Duration
}

// State is a snapshot of the gate.
type State struct {
	Busy     bool      `json:"busy"`
	ActiveID script.ID `json:"active_id,omitempty"`
}

// Outcome records how the latest generation ended.
type Outcome struct {
	ID  script.ID
	Ref imagecache.ImageRef
	Err error
	At  time.Time
}

// Coordinator is the single-flight state machine: Idle, or Busy with one active id.
type Coordinator struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	state State
	last  *Outcome
}

func New(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Credentials == nil {
		cfg.Credentials = func() (string, string) { return "", "" }
	}
	return &Coordinator{cfg: cfg, log: applog.WithComponent("coordinator")}
}

// State returns the current gate state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome returns the result of the most recently settled generation.
func (c *Coordinator) LastOutcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}

// Request starts a generation for id and returns its task. It fails with ErrBusy
// while another generation runs and with ErrUnknownEntry when id has no prompt;
// neither dispatches anything. The generator call is detached from ctx's
// cancellation and bounded by the configured timeout; it cannot be aborted.
func (c *Coordinator) Request(ctx context.Context, id script.ID) (*Task, error) {
	return c.RequestWithModel(ctx, id, "")
}

// RequestWithModel is Request with a model that overrides the configured one for
// this generation only. An empty model keeps the configured one.
func (c *Coordinator) RequestWithModel(ctx context.Context, id script.ID, model string) (*Task, error) {
	return c.start(ctx, id, model, true, func() (string, error) {
		prompt, ok := "", false
		if id != "" {
			prompt, ok = c.cfg.Prompts.Prompt(id)
		}
		if !ok || strings.TrimSpace(prompt) == "" {
			return "", fmt.Errorf("%w: %s", ErrUnknownEntry, id.String())
		}
		return prompt, nil
	})
}

// RequestPrompt generates an image for a prompt that belongs to no entry. It goes
// through the same gate as Request, but the result is only delivered on the task
// and in LastOutcome; the image cache is left alone.
func (c *Coordinator) RequestPrompt(ctx context.Context, prompt, model string) (*Task, error) {
	return c.start(ctx, "", model, false, func() (string, error) {
		if strings.TrimSpace(prompt) == "" {
			return "", ErrEmptyPrompt
		}
		return prompt, nil
	})
}

func (c *Coordinator) start(ctx context.Context, id script.ID, model string, commit bool, resolve func() (string, error)) (*Task, error) {
	c.mu.Lock()
	if c.state.Busy {
		active := c.state.ActiveID
		c.mu.Unlock()
		c.log.Info("generation rejected", slog.String("id", id.String()), slog.String("active", active.String()))
		metrics.GenerationRejected()
		return nil, ErrBusy
	}
	prompt, err := resolve()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.state = State{Busy: true, ActiveID: id}
	c.mu.Unlock()

	apiKey, configured := c.cfg.Credentials()
	if model = strings.TrimSpace(model); model == "" {
		model = configured
	}
	t := newTask(id)
	go c.run(context.WithoutCancel(ctx), t, generator.Request{Prompt: prompt, APIKey: apiKey, Model: model}, commit)
	return t, nil
}

func (c *Coordinator) run(parent context.Context, t *Task, req generator.Request, commit bool) {
	l := applog.WithOperation(c.log, "generate").With(slog.String("id", t.ID.String()), slog.String("model", req.Model))
	start := time.Now()
	var (
		ref imagecache.ImageRef
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: generator panic: %v", ErrTransport, r)
		}
		c.settle(t, ref, err)
		metrics.ObserveGeneration(outcomeLabel(err), time.Since(start))
		if err != nil {
			l.Warn("generation failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
		} else {
			l.Info("generation done", slog.Duration("took", time.Since(start)))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	defer cancel()
	resp, gerr := c.cfg.Generator.Generate(ctx, req)
	if gerr != nil {
		err = classify(gerr)
		return
	}
	ref, err = Pick(resp)
	if err != nil || !commit {
		return
	}
	c.cfg.Images.Put(t.ID, ref)
}

// settle commits the outcome, returns the gate to Idle and then resolves the task,
// so waiters always observe Idle.
func (c *Coordinator) settle(t *Task, ref imagecache.ImageRef, err error) {
	c.mu.Lock()
	c.state = State{}
	c.last = &Outcome{ID: t.ID, Ref: ref, Err: err, At: time.Now()}
	c.mu.Unlock()
	t.resolve(ref, err)
}

func classify(err error) error {
	var ue *generator.UpstreamError
	switch {
	case errors.As(err, &ue):
		return err
	case errors.Is(err, ErrTransport):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

func outcomeLabel(err error) string {
	var ue *generator.UpstreamError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNoImage):
		return metrics.OutcomeNoImage
	case errors.As(err, &ue):
		return metrics.OutcomeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeTransport
	}
}

const pngDataURIPrefix = "data:image/png;base64,"

// Pick chooses the image reference from a response: the first image carrying any
// usable field wins, and within an image a direct URL beats inline data, which beats
// a labeled base64 payload.
func Pick(resp generator.Response) (imagecache.ImageRef, error) {
	for _, img := range resp.Images {
		switch {
		case strings.TrimSpace(img.URL) != "":
			return imagecache.ImageRef{URL: strings.TrimSpace(img.URL)}, nil
		case strings.TrimSpace(img.DataURI) != "":
			return imagecache.ImageRef{URL: strings.TrimSpace(img.DataURI)}, nil
		case len(img.InlineData) > 0:
			return imagecache.ImageRef{URL: pngDataURIPrefix + base64.StdEncoding.EncodeToString(img.InlineData)}, nil
		case strings.TrimSpace(img.Base64) != "":
			b := strings.TrimSpace(img.Base64)
			if strings.HasPrefix(b, "data:") {
				return imagecache.ImageRef{URL: b}, nil
			}
			return imagecache.ImageRef{URL: pngDataURIPrefix + b}, nil
		}
	}
	return imagecache.ImageRef{}, ErrNoImage
}
