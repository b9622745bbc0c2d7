/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package generator holds the image-generation contract and its HTTP adapters.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"promptdeck/internal/config"
)

// Request asks for one image for Prompt. Empty APIKey or Model fall back to the
// adapter's defaults.
type Request struct {
	Prompt string
	APIKey string
	Model  string
}

// Image is one generated result. Any subset of the fields may be set.
type Image struct {
	URL        string
	DataURI    string
	InlineData []byte
	Base64     string
}

// Response carries the generated images, normally one.
type Response struct {
	Images []Image
}

// Generator produces images from prompts.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

var (
	// ErrTransport marks failures to reach the generator or to read its answer.
	ErrTransport = errors.New("generator transport failure")
	// ErrNoAPIKey is returned by adapters that cannot run without a key.
	ErrNoAPIKey = errors.New("no generator api key configured")
	// ErrEmptyPrompt rejects requests without a prompt.
	ErrEmptyPrompt = errors.New("empty prompt")
)

// UpstreamError is a non-success answer from the generator service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generator returned status %d", e.Status)
	}
	return fmt.Sprintf("generator returned status %d: %s", e.Status, e.Message)
}

// transportErr keeps the cause in the chain; client-side timeouts additionally
// match context.DeadlineExceeded.
func transportErr(op string, err error) error {
	var ne net.Error
	if !errors.Is(err, context.DeadlineExceeded) && errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %w (%w)", ErrTransport, op, err, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// New builds the adapter selected by cfg.Kind.
func New(cfg config.GeneratorConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case config.GeneratorProxy:
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("proxy generator requires a url")
		}
		return NewProxyClient(cfg.URL, cfg.Timeout()), nil
	case config.GeneratorRunware, "":
		c := NewRunwareClient(cfg.URL, cfg.Timeout())
		if cfg.Width > 0 {
			c.Width = cfg.Width
		}
		if cfg.Height > 0 {
			c.Height = cfg.Height
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown generator kind %q", cfg.Kind)
	}
}
