/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	applog "promptdeck/internal/log"
)

// ProxyClient talks to an image proxy exposing POST {prompt, apiKey, model} and
// answering {"data": [image...]} or a bare array of images.
type ProxyClient struct {
	URL    string
	client *http.Client
	log    *slog.Logger
}

func NewProxyClient(url string, timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ProxyClient{
		URL:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		log:    applog.WithComponent("generator").With(slog.String("kind", "proxy")),
	}
}

type proxyRequest struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"apiKey,omitempty"`
	Model  string `json:"model,omitempty"`
}

type proxyError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (c *ProxyClient) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	start := time.Now()
	raw, err := postJSON(ctx, c.client, c.URL, nil,
		proxyRequest{Prompt: req.Prompt, APIKey: req.APIKey, Model: req.Model},
		describeProxyError)
	if err != nil {
		c.log.Warn("generate failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
		return Response{}, err
	}
	images, err := decodeProxyImages(raw)
	if err != nil {
		return Response{}, transportErr("decode response", err)
	}
	c.log.Debug("generate done", slog.Int("images", len(images)), slog.Duration("took", time.Since(start)))
	return Response{Images: images}, nil
}

func decodeProxyImages(raw []byte) ([]Image, error) {
	trimmed := bytes.TrimSpace(raw)
	var list []wireImage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
	} else {
		var env struct {
			Data []wireImage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		list = env.Data
	}
	out := make([]Image, 0, len(list))
	for _, w := range list {
		out = append(out, w.image())
	}
	return out, nil
}

func describeProxyError(status int, raw []byte) string {
	var pe proxyError
	if err := json.Unmarshal(raw, &pe); err == nil && (pe.Error != "" || pe.Details != "") {
		switch {
		case pe.Error != "" && pe.Details != "":
			return pe.Error + ": " + pe.Details
		case pe.Error != "":
			return pe.Error
		default:
			return pe.Details
		}
	}
	return fallbackMessage(status, raw)
}
