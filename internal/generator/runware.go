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
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptdeck/internal/config"
	applog "promptdeck/internal/log"
)

// DefaultRunwareURL is the Runware REST task endpoint.
const DefaultRunwareURL = "https://api.runware.ai/v1"

// RunwareClient calls the Runware task API directly: an authentication task followed
// by one imageInference task in the same request.
type RunwareClient struct {
	URL    string
	Width  int
	Height int
	client *http.Client
	log    *slog.Logger
	// newTaskID is swappable in tests.
	newTaskID func() string
}

func NewRunwareClient(url string, timeout time.Duration) *RunwareClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultRunwareURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RunwareClient{
		URL:       strings.TrimSpace(url),
		Width:     768,
		Height:    1344,
		client:    &http.Client{Timeout: timeout},
		log:       applog.WithComponent("generator").With(slog.String("kind", "runware")),
		newTaskID: func() string { return uuid.NewString() },
	}
}

type runwareAuthTask struct {
	TaskType string `json:"taskType"`
	APIKey   string `json:"apiKey"`
}

type runwareInferenceTask struct {
	TaskType       string   `json:"taskType"`
	TaskUUID       string   `json:"taskUUID"`
	PositivePrompt string   `json:"positivePrompt"`
	Model          string   `json:"model"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	NumberResults  int      `json:"numberResults"`
	OutputFormat   string   `json:"outputFormat"`
	OutputType     []string `json:"outputType"`
}

type runwareResult struct {
	TaskType string `json:"taskType"`
	TaskUUID string `json:"taskUUID"`
	wireImage
}

type runwareEnvelope struct {
	Data   []runwareResult `json:"data"`
	Errors []runwareError  `json:"errors"`
}

type runwareError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	TaskUUID string `json:"taskUUID"`
}

func (c *RunwareClient) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return Response{}, ErrNoAPIKey
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = config.DefaultModel
	}
	taskID := c.newTaskID()
	tasks := []any{
		runwareAuthTask{TaskType: "authentication", APIKey: key},
		runwareInferenceTask{
			TaskType:       "imageInference",
			TaskUUID:       taskID,
			PositivePrompt: req.Prompt,
			Model:          model,
			Width:          c.Width,
			Height:         c.Height,
			NumberResults:  1,
			OutputFormat:   "PNG",
			OutputType:     []string{"URL"},
		},
	}
	l := c.log.With(slog.String("task", taskID), slog.String("model", model))
	start := time.Now()
	raw, err := postJSON(ctx, c.client, c.URL, nil, tasks, describeRunwareError)
	if err != nil {
		l.Warn("generate failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
		return Response{}, err
	}
	var env runwareEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{}, transportErr("decode response", err)
	}
	if len(env.Errors) > 0 {
		return Response{}, &UpstreamError{Status: http.StatusBadGateway, Message: joinRunwareErrors(env.Errors)}
	}
	var images []Image
	for _, r := range env.Data {
		if r.TaskType != "imageInference" {
			continue
		}
		if r.TaskUUID != "" && r.TaskUUID != taskID {
			continue
		}
		images = append(images, r.image())
	}
	l.Debug("generate done", slog.Int("images", len(images)), slog.Duration("took", time.Since(start)))
	return Response{Images: images}, nil
}

func describeRunwareError(status int, raw []byte) string {
	var env runwareEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Errors) > 0 {
		return joinRunwareErrors(env.Errors)
	}
	return fallbackMessage(status, raw)
}

func joinRunwareErrors(errs []runwareError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch {
		case e.Code != "" && e.Message != "":
			msgs = append(msgs, e.Code+": "+e.Message)
		case e.Message != "":
			msgs = append(msgs, e.Message)
		default:
			msgs = append(msgs, e.Code)
		}
	}
	return strings.Join(msgs, "; ")
}
