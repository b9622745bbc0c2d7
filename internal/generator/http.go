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
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody caps how much of a response is read; inline images can be large.
const maxBody = 32 << 20

// wireImage is the image object shared by the proxy and the Runware API.
type wireImage struct {
	ImageURL        string `json:"imageURL,omitempty"`
	ImageDataURI    string `json:"imageDataURI,omitempty"`
	ImageBase64Data string `json:"imageBase64Data,omitempty"`
}

func (w wireImage) image() Image {
	return Image{URL: w.ImageURL, DataURI: w.ImageDataURI, Base64: w.ImageBase64Data}
}

// postJSON sends body and returns the raw response when the status is 2xx. A non-2xx
// answer becomes an *UpstreamError built by describe.
func postJSON(ctx context.Context, cli *http.Client, url string, headers map[string]string, body any, describe func(status int, raw []byte) string) ([]byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, transportErr("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, transportErr("send request", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, transportErr("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: describe(resp.StatusCode, raw)}
	}
	return raw, nil
}

// fallbackMessage renders a short excerpt of an unstructured error body.
func fallbackMessage(status int, raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	if s == "" {
		return http.StatusText(status)
	}
	return s
}
