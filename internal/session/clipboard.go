/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"fmt"
	"io"
	"sync"
)

// Clipboard receives text the operator copies. The real system clipboard lives
// outside this program; adapters decide where the text goes.
type Clipboard interface {
	WriteText(s string) error
}

// DiscardClipboard drops everything.
type DiscardClipboard struct{}

func (DiscardClipboard) WriteText(string) error { return nil }

// WriterClipboard writes each copied text to W followed by a newline.
type WriterClipboard struct {
	mu sync.Mutex
	W  io.Writer
}

func NewWriterClipboard(w io.Writer) *WriterClipboard { return &WriterClipboard{W: w} }

func (c *WriterClipboard) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.W, s); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
