/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Document is a parsed script: a title, ordered chapters and hashtags.
// The JSON shape is the authoring format: {"titre", "chapitres": [{"id", "texte", "prompt"}], "hashtags"}.
// Copied is only present in the persisted form, where it records per-chapter copy progress.
type Document struct {
	Title    string    `json:"titre,omitempty"`
	Chapters []Chapter `json:"chapitres"`
	Hashtags *Hashtags `json:"hashtags,omitempty"`
}

// Chapter is one narrated step with its image prompt.
type Chapter struct {
	ID     ID     `json:"id"`
	Text   string `json:"texte,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Copied bool   `json:"copied,omitempty"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{Title: d.Title}
	if d.Chapters != nil {
		out.Chapters = append([]Chapter(nil), d.Chapters...)
	}
	if d.Hashtags != nil {
		h := *d.Hashtags
		h.Tags = append([]string(nil), d.Hashtags.Tags...)
		out.Hashtags = &h
	}
	return out
}

// ID is a caller-supplied chapter identity, kept opaque: it holds the compact
// JSON token of the "id" value, so 1 and "1" are different identities.
// The zero value means the chapter carried no id.
type ID string

// PositionID addresses the n-th entry (1-based) of a script. It stands in for
// chapters that carry no id; no JSON token starts with '@', so it cannot
// collide with an authored id.
func PositionID(n int) ID { return ID("@" + strconv.Itoa(n)) }

// Positional reports whether id was made by PositionID.
func (id ID) Positional() bool {
	if len(id) < 2 || id[0] != '@' {
		return false
	}
	_, err := strconv.ParseUint(string(id[1:]), 10, 32)
	return err == nil
}

// ParseID converts operator input (CLI argument, URL segment) into an ID.
// Input that is a JSON number, a quoted JSON string or a position ("@3") is
// taken as is; anything else is treated as a bare string.
func ParseID(s string) ID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if ID(s).Positional() {
		return ID(s)
	}
	if (s[0] == '"' || s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) && json.Valid([]byte(s)) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(s)); err == nil {
			return ID(buf.String())
		}
	}
	return ID(strconv.Quote(s))
}

// String renders the ID for display: strings are unquoted, numbers kept verbatim.
func (id ID) String() string {
	if id == "" {
		return ""
	}
	if id[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(id), &s); err == nil {
			return s
		}
	}
	return string(id)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if id.Positional() {
		return json.Marshal(string(id))
	}
	return []byte(id), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	if buf.String() == "null" {
		*id = ""
		return nil
	}
	*id = ID(buf.String())
	return nil
}

// MarshalText lets IDs key JSON objects (the image cache map).
func (id ID) MarshalText() ([]byte, error) { return []byte(id), nil }

func (id *ID) UnmarshalText(b []byte) error {
	*id = ID(b)
	return nil
}

// Hashtags keeps the shape it was authored in: a single string or a list.
type Hashtags struct {
	Tags []string
	Text string
	List bool
}

// Join renders the hashtags on one line; list items are separated by a space.
func (h *Hashtags) Join() string {
	if h == nil {
		return ""
	}
	if h.List {
		return strings.Join(h.Tags, " ")
	}
	return h.Text
}

func (h Hashtags) MarshalJSON() ([]byte, error) {
	if h.List {
		tags := h.Tags
		if tags == nil {
			tags = []string{}
		}
		return json.Marshal(tags)
	}
	return json.Marshal(h.Text)
}

// UnmarshalJSON never rejects a value: list items and scalars that are not
// strings are kept as their JSON text.
func (h *Hashtags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		tags := make([]string, 0, len(items))
		for _, it := range items {
			tags = append(tags, looseString(it))
		}
		*h = Hashtags{Tags: tags, List: true}
		return nil
	}
	*h = Hashtags{Text: looseString(b)}
	return nil
}

// looseString decodes a JSON string, or returns any other non-null token as
// its compact text.
func looseString(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil || buf.String() == "null" {
		return ""
	}
	return buf.String()
}
