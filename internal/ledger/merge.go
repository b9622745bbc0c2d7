/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ledger derives the working list of chapter entries from a script and
// tracks which prompts the operator has already copied.
package ledger

import "promptdeck/internal/script"

// Entry is the working record for one chapter that has a prompt. ID is the
// chapter's own id and may be empty; Key addresses the entry and falls back to
// the entry's position for chapters without an id.
type Entry struct {
	ID     script.ID `json:"id"`
	Key    script.ID `json:"key"`
	Prompt string    `json:"prompt"`
	Text   string    `json:"text,omitempty"`
	Copied bool      `json:"copied"`
}

// Merge builds the entry list of newDoc in chapter order. Chapters without a prompt
// are skipped. An entry starts copied only when prior holds a chapter with the same
// non-empty ID whose copied flag is set.
func Merge(newDoc script.Document, prior *script.Document) []Entry {
	copied := make(map[script.ID]bool)
	if prior != nil {
		for _, ch := range prior.Chapters {
			if ch.ID != "" && ch.Copied {
				copied[ch.ID] = true
			}
		}
	}
	out := make([]Entry, 0, len(newDoc.Chapters))
	for _, ch := range newDoc.Chapters {
		if ch.Prompt == "" {
			continue
		}
		out = append(out, Entry{
			ID:     ch.ID,
			Key:    entryKey(ch.ID, len(out)+1),
			Prompt: ch.Prompt,
			Text:   ch.Text,
			Copied: ch.ID != "" && copied[ch.ID],
		})
	}
	return out
}

// fromDocument rebuilds the entry list of a persisted document, taking each
// chapter's copied flag as stored.
func fromDocument(doc script.Document) []Entry {
	out := make([]Entry, 0, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		if ch.Prompt == "" {
			continue
		}
		out = append(out, Entry{
			ID:     ch.ID,
			Key:    entryKey(ch.ID, len(out)+1),
			Prompt: ch.Prompt,
			Text:   ch.Text,
			Copied: ch.Copied,
		})
	}
	return out
}

func entryKey(id script.ID, pos int) script.ID {
	if id != "" {
		return id
	}
	return script.PositionID(pos)
}

// MarkCopied returns a copy of entries with every entry whose key is id marked
// copied. Applying it twice has the same effect as once.
func MarkCopied(entries []Entry, id script.ID) []Entry {
	out := clone(entries)
	if id == "" {
		return out
	}
	for i := range out {
		if out[i].Key == id {
			out[i].Copied = true
		}
	}
	return out
}

// ResetAll returns a copy of entries with every copied flag cleared.
func ResetAll(entries []Entry) []Entry {
	out := clone(entries)
	for i := range out {
		out[i].Copied = false
	}
	return out
}

// Remaining counts the entries not yet copied.
func Remaining(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if !e.Copied {
			n++
		}
	}
	return n
}

// overlay returns doc with each chapter's copied flag taken from entries. entries
// must have been derived from doc: the k-th entry belongs to the k-th chapter
// with a prompt.
func overlay(doc script.Document, entries []Entry) script.Document {
	out := doc.Clone()
	k := 0
	for i := range out.Chapters {
		ch := &out.Chapters[i]
		ch.Copied = false
		if ch.Prompt == "" {
			continue
		}
		if k < len(entries) {
			ch.Copied = entries[k].Copied
		}
		k++
	}
	return out
}

func clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	return append([]Entry(nil), entries...)
}
