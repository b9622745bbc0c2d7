/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ledger

import (
	"reflect"
	"testing"

	"promptdeck/internal/script"
)

func doc(chs ...script.Chapter) script.Document { return script.Document{Chapters: chs} }

func TestMergeWithoutPrior(t *testing.T) {
	d := doc(
		script.Chapter{ID: "1", Prompt: "a", Text: "ta"},
		script.Chapter{ID: "2", Text: "no prompt"},
		script.Chapter{ID: "3", Prompt: "c", Copied: true},
	)
	got := Merge(d, nil)
	want := []Entry{
		{ID: "1", Key: "1", Prompt: "a", Text: "ta"},
		{ID: "3", Key: "3", Prompt: "c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merge = %+v, want %+v", got, want)
	}
}

func TestMergeCarriesCopiedByID(t *testing.T) {
	prior := doc(
		script.Chapter{ID: "1", Prompt: "old", Copied: true},
		script.Chapter{ID: `"2"`, Prompt: "x", Copied: true},
		script.Chapter{ID: "", Prompt: "anon", Copied: true},
	)
	next := doc(
		script.Chapter{ID: "3", Prompt: "new"},
		script.Chapter{ID: "1", Prompt: "changed"},
		script.Chapter{ID: "2", Prompt: "numeric two"},
		script.Chapter{ID: "", Prompt: "anon"},
	)
	got := Merge(next, &prior)
	if len(got) != 4 {
		t.Fatalf("entries = %d", len(got))
	}
	if got[0].ID != "3" || got[1].ID != "1" || got[2].ID != "2" {
		t.Fatalf("order not preserved: %+v", got)
	}
	if got[0].Copied || !got[1].Copied || got[2].Copied || got[3].Copied {
		t.Fatalf("unexpected copied flags: %+v", got)
	}
	if got[3].Key != script.PositionID(4) {
		t.Fatalf("id-less entry key = %q", got[3].Key)
	}
	if got[1].Prompt != "changed" {
		t.Fatalf("prompt must come from the new document: %q", got[1].Prompt)
	}
}

func TestMarkCopiedIdempotentAndPure(t *testing.T) {
	in := []Entry{{ID: "1", Key: "1", Prompt: "a"}, {ID: "2", Key: "2", Prompt: "b", Text: "t"}}
	once := MarkCopied(in, "2")
	twice := MarkCopied(once, "2")
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent: %+v vs %+v", once, twice)
	}
	if in[1].Copied {
		t.Fatal("input mutated")
	}
	if !once[1].Copied || once[0].Copied {
		t.Fatalf("unexpected flags: %+v", once)
	}
	if once[1].Prompt != "b" || once[1].Text != "t" || once[1].ID != "2" {
		t.Fatalf("only copied may change: %+v", once[1])
	}
	if got := MarkCopied(in, ""); !reflect.DeepEqual(got, in) {
		t.Fatalf("empty id must not match: %+v", got)
	}
}

func TestResetAllTwiceEqualsOnce(t *testing.T) {
	in := []Entry{{ID: "1", Prompt: "a", Copied: true}, {ID: "2", Prompt: "b"}}
	once := ResetAll(in)
	if !reflect.DeepEqual(once, ResetAll(once)) {
		t.Fatal("resetAll not idempotent")
	}
	if Remaining(once) != 2 || Remaining(in) != 1 {
		t.Fatalf("remaining: once=%d in=%d", Remaining(once), Remaining(in))
	}
	if !in[0].Copied {
		t.Fatal("input mutated")
	}
}

func TestOverlaySetsChapterFlags(t *testing.T) {
	d := doc(
		script.Chapter{ID: "1", Prompt: "a"},
		script.Chapter{ID: "2", Text: "t"},
		script.Chapter{ID: "3", Prompt: "c", Copied: true},
	)
	out := overlay(d, []Entry{{ID: "1", Prompt: "a", Copied: true}, {ID: "3", Prompt: "c"}})
	if !out.Chapters[0].Copied || out.Chapters[1].Copied || out.Chapters[2].Copied {
		t.Fatalf("unexpected overlay: %+v", out.Chapters)
	}
	if !d.Chapters[2].Copied {
		t.Fatal("overlay mutated input")
	}
}

func TestIDLessEntriesArePositional(t *testing.T) {
	d := doc(
		script.Chapter{Text: "intro"},
		script.Chapter{Prompt: "a"},
		script.Chapter{ID: "7", Prompt: "b"},
		script.Chapter{Prompt: "c"},
	)
	entries := Merge(d, nil)
	keys := []script.ID{script.PositionID(1), "7", script.PositionID(3)}
	for i, k := range keys {
		if entries[i].Key != k {
			t.Fatalf("entry %d key = %q, want %q", i, entries[i].Key, k)
		}
	}
	entries = MarkCopied(entries, script.PositionID(3))
	if !entries[2].Copied || entries[0].Copied {
		t.Fatalf("unexpected flags: %+v", entries)
	}

	out := overlay(d, entries)
	if !out.Chapters[3].Copied || out.Chapters[1].Copied || out.Chapters[0].Copied {
		t.Fatalf("overlay = %+v", out.Chapters)
	}
	back := fromDocument(out)
	if !reflect.DeepEqual(back, entries) {
		t.Fatalf("fromDocument = %+v, want %+v", back, entries)
	}
}
