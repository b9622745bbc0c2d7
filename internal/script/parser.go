/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package script validates and normalizes raw script input into a Document.
// Parsing is pure: no I/O, no defaults for absent title or hashtags.
package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

// documentSchema only pins what a script cannot do without: an object with a
// "chapitres" array. Every other field is decoded leniently.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["chapitres"],
  "properties": {
    "chapitres": {"type": "array"}
  }
}`

var schema = mustCompileSchema(documentSchema)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("script: invalid document schema: " + err.Error())
	}
	return s
}

// Parse decodes raw into a Document.
// It fails with KindSyntax when raw is not well-formed JSON and with KindShape when
// the value is not an object or its "chapitres" field is absent or not an array.
// Title, hashtags and chapter fields of an unexpected type are tolerated: see decode.
func Parse(raw string) (Document, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		pe := &ParseError{Kind: KindSyntax, Msg: err.Error(), Err: err}
		var se *json.SyntaxError
		if errors.As(err, &se) {
			pe.Offset = se.Offset
		}
		return Document{}, pe
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(v))
	if err != nil {
		return Document{}, &ParseError{Kind: KindShape, Msg: err.Error(), Err: err}
	}
	if !res.Valid() {
		return Document{}, &ParseError{Kind: KindShape, Msg: describe(res.Errors())}
	}

	doc, err := decode([]byte(raw))
	if err != nil {
		return Document{}, &ParseError{Kind: KindShape, Msg: err.Error(), Err: err}
	}
	return doc, nil
}

type looseDocument struct {
	Title    json.RawMessage   `json:"titre"`
	Chapters []json.RawMessage `json:"chapitres"`
	Hashtags json.RawMessage   `json:"hashtags"`
}

type looseChapter struct {
	ID     ID              `json:"id"`
	Text   json.RawMessage `json:"texte"`
	Prompt json.RawMessage `json:"prompt"`
	Copied json.RawMessage `json:"copied"`
}

// decode maps a schema-valid value onto a Document. Scalars that should be
// strings keep their JSON text, copied counts only when it is true, and a chapter
// that is not an object becomes an empty chapter.
func decode(raw []byte) (Document, error) {
	var ld looseDocument
	if err := json.Unmarshal(raw, &ld); err != nil {
		return Document{}, err
	}
	doc := Document{
		Title:    looseString(ld.Title),
		Chapters: make([]Chapter, 0, len(ld.Chapters)),
	}
	for _, rc := range ld.Chapters {
		var lc looseChapter
		if err := json.Unmarshal(rc, &lc); err != nil {
			doc.Chapters = append(doc.Chapters, Chapter{})
			continue
		}
		doc.Chapters = append(doc.Chapters, Chapter{
			ID:     lc.ID,
			Text:   looseString(lc.Text),
			Prompt: looseString(lc.Prompt),
			Copied: string(bytes.TrimSpace(lc.Copied)) == "true",
		})
	}
	if h := bytes.TrimSpace(ld.Hashtags); len(h) > 0 && string(h) != "null" {
		var tags Hashtags
		if err := json.Unmarshal(h, &tags); err != nil {
			return Document{}, err
		}
		doc.Hashtags = &tags
	}
	return doc, nil
}

// describe turns schema violations into one operator-readable line.
func describe(errs []gojsonschema.ResultError) string {
	if len(errs) == 0 {
		return "document does not match the script schema"
	}
	for _, e := range errs {
		if e.Field() == "chapitres" {
			return `field "chapitres" is missing or not an array`
		}
		if e.Type() == "required" {
			if p, _ := e.Details()["property"].(string); p == "chapitres" {
				return `field "chapitres" is missing or not an array`
			}
		}
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
