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

import "strings"

// TextSummary concatenates every non-empty chapter text, in order, separated by a blank line.
// Chapters without a prompt still contribute their text.
func TextSummary(doc Document) string {
	parts := make([]string, 0, len(doc.Chapters))
	for _, ch := range doc.Chapters {
		if ch.Text != "" {
			parts = append(parts, ch.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// TitleAndHashtags renders the title and the hashtags on separate lines.
// An absent title or an empty hashtag string is skipped; a hashtag list always
// takes its line, even when it joins to nothing.
func TitleAndHashtags(doc Document) string {
	parts := make([]string, 0, 2)
	if doc.Title != "" {
		parts = append(parts, doc.Title)
	}
	if h := doc.Hashtags; h != nil && (h.List || h.Text != "") {
		parts = append(parts, h.Join())
	}
	return strings.Join(parts, "\n")
}
