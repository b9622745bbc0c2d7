/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders the loaded script into printable documents.
package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"promptdeck/internal/imagecache"
	"promptdeck/internal/ledger"
	"promptdeck/internal/script"
	"promptdeck/internal/version"
)

// SheetOptions controls the prompt sheet layout.
type SheetOptions struct {
	// PageSize is "A4" (default) or "Letter".
	PageSize string
	// IncludeText prints each chapter's narration under its prompt.
	IncludeText bool
	// IncludeImages prints the image reference of entries that have one.
	IncludeImages bool
}

// ExportSheetPDF writes one page flow listing every entry: its prompt, optionally
// its text and image reference. Copied entries are greyed out.
func ExportSheetPDF(doc script.Document, entries []ledger.Entry, images map[script.ID]imagecache.ImageRef, outPath string, opt SheetOptions) error {
	if strings.TrimSpace(outPath) == "" {
		return fmt.Errorf("output path is required")
	}
	size := "A4"
	if strings.EqualFold(opt.PageSize, "letter") {
		size = "Letter"
	}
	pdf := gofpdf.New("P", "mm", size, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	title := doc.Title
	if title == "" {
		title = "Untitled script"
	}
	pdf.SetTitle(tr(title), false)
	pdf.SetCreator("promptdeck "+version.String(), false)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 9, tr(title), "", "L", false)
	if tags := doc.Hashtags.Join(); tags != "" {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.SetTextColor(60, 60, 160)
		pdf.MultiCell(0, 5, tr(tags), "", "L", false)
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d prompts, %d left to copy", len(entries), ledger.Remaining(entries)), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	for i, e := range entries {
		grey := 0
		if e.Copied {
			grey = 150
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(grey, grey, grey)
		head := fmt.Sprintf("%d. %s", i+1, e.Key.String())
		if e.Copied {
			head += "  (copied)"
		}
		pdf.CellFormat(0, 6, tr(head), "B", 1, "L", false, 0, "")
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(e.Prompt), "", "L", false)
		if opt.IncludeText && e.Text != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 4.5, tr(e.Text), "", "L", false)
		}
		if opt.IncludeImages {
			if ref, ok := images[e.Key]; ok && ref.URL != "" {
				pdf.SetFont("Helvetica", "", 8)
				pdf.SetTextColor(30, 90, 200)
				if strings.HasPrefix(ref.URL, "data:") {
					embedThumbnail(pdf, fmt.Sprintf("entry-%d", i), ref.URL)
				} else {
					pdf.CellFormat(0, 4.5, tr("image: "+ref.URL), "", 1, "L", false, 0, ref.URL)
				}
			}
		}
		pdf.Ln(3)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure out dir: %w", err)
		}
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// embedThumbnail places a scaled copy of an inline image in the flow. Images that
// cannot be decoded are listed as text instead.
func embedThumbnail(pdf *gofpdf.Fpdf, name, uri string) {
	thumb, err := inlineThumbnail(uri, ThumbnailPx)
	if err != nil {
		pdf.CellFormat(0, 4.5, "image: inline data", "", 1, "L", false, 0, "")
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(thumb))
	if pdf.Err() {
		pdf.ClearError()
		pdf.CellFormat(0, 4.5, "image: inline data", "", 1, "L", false, 0, "")
		return
	}
	pdf.ImageOptions(name, pdf.GetX(), pdf.GetY(), 40, 0, true, opts, 0, "")
}
