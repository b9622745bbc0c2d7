/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"promptdeck/internal/coordinator"
	"promptdeck/internal/export"
	"promptdeck/internal/ledger"
	"promptdeck/internal/script"
	"promptdeck/internal/session"
)

func newImageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newGenerateCommand(ctx),
		newSaveImagesCommand(ctx),
		newExportPDFCommand(ctx),
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var prompt, model string
	cmd := &cobra.Command{
		Use:   "generate [<id>]",
		Short: "Generate the image of a chapter, or of a free prompt, and wait for it",
		Long: "Generate the image of the entry <id> and keep it with the script.\n" +
			"With --prompt, generate an image for that text instead; the result is printed but not kept.\n" +
			"Entries without an id are addressed by position: @1, @2, ...",
		Args: func(cmd *cobra.Command, args []string) error {
			if prompt != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var id script.ID
			if len(args) == 1 {
				id = script.ParseID(args[0])
			}
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(c context.Context, sess *session.Session) error {
				var (
					task *coordinator.Task
					err  error
				)
				if id == "" {
					task, err = sess.GeneratePrompt(c, prompt, model)
				} else {
					task, err = sess.GenerateImage(c, id, model)
				}
				if err != nil {
					return err
				}
				if id == "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "Generating image for the prompt...")
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "Generating image for %s...\n", id.String())
				}
				ref, err := task.Wait(c)
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					out := map[string]any{"url": ref.URL}
					if id != "" {
						out["id"] = id
					}
					return writeJSON(cmd, out)
				}
				if strings.HasPrefix(ref.URL, "data:") {
					fmt.Fprintf(cmd.OutOrStdout(), "inline image (%d bytes)\n", len(ref.URL))
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref.URL)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Generate for this prompt instead of an entry")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to use for this generation (defaults to generator.model)")
	return cmd
}

func newSaveImagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save-images",
		Short: "Write the image cache to the store now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(c context.Context, sess *session.Session) error {
				if err := sess.SaveImages(c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d images.\n", len(sess.Images()))
				return nil
			})
		},
	}
}

func newExportPDFCommand(ctx *commandContext) *cobra.Command {
	var opt export.SheetOptions
	cmd := &cobra.Command{
		Use:   "export-pdf <out.pdf>",
		Short: "Write the prompts to a printable PDF sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				doc, err := sess.Document()
				if err != nil {
					return err
				}
				views := sess.Entries()
				entries := make([]ledger.Entry, 0, len(views))
				for _, v := range views {
					entries = append(entries, v.Entry)
				}
				if err := export.ExportSheetPDF(doc, entries, sess.Images(), args[0], opt); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opt.PageSize, "page-size", "A4", "Page size: A4 or Letter")
	cmd.Flags().BoolVar(&opt.IncludeText, "text", true, "Include the chapter texts")
	cmd.Flags().BoolVar(&opt.IncludeImages, "images", true, "Include the image references")
	return cmd
}
