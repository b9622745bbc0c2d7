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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"promptdeck/internal/script"
	"promptdeck/internal/session"
)

func newScriptCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newLoadCommand(ctx),
		newEntriesCommand(ctx),
		newSummaryCommand(ctx),
		newCopyCommand(ctx),
		newCopyAllCommand(ctx),
		newCopyTitleCommand(ctx),
		newMarkCommand(ctx),
		newResetCopiedCommand(ctx),
		newRestoreCommand(ctx),
		newStatusCommand(ctx),
		newHistoryCommand(ctx),
		newClearCommand(ctx),
	}
}

func newLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file|->",
		Short: "Load a script, keeping the copy progress of known chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(c context.Context, sess *session.Session) error {
				res, err := sess.LoadScript(c, raw)
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, res)
				}
				title := res.Title
				if title == "" {
					title = "untitled script"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q: %d chapters, %d prompts (%d left to copy)\n",
					title, res.Chapters, res.Entries, res.Remaining)
				return nil
			})
		},
	}
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "entries",
		Short: "List the prompts with their copy and image state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				if _, err := sess.Document(); err != nil {
					return err
				}
				entries := sess.Entries()
				if ctx.jsonOut || !isTerminal(cmd.OutOrStdout()) {
					return writeJSONLines(cmd, entries)
				}
				rows := make([][]string, 0, len(entries))
				for i, e := range entries {
					copied := ""
					if e.Copied {
						copied = "yes"
					}
					image := ""
					switch {
					case e.Generating:
						image = "generating"
					case e.Image != nil:
						image = "yes"
					}
					rows = append(rows, []string{fmt.Sprint(i + 1), e.Key.String(), copied, image, truncate(e.Prompt, 60)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"#", "ID", "Copied", "Image", "Prompt"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	var titleOnly bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the chapter texts, or the title and hashtags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				txt, err := sess.TextSummary()
				if err != nil {
					return err
				}
				th, err := sess.TitleAndHashtags()
				if err != nil {
					return err
				}
				if ctx.jsonOut {
					return writeJSON(cmd, map[string]string{"text": txt, "title_hashtags": th})
				}
				if titleOnly {
					txt = th
				}
				fmt.Fprintln(cmd.OutOrStdout(), txt)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&titleOnly, "title", false, "Print the title and hashtags instead of the texts")
	return cmd
}

func newCopyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Print a prompt and mark it as copied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := script.ParseID(args[0])
			return ctx.withSession(cmd, session.NewWriterClipboard(cmd.OutOrStdout()), func(_ context.Context, sess *session.Session) error {
				_, err := sess.CopyPrompt(id)
				return err
			})
		},
	}
}

func newCopyAllCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "copy-all",
		Short: "Print every chapter text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.NewWriterClipboard(cmd.OutOrStdout()), func(_ context.Context, sess *session.Session) error {
				_, err := sess.CopyAllText()
				return err
			})
		},
	}
}

func newCopyTitleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "copy-title",
		Short: "Print the title followed by the hashtags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.NewWriterClipboard(cmd.OutOrStdout()), func(_ context.Context, sess *session.Session) error {
				_, err := sess.CopyTitleAndHashtags()
				return err
			})
		},
	}
}

func newMarkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <id>",
		Short: "Mark a prompt as copied without printing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := script.ParseID(args[0])
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				if err := sess.MarkCopied(id); err != nil {
					return err
				}
				return printRemaining(cmd, sess)
			})
		},
	}
}

func newResetCopiedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-copied",
		Short: "Clear the copied flag of every prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				if err := sess.ResetCopied(); err != nil {
					return err
				}
				return printRemaining(cmd, sess)
			})
		},
	}
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Return the prompts to their state right after the last load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				if err := sess.RestorePrompts(); err != nil {
					return err
				}
				return printRemaining(cmd, sess)
			})
		},
	}
}

func printRemaining(cmd *cobra.Command, sess *session.Session) error {
	st := sess.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d prompts left to copy\n", st.Remaining, st.Entries)
	return nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the loaded script and generation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				st := sess.Status()
				if ctx.jsonOut {
					return writeJSON(cmd, st)
				}
				out := cmd.OutOrStdout()
				if !st.Loaded {
					fmt.Fprintln(out, "No script loaded.")
				} else {
					fmt.Fprintf(out, "Script:    %s\n", st.Title)
					fmt.Fprintf(out, "Prompts:   %d (%d left to copy)\n", st.Entries, st.Remaining)
				}
				fmt.Fprintf(out, "Images:    %d\n", st.Images)
				if g := st.LastGeneration; g != nil {
					res := g.URL
					if !g.OK {
						res = g.Notice
					}
					target := g.ID.String()
					if target == "" {
						target = "(prompt)"
					}
					fmt.Fprintf(out, "Last image: %s %s\n", target, truncate(res, 80))
				}
				if st.PersistError != "" {
					fmt.Fprintf(out, "Save error: %s\n", st.PersistError)
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the scripts loaded most recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(c context.Context, sess *session.Session) error {
				hist, err := sess.History(c, limit)
				if err != nil {
					return err
				}
				if ctx.jsonOut || !isTerminal(cmd.OutOrStdout()) {
					return writeJSONLines(cmd, hist)
				}
				rows := make([][]string, 0, len(hist))
				for _, h := range hist {
					title := "-"
					if doc, err := script.Parse(h.Text); err == nil && doc.Title != "" {
						title = doc.Title
					}
					rows = append(rows, []string{h.TS.Local().Format("2006-01-02 15:04:05"), truncate(title, 50), fmt.Sprint(len(h.Text))})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Loaded", "Title", "Bytes"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries to show")
	return cmd
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the loaded script and every cached image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clear removes the saved script and images; pass --yes to confirm")
			}
			return ctx.withSession(cmd, session.DiscardClipboard{}, func(_ context.Context, sess *session.Session) error {
				sess.ClearAll()
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the removal")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
