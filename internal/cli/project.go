/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/export"
	"pagebuilder/internal/shortcut"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/style"
	"pagebuilder/internal/version"
)

func addVersion(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
	topLevel.AddCommand(cmd)
}

func addInit(topLevel *cobra.Command, o *RootOptions) {
	var name string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create an empty page project.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := o.Project
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				root = abs
			}
			if name == "" {
				name = filepath.Base(root)
			}
			if _, err := storage.InitProject(root, name, domain.NewDocument()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created project at", root)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Page name (default: directory name).")
	topLevel.AddCommand(cmd)
}

func addShow(topLevel *cobra.Command, o *RootOptions) {
	var mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the page outline.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseDeviceMode(mode)
			if err != nil {
				return err
			}
			return o.read(cmd, func(s *editor.Session) error {
				doc := s.Store.Snapshot()
				if asJSON {
					b, err := storage.Encode(s.Project().Name, doc.Roots)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(b)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d blocks)\n", s.Project().Name, doc.Count())
				printOutline(cmd.OutOrStdout(), doc.Roots, m, 1)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.Desktop), "Device mode used for visibility markers.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the page file instead of the outline.")
	topLevel.AddCommand(cmd)
}

func printOutline(w io.Writer, nodes []*domain.Node, mode domain.DeviceMode, depth int) {
	for _, n := range nodes {
		line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), n.Type, n.ID)
		if col, ok := domain.ColumnOf(n.Props); ok {
			line += fmt.Sprintf(" [col %d]", col)
		}
		if t := nodeText(n); t != "" {
			line += fmt.Sprintf(" %q", t)
		}
		if !style.Visible(n, mode) {
			line += " (hidden)"
		}
		fmt.Fprintln(w, line)
		printOutline(w, n.Children, mode, depth+1)
	}
}

func nodeText(n *domain.Node) string {
	switch p := n.Props.(type) {
	case *domain.ButtonProps:
		return p.Text
	case *domain.TextProps:
		return p.Text
	case *domain.HeadingProps:
		return p.Text
	case *domain.ImageProps:
		return p.Alt
	}
	return ""
}

func addResolve(topLevel *cobra.Command, o *RootOptions) {
	var mode string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Print the effective style of a block in a device mode.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseDeviceMode(mode)
			if err != nil {
				return err
			}
			return o.read(cmd, func(s *editor.Session) error {
				n, ok := s.Store.Node(args[0])
				if !ok {
					return fmt.Errorf("block %s not found", args[0])
				}
				eff := style.Resolve(n, m)
				overridden := map[string]bool{}
				for _, k := range style.Diff(n, m) {
					overridden[k] = true
				}
				for _, k := range style.Keys(eff) {
					mark := ""
					if overridden[k] {
						mark = "  (" + style.Layer(m) + ")"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s%s\n", k, eff[k], mark)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.Desktop), "Device mode: desktop, tablet or mobile.")
	topLevel.AddCommand(cmd)
}

func addExport(topLevel *cobra.Command, o *RootOptions) {
	var out, title string
	var modes []string
	cmd := &cobra.Command{
		Use:       "export html|pdf",
		Short:     "Render the page to a static HTML page or a PDF outline.",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"html", "pdf"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := args[0]
			var dm []domain.DeviceMode
			for _, m := range modes {
				d, err := domain.ParseDeviceMode(m)
				if err != nil {
					return err
				}
				dm = append(dm, d)
			}
			return o.read(cmd, func(s *editor.Session) error {
				doc := s.Store.Snapshot()
				name := title
				if name == "" {
					name = s.Project().Name
				}
				path := out
				if path == "" {
					path = "page." + format
				}
				if !filepath.IsAbs(path) {
					path = filepath.Join(s.Project().Root, "exports", path)
				}
				err := export.ToFile(path, func(w io.Writer) error {
					if format == "pdf" {
						return export.PDF(w, doc, export.PDFOptions{Title: name, Modes: dm})
					}
					return export.HTML(w, doc, export.HTMLOptions{Title: name})
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file; relative paths go under the project's exports folder.")
	cmd.Flags().StringVar(&title, "title", "", "Document title (default: page name).")
	cmd.Flags().StringSliceVar(&modes, "mode", nil, "PDF only: device modes to include (default all).")
	topLevel.AddCommand(cmd)
}

func addRevisions(topLevel *cobra.Command, o *RootOptions) {
	var limit int
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List saved revisions of the page.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.read(cmd, func(s *editor.Session) error {
				idx, err := requireIndex(s)
				if err != nil {
					return err
				}
				revs, err := idx.ListRevisions(ctxOf(cmd), limit)
				if err != nil {
					return err
				}
				for _, r := range revs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-8s %d blocks\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Source, r.Nodes)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of revisions to list.")

	restore := &cobra.Command{
		Use:   "restore <revision-id>",
		Short: "Replace the page with a stored revision (undoable in an editor session).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.edit(cmd, func(s *editor.Session) error {
				idx, err := requireIndex(s)
				if err != nil {
					return err
				}
				rev, err := idx.GetRevision(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				roots, err := rev.Roots()
				if err != nil {
					return err
				}
				return check(cmd, "restore", s.Store.ReplaceAll(roots))
			})
		},
	}

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest revisions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.read(cmd, func(s *editor.Session) error {
				idx, err := requireIndex(s)
				if err != nil {
					return err
				}
				n, err := idx.PruneRevisions(ctxOf(cmd), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d revisions\n", n)
				return nil
			})
		},
	}
	prune.Flags().IntVar(&keep, "keep", 50, "Number of revisions to keep.")

	cmd.AddCommand(restore, prune)
	topLevel.AddCommand(cmd)
}

func requireIndex(s *editor.Session) (*storage.Index, error) {
	if idx := s.Index(); idx != nil {
		return idx, nil
	}
	return nil, fmt.Errorf("revision index unavailable for %s", s.Project().Root)
}

func addSearch(topLevel *cobra.Command, o *RootOptions) {
	var types []string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find blocks by their text.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.SearchQuery{Text: strings.Join(args, " "), Limit: limit}
			for _, t := range types {
				bt, err := parseType(t)
				if err != nil {
					return err
				}
				q.Types = append(q.Types, bt)
			}
			return o.read(cmd, func(s *editor.Session) error {
				idx, err := requireIndex(s)
				if err != nil {
					return err
				}
				res, err := idx.Search(ctxOf(cmd), q)
				if err != nil {
					return err
				}
				for _, r := range res {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s  %s\n", r.Type, r.NodeID, r.Path, r.Snippet)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Only blocks of these types.")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results.")
	topLevel.AddCommand(cmd)
}

func addShortcuts(topLevel *cobra.Command, o *RootOptions) {
	var mac, enabledOnly bool
	cmd := &cobra.Command{
		Use:   "shortcuts",
		Short: "List the editor keyboard shortcuts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nop := autosave.SaveFunc(func(context.Context, *domain.Document) error { return nil })
			s, err := editor.New(editor.Options{Config: o.Config, Saver: nop})
			if err != nil {
				return err
			}
			defer s.Close()
			list := s.Keys.Shortcuts()
			if enabledOnly {
				list = shortcut.EnabledShortcuts(list)
			}
			w := cmd.OutOrStdout()
			for _, g := range shortcut.GroupBy(list, editor.Categorize) {
				fmt.Fprintln(w, g.Category)
				seen := map[string]bool{}
				for _, sc := range g.Shortcuts {
					chord := shortcut.Format(sc, mac)
					if seen[chord] {
						continue
					}
					seen[chord] = true
					fmt.Fprintf(w, "  %-14s %s\n", chord, sc.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mac, "mac", false, "Use macOS modifier symbols.")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only shortcuts usable in a fresh session.")
	topLevel.AddCommand(cmd)
}
