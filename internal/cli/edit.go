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
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/tree"
)

// PlacementOptions address a position in the page.
type PlacementOptions struct {
	Parent string
	Index  int
	Column int
}

func addPlacementArgs(cmd *cobra.Command, o *PlacementOptions) {
	cmd.Flags().StringVar(&o.Parent, "parent", "", "Parent block id (default: page root).")
	cmd.Flags().IntVar(&o.Index, "index", -1, "Position among the parent's children; -1 appends.")
	cmd.Flags().IntVar(&o.Column, "column", -1, "Column of a grid or columns parent.")
}

func (o PlacementOptions) placement() tree.Placement {
	p := tree.Placement{ParentID: o.Parent, Index: o.Index}
	if o.Column >= 0 {
		col := o.Column
		p.Column = &col
	}
	return p
}

func addAdd(topLevel *cobra.Command, o *RootOptions) {
	po := &PlacementOptions{}
	var text string
	cmd := &cobra.Command{
		Use:   "add <type>",
		Short: "Insert a new block.",
		Example: `
pagebuilder add section
pagebuilder add heading --parent <section-id> --text "Welcome"
pagebuilder add button --parent <columns-id> --column 1
`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: blockTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseType(args[0])
			if err != nil {
				return err
			}
			return o.edit(cmd, func(s *editor.Session) error {
				id, out := s.Store.Insert(t, po.placement())
				if err := check(cmd, "add", out); err != nil {
					return err
				}
				if text != "" {
					if err := check(cmd, "set text", s.Store.Update(id, map[string]any{"text": text})); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	addPlacementArgs(cmd, po)
	cmd.Flags().StringVar(&text, "text", "", "Initial text for text-bearing blocks.")
	topLevel.AddCommand(cmd)
}

func addSet(topLevel *cobra.Command, o *RootOptions) {
	cmd := &cobra.Command{
		Use:   "set <id> key=value...",
		Short: "Change block properties.",
		Long:  "Change block properties. Values are read as JSON when possible; key=null removes a custom property.",
		Example: `
pagebuilder set <id> text="Sign up" href=/signup
pagebuilder set <id> hideOnMobile=true
`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return o.edit(cmd, func(s *editor.Session) error {
				return check(cmd, "set", s.Store.Update(args[0], patch))
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addStyle(topLevel *cobra.Command, o *RootOptions) {
	var mode string
	cmd := &cobra.Command{
		Use:   "style <id> key=value...",
		Short: "Change block styles for a device mode.",
		Long:  "Change block styles. Desktop edits the base layer; tablet and mobile edit their override layers. key= removes the key from that layer.",
		Example: `
pagebuilder style <id> fontSize=3rem color=#111
pagebuilder style <id> --mode mobile fontSize=2rem
`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseDeviceMode(mode)
			if err != nil {
				return err
			}
			patch, err := parseStyle(args[1:])
			if err != nil {
				return err
			}
			return o.edit(cmd, func(s *editor.Session) error {
				return check(cmd, "style", s.Store.UpdateStyle(args[0], m, patch))
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.Desktop), "Device mode: desktop, tablet or mobile.")
	topLevel.AddCommand(cmd)
}

func addMove(topLevel *cobra.Command, o *RootOptions) {
	po := &PlacementOptions{}
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a block to another parent or position.",
		Example: `
pagebuilder move <id> --index 0
pagebuilder move <id> --parent <container-id>
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.edit(cmd, func(s *editor.Session) error {
				return check(cmd, "move", s.Store.Move(args[0], po.placement()))
			})
		},
	}
	addPlacementArgs(cmd, po)
	topLevel.AddCommand(cmd)
}

func addDelete(topLevel *cobra.Command, o *RootOptions) {
	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete blocks and everything inside them.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.edit(cmd, func(s *editor.Session) error {
				for _, id := range args {
					if err := check(cmd, "delete "+id, s.Store.Delete(id)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func addDuplicate(topLevel *cobra.Command, o *RootOptions) {
	cmd := &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy a block next to itself.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.edit(cmd, func(s *editor.Session) error {
				id, out := s.Store.Duplicate(args[0])
				if err := check(cmd, "duplicate", out); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}

// fileGenerator serves blocks from a page file, the same way a remote generator would.
func fileGenerator(path string) editor.Generator {
	return editor.GeneratorFunc(func(ctx context.Context, _ string) ([]*domain.Node, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, roots, err := storage.Decode(b); err == nil {
			return roots, nil
		}
		return domain.UnmarshalRoots(b)
	})
}

func addImport(topLevel *cobra.Command, o *RootOptions) {
	po := &PlacementOptions{}
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Insert blocks from a page file or a JSON array of blocks.",
		Long:  "Insert blocks from a page file or a JSON array of blocks. Imported blocks get fresh ids; --replace swaps the whole page instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.edit(cmd, func(s *editor.Session) error {
				var at *tree.Placement
				if !replace {
					p := po.placement()
					at = &p
				}
				ids, out, err := s.Generate(ctxOf(cmd), fileGenerator(args[0]), "", at)
				if err != nil {
					return err
				}
				if err := check(cmd, "import", out); err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	addPlacementArgs(cmd, po)
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the whole page.")
	topLevel.AddCommand(cmd)
}

// parseType accepts block type names in any case.
func parseType(s string) (domain.BlockType, error) {
	for _, t := range domain.BlockTypes() {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return domain.ParseBlockType(s)
}

func blockTypeNames() []string {
	var out []string
	for _, t := range domain.BlockTypes() {
		out = append(out, string(t))
	}
	return out
}
