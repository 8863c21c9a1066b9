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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagebuilder/internal/backend"
	"pagebuilder/internal/config"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/editor"
)

// RemoteOptions select the page server.
type RemoteOptions struct {
	URL   string
	Token string
}

func (r *RemoteOptions) client(o *RootOptions) *backend.Client {
	u, tok := r.URL, r.Token
	if u == "" {
		u = o.Config.Backend.BaseURL
	}
	if tok == "" {
		tok = o.Token
	}
	return backend.NewClient(u, tok, o.Config.Backend.Timeout())
}

func addRemote(topLevel *cobra.Command, o *RootOptions) {
	ro := &RemoteOptions{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Exchange pages with a page server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&ro.URL, "url", "", "Page server URL (default from config).")
	cmd.PersistentFlags().StringVar(&ro.Token, "token", "", "Bearer token (default from the OS keychain).")

	var subject string
	var ttl time.Duration
	login := &cobra.Command{
		Use:   "login",
		Short: "Request a token and store it in the OS keychain.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, exp, err := ro.client(o).IssueToken(ctxOf(cmd), subject, ttl)
			if err != nil {
				return err
			}
			if err := config.Save(o.Config, tok); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored, valid until %s\n", exp.Local().Format(time.RFC1123))
			return nil
		},
	}
	login.Flags().StringVar(&subject, "subject", "dev", "Token subject.")
	login.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime (max 24h).")

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pages on the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := ro.client(o).ListPages(ctxOf(cmd), query)
			if err != nil {
				return err
			}
			for _, p := range pages {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  v%d  %s  %s\n", p.ID, p.Version, p.UpdatedAt.Local().Format("2006-01-02 15:04"), p.Name)
			}
			return nil
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "Filter by name or id.")

	show := &cobra.Command{
		Use:   "show <page-id>",
		Short: "Print the outline of a server page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := o.sessionOptions()
			s, meta, err := editor.OpenRemote(ctxOf(cmd), ro.client(o), args[0], opts)
			if err != nil {
				return err
			}
			defer s.Close()
			doc := s.Store.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%d (%d blocks)\n", meta.Name, meta.Version, doc.Count())
			printOutline(cmd.OutOrStdout(), doc.Roots, domain.Desktop, 1)
			return nil
		},
	}

	pull := &cobra.Command{
		Use:   "pull <page-id>",
		Short: "Replace the local page with a server page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, roots, err := ro.client(o).GetPage(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			return o.edit(cmd, func(s *editor.Session) error {
				return check(cmd, "pull", s.Store.ReplaceAll(roots))
			})
		},
	}

	push := &cobra.Command{
		Use:   "push <page-id>",
		Short: "Upload the local page to the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.read(cmd, func(s *editor.Session) error {
				meta, err := ro.client(o).SaveContent(ctxOf(cmd), args[0], s.Store.Snapshot().Roots, 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s, now at v%d\n", meta.ID, meta.Version)
				return nil
			})
		},
	}

	cmd.AddCommand(login, list, show, pull, push)
	topLevel.AddCommand(cmd)
}
