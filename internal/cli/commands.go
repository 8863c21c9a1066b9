/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package cli implements the pagebuilder command line. Every editing command opens the
// project through an editor session and flushes with a manual save before exiting.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pagebuilder/internal/config"
	"pagebuilder/internal/crash"
	"pagebuilder/internal/editor"
	applog "pagebuilder/internal/log"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/tree"
)

// RootOptions are shared by all commands.
type RootOptions struct {
	Project  string
	LogLevel string

	Config config.AppConfig
	Token  string
	Guard  *crash.Guard
}

// New builds the command tree. guard receives the open session so a panic can snapshot it.
func New(guard *crash.Guard) *cobra.Command {
	if guard == nil {
		guard = &crash.Guard{}
	}
	o := &RootOptions{Guard: guard}
	cmd := &cobra.Command{
		Use:           "pagebuilder",
		Short:         "Edit block-based web pages from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&o.Project, "project", "p", "", "Project directory (default from config, then \".\").")
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "", "Log level: debug, info, warn or error.")

	AddCommands(cmd, o)
	return cmd
}

// AddCommands registers every subcommand on topLevel.
func AddCommands(topLevel *cobra.Command, o *RootOptions) {
	addVersion(topLevel)
	addInit(topLevel, o)
	addShow(topLevel, o)
	addResolve(topLevel, o)
	addAdd(topLevel, o)
	addSet(topLevel, o)
	addStyle(topLevel, o)
	addMove(topLevel, o)
	addDelete(topLevel, o)
	addDuplicate(topLevel, o)
	addImport(topLevel, o)
	addExport(topLevel, o)
	addRevisions(topLevel, o)
	addSearch(topLevel, o)
	addShortcuts(topLevel, o)
	addRemote(topLevel, o)
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, tok, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.Config, o.Token = cfg, tok
	lvl := cfg.Logging.Level
	if o.LogLevel != "" {
		lvl = o.LogLevel
	}
	applog.Init(applog.Options{
		Level:     lvl,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    cmd.ErrOrStderr(),
	})
	if o.Project == "" {
		o.Project = cfg.General.ProjectDir
	}
	if o.Project == "" {
		o.Project = "."
	}
	abs, err := filepath.Abs(o.Project)
	if err != nil {
		return err
	}
	o.Project = abs
	return nil
}

// sessionOptions runs saves inline so Flush returns once the manifest is written.
func (o *RootOptions) sessionOptions() editor.Options {
	return editor.Options{
		Config: o.Config,
		Run:    func(fn func()) { fn() },
	}
}

// open starts a session on the project. A load warning is printed and the session is kept.
func (o *RootOptions) open(cmd *cobra.Command) (*editor.Session, error) {
	s, err := editor.OpenLocal(ctxOf(cmd), o.Project, o.sessionOptions())
	var warn *storage.LoadWarning
	switch {
	case errors.As(err, &warn):
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", warn)
	case err != nil:
		return nil, err
	}
	o.Guard.Set(s)
	return s, nil
}

// read runs fn against the project without saving.
func (o *RootOptions) read(cmd *cobra.Command, fn func(s *editor.Session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer o.release(s)
	return fn(s)
}

// edit runs fn and saves the result.
func (o *RootOptions) edit(cmd *cobra.Command, fn func(s *editor.Session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer o.release(s)
	if err := fn(s); err != nil {
		return err
	}
	if err := s.Flush(ctxOf(cmd)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (o *RootOptions) release(s *editor.Session) {
	o.Guard.Set(nil)
	if err := s.Close(); err != nil {
		applog.WithComponent("cli").Warn("close session", slog.Any("err", err))
	}
}

// check turns a rejected command into an error. NoChange is reported, not failed.
func check(cmd *cobra.Command, op string, out tree.Outcome) error {
	switch out {
	case tree.Applied:
		return nil
	case tree.NoChange:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing changed\n", op)
		return nil
	}
	return fmt.Errorf("%s: %s", op, out)
}

// parseAssignments reads key=value pairs. Values that parse as JSON keep their type;
// "null" removes the key.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		var typed any
		if err := json.Unmarshal([]byte(v), &typed); err == nil {
			out[k] = typed
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// parseStyle reads key=value pairs as strings; an empty value removes the key.
func parseStyle(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// Execute runs the root command and prints errors the way the CLI reports them.
func Execute(ctx context.Context, guard *crash.Guard) int {
	cmd := New(guard)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
