/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and a snapshot of the open page.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	applog "pagebuilder/internal/log"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target is the running editor as seen by the crash handler. *editor.Session implements it.
type Target interface {
	// CrashDir returns the project root, or "" when there is no local project.
	CrashDir() string
	// CrashSnapshot writes the live page and returns the file path.
	CrashSnapshot() (string, error)
}

// Guard is a Target that can be filled in after Recover was deferred.
type Guard struct {
	mu sync.Mutex
	t  Target
}

// Set installs the target; nil clears it.
func (g *Guard) Set(t Target) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.t = t
}

func (g *Guard) target() Target {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.t
}

func (g *Guard) CrashDir() string {
	if t := g.target(); t != nil {
		return t.CrashDir()
	}
	return ""
}

func (g *Guard) CrashSnapshot() (string, error) {
	if t := g.target(); t != nil {
		return t.CrashSnapshot()
	}
	return "", fmt.Errorf("no page open")
}

// Recover captures a panic, logs it with its stack, writes a report file and a crash
// snapshot of the page (when a target is given), then exits with code 2.
//
// Usage: defer crash.Recover(guard)
func Recover(t Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		dir := ""
		if t != nil {
			dir = t.CrashDir()
		}
		reportPath, err := writeReport(dir, r, stack)
		if err != nil {
			l.Error("crash report failed", slog.Any("err", err))
		}
		if t != nil {
			if path, err := t.CrashSnapshot(); err != nil {
				l.Error("crash snapshot failed", slog.Any("err", err))
			} else {
				l.Info("crash snapshot written", slog.String("path", path))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// writeReport stores the report under root's backups folder, or the temp dir when root is "".
func writeReport(root string, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if root != "" {
		dir = filepath.Join(root, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Page Builder Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if root != "" {
		_, _ = fmt.Fprintf(&buf, "ProjectRoot: %s\n", root)
		_, _ = fmt.Fprintf(&buf, "Manifest: %s\n", filepath.Join(root, storage.ManifestFileName))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
