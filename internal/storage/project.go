/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pagebuilder/internal/domain"
	applog "pagebuilder/internal/log"
)

const (
	ManifestFileName = "page.json"
	BackupsDirName   = "backups"
	manifestVersion  = 1
	// MaxBackups bounds the number of timestamped manifest backups kept per project.
	MaxBackups = 20
)

var standardSubDirs = []string{
	"assets",
	"exports",
	BackupsDirName,
}

// ErrNoBackups is returned when a project has no usable manifest backup.
var ErrNoBackups = errors.New("no backups found")

// Manifest is the on-disk page.json layout. Components holds the persisted node forest.
type Manifest struct {
	Version    int             `json:"version"`
	Name       string          `json:"name,omitempty"`
	UpdatedAt  string          `json:"updatedAt,omitempty"`
	Components json.RawMessage `json:"components"`
}

// ProjectHandle keeps track of the page loaded/saved from disk.
// Root is the project directory containing page.json and subfolders.
type ProjectHandle struct {
	Root         string
	ManifestPath string
	Name         string
	Doc          *domain.Document
}

// LoadWarning reports persisted content that could not be loaded. The handle returned
// with it carries an empty document so editing can continue.
type LoadWarning struct {
	Path string
	Err  error
}

func (w *LoadWarning) Error() string {
	return fmt.Sprintf("could not load %s, starting with an empty page: %v", w.Path, w.Err)
}

func (w *LoadWarning) Unwrap() error { return w.Err }

// InitProject creates a new project directory at root (creating it if it doesn't exist),
// scaffolds the standard subfolders, and writes the given document transactionally.
func InitProject(root, name string, doc *domain.Document) (*ProjectHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := scaffold(root); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = domain.NewDocument()
	}
	ph := &ProjectHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Name:         name,
		Doc:          doc,
	}
	if err := Save(ph); err != nil {
		return nil, err
	}
	return ph, nil
}

func scaffold(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create project root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	return nil
}

// Open loads an existing project from root. If the manifest cannot be read or parsed,
// the latest backup is tried. When that fails too, the handle holds an empty document
// and a *LoadWarning is returned. A missing project (no manifest, no backups) is an error.
func Open(root string) (*ProjectHandle, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("root", root))
	mpath := filepath.Join(root, ManifestFileName)
	ph := &ProjectHandle{Root: root, ManifestPath: mpath}

	b, err := os.ReadFile(mpath)
	if err == nil {
		var name string
		var roots []*domain.Node
		if name, roots, err = Decode(b); err == nil {
			ph.Name = name
			ph.Doc = docFromRoots(roots)
			return ph, nil
		}
	}
	missing := errors.Is(err, os.ErrNotExist)
	l.Warn("manifest unusable, trying latest backup", slog.Any("err", err))

	name, roots, berr := openFromLatestBackup(root)
	if berr == nil {
		ph.Name = name
		ph.Doc = docFromRoots(roots)
		return ph, nil
	}
	if missing && errors.Is(berr, ErrNoBackups) {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	l.Error("no usable manifest or backup", slog.Any("err", err), slog.Any("backup_err", berr))
	ph.Doc = domain.NewDocument()
	return ph, &LoadWarning{Path: mpath, Err: fmt.Errorf("%w; backup attempt: %v", err, berr)}
}

func docFromRoots(roots []*domain.Node) *domain.Document {
	d := domain.NewDocument()
	if roots != nil {
		d.Roots = roots
	}
	return d
}

// Encode renders a manifest for roots in human-readable form.
func Encode(name string, roots []*domain.Node) ([]byte, error) {
	comps, err := domain.MarshalRoots(roots)
	if err != nil {
		return nil, fmt.Errorf("marshal components: %w", err)
	}
	m := Manifest{
		Version:    manifestVersion,
		Name:       name,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
		Components: comps,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode validates a manifest against the page schema and decodes its components.
func Decode(b []byte) (string, []*domain.Node, error) {
	if err := validateManifest(b); err != nil {
		return "", nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return "", nil, fmt.Errorf("parse manifest: %w", err)
	}
	roots, err := domain.UnmarshalRoots(m.Components)
	if err != nil {
		return "", nil, fmt.Errorf("decode components: %w", err)
	}
	return m.Name, roots, nil
}

// ContentHash fingerprints the canonical encoding of roots.
func ContentHash(roots []*domain.Node) (string, error) {
	b, err := domain.MarshalRoots(roots)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes ph.Doc to disk with transactional semantics
// and a timestamped backup of the previous manifest (if present).
func Save(ph *ProjectHandle) error {
	return SaveContext(context.Background(), ph)
}

// SaveContext is Save with cancellation: a cancelled ctx aborts before the manifest is replaced.
func SaveContext(ctx context.Context, ph *ProjectHandle) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	if ph.Root == "" || ph.ManifestPath == "" {
		return errors.New("invalid ProjectHandle: missing paths")
	}
	var roots []*domain.Node
	if ph.Doc != nil {
		roots = ph.Doc.Roots
	}
	data, err := Encode(ph.Name, roots)
	if err != nil {
		return err
	}
	return writeManifest(ctx, ph, data)
}

func writeManifest(ctx context.Context, ph *ProjectHandle, data []byte) error {
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}

	// Transactional write: to temp file in same directory, then rename over target
	dir := filepath.Dir(ph.ManifestPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(temp)
		return err
	}

	if _, statErr := os.Stat(ph.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bname := fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp)
		if cerr := copyFile(ph.ManifestPath, filepath.Join(bdir, bname)); cerr != nil {
			_ = os.Remove(temp)
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
		pruneBackups(bdir, MaxBackups)
	}

	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(ph.ManifestPath); err == nil {
		_ = os.Remove(ph.ManifestPath)
	}
	if rerr := os.Rename(temp, ph.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// SaveAs writes the manifest to a new root folder, scaffolding structure if needed, and updates the handle.
func SaveAs(ph *ProjectHandle, newRoot string) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	if newRoot == "" {
		return errors.New("new root is empty")
	}
	if err := scaffold(newRoot); err != nil {
		return err
	}
	ph.Root = newRoot
	ph.ManifestPath = filepath.Join(newRoot, ManifestFileName)
	return Save(ph)
}

// AutosaveCrashSnapshot writes the current document next to the backups without touching page.json.
func AutosaveCrashSnapshot(ph *ProjectHandle) (string, error) {
	if ph == nil || ph.Root == "" {
		return "", errors.New("invalid ProjectHandle: missing paths")
	}
	var roots []*domain.Node
	if ph.Doc != nil {
		roots = ph.Doc.Roots
	}
	data, err := Encode(ph.Name, roots)
	if err != nil {
		return "", err
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.crash-%s.json", ManifestFileName, time.Now().Format("20060102-150405")))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

func backupCandidates(bdir string) ([]string, error) {
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func pruneBackups(bdir string, keep int) {
	c, err := backupCandidates(bdir)
	if err != nil || len(c) <= keep {
		return
	}
	for _, p := range c[:len(c)-keep] {
		_ = os.Remove(p)
	}
}

// openFromLatestBackup walks backups newest first and returns the first that decodes.
func openFromLatestBackup(root string) (string, []*domain.Node, error) {
	candidates, err := backupCandidates(filepath.Join(root, BackupsDirName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", nil, fmt.Errorf("read backups dir: %w", err)
	}
	if len(candidates) == 0 {
		return "", nil, ErrNoBackups
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		b, err := os.ReadFile(candidates[i])
		if err != nil {
			lastErr = err
			continue
		}
		name, roots, err := Decode(b)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", filepath.Base(candidates[i]), err)
			continue
		}
		return name, roots, nil
	}
	return "", nil, fmt.Errorf("%w: %v", ErrNoBackups, lastErr)
}
