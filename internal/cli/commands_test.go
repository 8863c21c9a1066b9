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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagebuilder/internal/config"
	"pagebuilder/internal/crash"
	"pagebuilder/internal/storage"
)

type mapTokens map[string]string

func (m mapTokens) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (m mapTokens) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m mapTokens) Delete(service, key string) error     { delete(m, service+"/"+key); return nil }

// harness runs commands against one project with an isolated user config.
type harness struct {
	t    *testing.T
	root string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PB_PROJECT_DIR", "")
	t.Setenv("PB_LOG_LEVEL", "error")
	prev := config.SetTokenStore(mapTokens{})
	t.Cleanup(func() { config.SetTokenStore(prev) })
	h := &harness{t: t, root: filepath.Join(t.TempDir(), "site")}
	h.must("init", h.root, "--name", "Landing")
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := New(&crash.Guard{})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--project", h.root}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) must(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%v: %v", args, err)
	}
	return out
}

func firstLine(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
}

func TestInitAddShow(t *testing.T) {
	h := newHarness(t)
	sec := firstLine(h.must("add", "section"))
	head := firstLine(h.must("add", "heading", "--parent", sec, "--text", "Welcome"))
	if sec == "" || head == "" {
		t.Fatal("add should print the new id")
	}

	out := h.must("show")
	if !strings.Contains(out, "Landing (2 blocks)") {
		t.Fatalf("show header:\n%s", out)
	}
	if !strings.Contains(out, "    Heading "+head+` "Welcome"`) {
		t.Fatalf("nested heading missing:\n%s", out)
	}

	ph, err := storage.Open(h.root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(ph.Doc.Roots) != 1 || len(ph.Doc.Roots[0].Children) != 1 {
		t.Fatalf("manifest not saved: %+v", ph.Doc.Roots)
	}
}

func TestRejectedEditsFail(t *testing.T) {
	h := newHarness(t)
	btn := firstLine(h.must("add", "button"))
	if _, err := h.run("add", "text", "--parent", btn); err == nil {
		t.Fatal("leaf blocks cannot take children")
	}
	if _, err := h.run("delete", "missing"); err == nil {
		t.Fatal("deleting an unknown id should fail")
	}
	if _, err := h.run("add", "marquee"); err == nil {
		t.Fatal("unknown block type should fail")
	}
}

func TestStyleAndResolve(t *testing.T) {
	h := newHarness(t)
	id := firstLine(h.must("add", "text"))
	h.must("style", id, "fontSize=3rem")
	h.must("style", id, "--mode", "mobile", "fontSize=2rem")

	desk := h.must("resolve", id)
	if !strings.Contains(desk, "fontSize: 3rem\n") {
		t.Fatalf("desktop:\n%s", desk)
	}
	tab := h.must("resolve", id, "--mode", "tablet")
	if !strings.Contains(tab, "fontSize: 3rem\n") {
		t.Fatalf("tablet inherits base:\n%s", tab)
	}
	mob := h.must("resolve", id, "--mode", "mobile")
	if !strings.Contains(mob, "fontSize: 2rem  (mobile)") {
		t.Fatalf("mobile:\n%s", mob)
	}
}

func TestSetMoveDuplicateDelete(t *testing.T) {
	h := newHarness(t)
	a := firstLine(h.must("add", "button", "--text", "A"))
	b := firstLine(h.must("add", "button", "--text", "B"))
	h.must("set", b, "hideOnMobile=true", `text="Sign up"`)
	h.must("move", b, "--index", "0")

	out := h.must("show", "--mode", "mobile")
	if !strings.Contains(out, `Button `+b+` "Sign up" (hidden)`) {
		t.Fatalf("set not applied:\n%s", out)
	}
	if strings.Index(out, b) > strings.Index(out, a) {
		t.Fatalf("move not applied:\n%s", out)
	}

	dup := firstLine(h.must("duplicate", a))
	h.must("delete", a, b)
	out = h.must("show")
	if !strings.Contains(out, dup) || strings.Contains(out, " "+a+" ") {
		t.Fatalf("duplicate/delete:\n%s", out)
	}
}

func TestExportWritesFiles(t *testing.T) {
	h := newHarness(t)
	h.must("add", "heading", "--text", "Hello")
	out := h.must("export", "html")
	htmlPath := filepath.Join(h.root, "exports", "page.html")
	if !strings.Contains(out, htmlPath) {
		t.Fatalf("export output: %s", out)
	}
	b, err := os.ReadFile(htmlPath)
	if err != nil || !bytes.Contains(b, []byte("Hello")) {
		t.Fatalf("html export: %v", err)
	}

	pdfPath := filepath.Join(t.TempDir(), "outline.pdf")
	h.must("export", "pdf", "-o", pdfPath, "--mode", "mobile")
	b, err = os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("pdf export: %v", err)
	}
	if _, err := h.run("export", "docx"); err == nil {
		t.Fatal("unknown export format should fail")
	}
}

func TestRevisionsSearchAndRestore(t *testing.T) {
	h := newHarness(t)
	h.must("add", "heading", "--text", "Pricing plans")
	h.must("add", "text", "--text", "Cancel anytime")

	out := h.must("revisions")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected open and autosave revisions:\n%s", out)
	}

	found := h.must("search", "pricing")
	if !strings.Contains(found, "Heading") {
		t.Fatalf("search:\n%s", found)
	}

	// The oldest autosave holds only the heading.
	var target string
	for _, l := range lines {
		if strings.Contains(l, "autosave") && strings.Contains(l, " 1 blocks") {
			target = strings.Fields(l)[0]
		}
	}
	if target == "" {
		t.Fatalf("no single-block revision:\n%s", out)
	}
	h.must("revisions", "restore", target)
	if show := h.must("show"); strings.Contains(show, "Cancel anytime") {
		t.Fatalf("restore did not roll back:\n%s", show)
	}
}

func TestImport(t *testing.T) {
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "blocks.json")
	blocks := `[{"id":"x1","type":"Text","props":{"text":"Imported"},"style":{"base":{}},"children":[]}]`
	if err := os.WriteFile(src, []byte(blocks), 0o644); err != nil {
		t.Fatal(err)
	}
	ids := h.must("import", src)
	if firstLine(ids) == "x1" || firstLine(ids) == "" {
		t.Fatalf("import should assign a fresh id, got %q", ids)
	}
	h.must("import", src, "--replace")
	if show := h.must("show"); !strings.Contains(show, `Text x1 "Imported"`) || strings.Count(show, "Imported") != 1 {
		t.Fatalf("replace import:\n%s", show)
	}
}

func TestShortcutsAndVersion(t *testing.T) {
	h := newHarness(t)
	out := h.must("shortcuts")
	for _, want := range []string{"History", "Ctrl+Shift+Z", "Ctrl+Z", "Delete", "Ctrl+S"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, "Delete selected block") != 2 {
		t.Fatalf("Delete and Backspace should both be listed:\n%s", out)
	}
	if v := h.must("version"); strings.TrimSpace(v) == "" {
		t.Fatal("empty version")
	}
}

func TestShortcutsEnabledOnly(t *testing.T) {
	h := newHarness(t)
	out := h.must("shortcuts", "--enabled")
	for _, want := range []string{"File", "Ctrl+S", "View", "Zoom in"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	// Nothing to undo and nothing selected yet.
	for _, gone := range []string{"History", "Undo", "Redo", "Delete selected block", "Clear selection"} {
		if strings.Contains(out, gone) {
			t.Fatalf("unexpected %q in:\n%s", gone, out)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	m, err := parseAssignments([]string{"a=1", "b=true", "c=hello world", "d=null", `e="x"`})
	if err != nil {
		t.Fatal(err)
	}
	if m["a"] != float64(1) || m["b"] != true || m["c"] != "hello world" || m["d"] != nil || m["e"] != "x" {
		t.Fatalf("parsed: %#v", m)
	}
	if _, ok := m["d"]; !ok {
		t.Fatal("null must be kept as a removal")
	}
	if _, err := parseAssignments([]string{"novalue"}); err == nil {
		t.Fatal("expected error")
	}
}
