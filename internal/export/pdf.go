/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/style"
)

// PDFOptions controls the outline document. Units are points.
type PDFOptions struct {
	Title string
	// Modes lists the device modes to print, one section each; empty means all three.
	Modes []domain.DeviceMode
	// Indent is the per-depth left offset.
	Indent float64
}

var allModes = []domain.DeviceMode{domain.Desktop, domain.Tablet, domain.Mobile}

// PDF writes a block outline of doc: one section per device mode listing every
// node with its resolved style. Nodes hidden in a mode are marked, not skipped.
func PDF(w io.Writer, doc *domain.Document, opt PDFOptions) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if opt.Title == "" {
		opt.Title = "Page"
	}
	if opt.Indent <= 0 {
		opt.Indent = 14
	}
	modes := opt.Modes
	if len(modes) == 0 {
		modes = allModes
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(opt.Title, true)
	pdf.SetCreator("pagebuilder", false)
	pdf.SetMargins(40, 40, 40)
	pdf.SetAutoPageBreak(true, 40)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, mode := range modes {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 22, tr(fmt.Sprintf("%s (%s)", opt.Title, mode)), "", 1, "L", false, 0, "")
		pdf.SetDrawColor(160, 160, 160)
		pdf.SetLineWidth(0.5)
		y := pdf.GetY()
		pdf.Line(40, y, 555, y)
		pdf.Ln(8)

		if len(doc.Roots) == 0 {
			pdf.SetFont("Helvetica", "I", 11)
			pdf.CellFormat(0, 16, "(empty page)", "", 1, "L", false, 0, "")
			continue
		}
		var walk func(nodes []*domain.Node, depth int)
		walk = func(nodes []*domain.Node, depth int) {
			for _, n := range nodes {
				outlineNode(pdf, tr, n, mode, depth, opt.Indent)
				walk(n.Children, depth+1)
			}
		}
		walk(doc.Roots, 0)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func outlineNode(pdf *gofpdf.Fpdf, tr func(string) string, n *domain.Node, mode domain.DeviceMode, depth int, indent float64) {
	left := 40 + float64(depth)*indent
	pdf.SetX(left)
	head := fmt.Sprintf("%s  #%s", n.Type, n.ID)
	if _, _, text := element(n); text != "" {
		head += "  \"" + truncate(text, 60) + "\""
	}
	if !style.Visible(n, mode) {
		pdf.SetTextColor(180, 40, 40)
		head += "  [hidden]"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 14, tr(head), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	resolved := style.Resolve(n, mode)
	if len(resolved) == 0 {
		return
	}
	parts := make([]string, 0, len(resolved))
	for _, k := range style.Keys(resolved) {
		parts = append(parts, cssProperty(k)+": "+resolved[k])
	}
	pdf.SetFont("Courier", "", 8)
	pdf.SetX(left + indent/2)
	pdf.MultiCell(515-(left-40)-indent/2, 10, tr(strings.Join(parts, "; ")), "", "L", false)
	pdf.Ln(2)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// ToFile renders into path, creating parent directories. The file only appears
// once rendering succeeded.
func ToFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := render(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
