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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"pagebuilder/internal/domain"
)

func TestPDF_WritesDocument(t *testing.T) {
	var buf bytes.Buffer
	if err := PDF(&buf, samplePage(), PDFOptions{Title: "Landing"}); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

func TestPDF_EmptyAndSingleMode(t *testing.T) {
	var buf bytes.Buffer
	err := PDF(&buf, domain.NewDocument(), PDFOptions{Modes: []domain.DeviceMode{domain.Mobile}})
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty output")
	}
	if err := PDF(&buf, nil, PDFOptions{}); err == nil {
		t.Fatal("expected error for nil document")
	}
}

func TestToFile_CreatesDirsAndSkipsOnError(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "exports", "page.html")
	err := ToFile(out, func(w io.Writer) error {
		return HTML(w, samplePage(), HTMLOptions{})
	})
	if err != nil {
		t.Fatalf("ToFile: %v", err)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		t.Fatalf("output missing: %v", err)
	}

	bad := filepath.Join(dir, "exports", "bad.pdf")
	if err := ToFile(bad, func(io.Writer) error { return os.ErrInvalid }); err == nil {
		t.Fatal("expected render error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Fatalf("failed render left a file behind: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "exports"))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
