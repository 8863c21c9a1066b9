/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (m memTokens) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memTokens) Delete(service, key string) error     { delete(m, service+"/"+key); return nil }

func useTempConfig(t *testing.T) (string, memTokens) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	configPathOverride = path
	tokens := memTokens{}
	prev := SetTokenStore(tokens)
	t.Cleanup(func() {
		configPathOverride = ""
		SetTokenStore(prev)
	})
	return path, tokens
}

func TestEnvOverridesBackendURL(t *testing.T) {
	useTempConfig(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("backend.base_url"); !ok || name != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q,%v", name, ok)
	}
	if _, ok := EnvOverrideFor("backend.page_id"); ok {
		t.Fatalf("page_id should not be reported as overridden")
	}
}

func TestEnvOverridesAutosave(t *testing.T) {
	useTempConfig(t)
	t.Setenv(EnvDebounceMs, "250")
	t.Setenv(EnvMaxRetries, "5")
	t.Setenv(EnvRemoteSave, "yes")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Autosave.Debounce() != 250*time.Millisecond || cfg.Autosave.MaxRetries != 5 || !cfg.General.RemoteSave {
		t.Fatalf("autosave overrides not applied: %#v %#v", cfg.Autosave, cfg.General)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{}
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/pb.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/pb.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	// zero-valued numeric fields keep defaults
	if dst.Editor.HistoryDepth != 50 || dst.Autosave.DebounceMs != 10000 {
		t.Fatalf("defaults lost on merge: %#v %#v", dst.Editor, dst.Autosave)
	}
}

func TestSaveLoadRoundTripKeepsTokenOutOfYAML(t *testing.T) {
	path, tokens := useTempConfig(t)
	cfg := Defaults()
	cfg.Editor.HistoryDepth = 80
	cfg.Backend.PageID = "home"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) == "" || strings.Contains(string(data), "s3cret") {
		t.Fatalf("token leaked into yaml or file empty: %s", data)
	}
	if tokens[keyringService+"/"+keyringToken] != "s3cret" {
		t.Fatalf("token not stored in keyring: %v", tokens)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Editor.HistoryDepth != 80 || got.Backend.PageID != "home" || tok != "s3cret" {
		t.Fatalf("round trip mismatch: %#v tok=%q", got, tok)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if _, tok, _ := Load(); tok != "" {
		t.Fatalf("token should be gone, got %q", tok)
	}
}

func TestTimeoutFallback(t *testing.T) {
	if got := (BackendConfig{}).Timeout(); got != 15*time.Second {
		t.Fatalf("Timeout() = %v", got)
	}
}
