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
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables (and a .env file in the working directory) are read-only overrides.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	// ProjectDir is the default page project used by the CLI when none is given.
	ProjectDir string `yaml:"project_dir"`
	// RemoteSave selects the backend saver instead of the local file saver.
	RemoteSave bool `yaml:"remote_save"`
}

type EditorConfig struct {
	HistoryDepth     int     `yaml:"history_depth"`
	CoalesceWindowMs int     `yaml:"coalesce_window_ms"`
	MinZoom          float64 `yaml:"min_zoom"`
	MaxZoom          float64 `yaml:"max_zoom"`
}

type AutosaveConfig struct {
	DebounceMs    int `yaml:"debounce_ms"`
	MaxRetries    int `yaml:"max_retries"`
	BaseDelayMs   int `yaml:"base_delay_ms"`
	MaxDelayMs    int `yaml:"max_delay_ms"`
	SavedHoldMs   int `yaml:"saved_hold_ms"`
	ProbeInterval int `yaml:"probe_interval_s"`
}

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	PageID    string `yaml:"page_id"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Editor        EditorConfig   `yaml:"editor"`
	Autosave      AutosaveConfig `yaml:"autosave"`
	Backend       BackendConfig  `yaml:"backend"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{ProjectDir: ".", RemoteSave: false},
		Editor:        EditorConfig{HistoryDepth: 50, CoalesceWindowMs: 300, MinZoom: 0.25, MaxZoom: 3},
		Autosave: AutosaveConfig{
			DebounceMs:    10000,
			MaxRetries:    3,
			BaseDelayMs:   1000,
			MaxDelayMs:    30000,
			SavedHoldMs:   2000,
			ProbeInterval: 15,
		},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvProjectDir       = "PB_PROJECT_DIR"
	EnvRemoteSave       = "PB_REMOTE_SAVE"
	EnvHistoryDepth     = "PB_HISTORY_DEPTH"
	EnvDebounceMs       = "PB_AUTOSAVE_DEBOUNCE_MS"
	EnvMaxRetries       = "PB_AUTOSAVE_MAX_RETRIES"
	EnvBackendURL       = "PB_BACKEND_URL"
	EnvBackendTimeoutMs = "PB_BACKEND_TIMEOUT_MS"
	EnvBackendPageID    = "PB_BACKEND_PAGE_ID"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "PB_LOG_LEVEL"
	EnvLogFormat = "PB_LOG_FORMAT"
	EnvLogSource = "PB_LOG_SOURCE"
	EnvLogFile   = "PB_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "PageBuilder"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the OS keyring so tests can swap in a map.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the keyring backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// configPathOverride lets tests point Load/Save at a temp file.
var configPathOverride string

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if configPathOverride != "" {
		return configPathOverride, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "PageBuilder")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "PageBuilder")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "pagebuilder")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, loads .env and merges
// environment overrides. The backend token comes from the keyring and is returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	// .env never overrides variables already set in the process environment.
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// ClearToken removes the stored backend token.
func ClearToken() error { return tokenStore.Delete(keyringService, keyringToken) }

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if strings.TrimSpace(src.General.ProjectDir) != "" {
		dst.General.ProjectDir = strings.TrimSpace(src.General.ProjectDir)
	}
	dst.General.RemoteSave = src.General.RemoteSave
	// editor
	if src.Editor.HistoryDepth > 0 {
		dst.Editor.HistoryDepth = src.Editor.HistoryDepth
	}
	if src.Editor.CoalesceWindowMs > 0 {
		dst.Editor.CoalesceWindowMs = src.Editor.CoalesceWindowMs
	}
	if src.Editor.MinZoom > 0 {
		dst.Editor.MinZoom = src.Editor.MinZoom
	}
	if src.Editor.MaxZoom > 0 {
		dst.Editor.MaxZoom = src.Editor.MaxZoom
	}
	// autosave
	if src.Autosave.DebounceMs > 0 {
		dst.Autosave.DebounceMs = src.Autosave.DebounceMs
	}
	if src.Autosave.MaxRetries > 0 {
		dst.Autosave.MaxRetries = src.Autosave.MaxRetries
	}
	if src.Autosave.BaseDelayMs > 0 {
		dst.Autosave.BaseDelayMs = src.Autosave.BaseDelayMs
	}
	if src.Autosave.MaxDelayMs > 0 {
		dst.Autosave.MaxDelayMs = src.Autosave.MaxDelayMs
	}
	if src.Autosave.SavedHoldMs > 0 {
		dst.Autosave.SavedHoldMs = src.Autosave.SavedHoldMs
	}
	if src.Autosave.ProbeInterval > 0 {
		dst.Autosave.ProbeInterval = src.Autosave.ProbeInterval
	}
	// backend
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	if src.Backend.PageID != "" {
		dst.Backend.PageID = src.Backend.PageID
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvProjectDir)); v != "" {
		cfg.General.ProjectDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRemoteSave)); v != "" {
		cfg.General.RemoteSave = truthy(v)
	}
	envInt(EnvHistoryDepth, &cfg.Editor.HistoryDepth)
	envInt(EnvDebounceMs, &cfg.Autosave.DebounceMs)
	envInt(EnvMaxRetries, &cfg.Autosave.MaxRetries)
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	envInt(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	if v := strings.TrimSpace(os.Getenv(EnvBackendPageID)); v != "" {
		cfg.Backend.PageID = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"general.project_dir":  EnvProjectDir,
	"general.remote_save":  EnvRemoteSave,
	"editor.history_depth": EnvHistoryDepth,
	"autosave.debounce_ms": EnvDebounceMs,
	"autosave.max_retries": EnvMaxRetries,
	"backend.base_url":     EnvBackendURL,
	"backend.timeout_ms":   EnvBackendTimeoutMs,
	"backend.page_id":      EnvBackendPageID,
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Timeout returns the backend HTTP timeout, falling back to the default when unset.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return ms(Defaults().Backend.TimeoutMs)
	}
	return ms(b.TimeoutMs)
}

// CoalesceWindow returns the history coalescing window.
func (e EditorConfig) CoalesceWindow() time.Duration { return ms(e.CoalesceWindowMs) }

func (a AutosaveConfig) Debounce() time.Duration  { return ms(a.DebounceMs) }
func (a AutosaveConfig) BaseDelay() time.Duration { return ms(a.BaseDelayMs) }
func (a AutosaveConfig) MaxDelay() time.Duration  { return ms(a.MaxDelayMs) }
func (a AutosaveConfig) SavedHold() time.Duration { return ms(a.SavedHoldMs) }

// Probe returns the connectivity probe interval.
func (a AutosaveConfig) Probe() time.Duration { return time.Duration(a.ProbeInterval) * time.Second }
