/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user-editable promptdeck configuration.
// The YAML file lives in the user config directory; environment variables
// (optionally seeded from a .env file) are read-only overrides at runtime.
// The image generator API key is never written to YAML: it lives in the OS
// keyring and can be overridden by PDK_API_KEY or RUNWARE_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Generator kinds.
const (
	GeneratorProxy   = "proxy"
	GeneratorRunware = "runware"
)

// DefaultModel is the Runware model used when none is configured.
const DefaultModel = "runware:101@1"

type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Dir holds the file store, the sqlite database and the lock file.
	Dir string `yaml:"dir"`
	// DSN is only used by the postgres driver.
	DSN string `yaml:"dsn"`
}

type GeneratorConfig struct {
	Kind      string `yaml:"kind"`
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type HistoryConfig struct {
	Keep int `yaml:"keep"`
}

// AppConfig is the persisted configuration.
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Store         StoreConfig     `yaml:"store"`
	Generator     GeneratorConfig `yaml:"generator"`
	Server        ServerConfig    `yaml:"server"`
	Logging       LoggingConfig   `yaml:"logging"`
	History       HistoryConfig   `yaml:"history"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Store:         StoreConfig{Driver: DriverSQLite, Dir: defaultStateDir()},
		Generator: GeneratorConfig{
			Kind:      GeneratorRunware,
			URL:       "https://api.runware.ai/v1",
			Model:     DefaultModel,
			TimeoutMs: 120000,
			Width:     768,
			Height:    1344,
		},
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		History: HistoryConfig{Keep: 50},
	}
}

// Env var names used as overrides.
const (
	EnvStoreDriver      = "PDK_STORE_DRIVER"
	EnvStateDir         = "PDK_STATE_DIR"
	EnvStoreDSN         = "PDK_STORE_DSN"
	EnvGeneratorKind    = "PDK_GENERATOR_KIND"
	EnvGeneratorURL     = "PDK_GENERATOR_URL"
	EnvModel            = "PDK_MODEL"
	EnvGeneratorTimeout = "PDK_GENERATOR_TIMEOUT_MS"
	EnvServerAddr       = "PDK_SERVER_ADDR"
	EnvLogLevel         = "PDK_LOG_LEVEL"
	EnvLogFormat        = "PDK_LOG_FORMAT"
	EnvLogSource        = "PDK_LOG_SOURCE"
	EnvLogFile          = "PDK_LOG_FILE"
	EnvAPIKey           = "PDK_API_KEY"
	EnvRunwareAPIKey    = "RUNWARE_API_KEY"
)

// Keyring coordinates for the generator API key.
const (
	keyringService = "promptdeck"
	keyringAPIKey  = "generator_api_key"
)

// TokenStore abstracts the OS keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the keyring backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	old := tokenStore
	tokenStore = ts
	return old
}

func baseDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "promptdeck")
	}
	return filepath.Join(os.TempDir(), "promptdeck")
}

func defaultStateDir() string { return filepath.Join(baseDir(), "state") }

// ConfigPath returns the per-user config file path.
func ConfigPath() string { return filepath.Join(baseDir(), "config.yaml") }

// Load reads the config file at path (ConfigPath when empty), applies defaults and
// environment overrides, and resolves the API key (env first, then keyring).
// A missing file is not an error; a malformed one is.
func Load(path string) (AppConfig, string, error) {
	// .env is optional and never overrides variables that are already set
	_ = godotenv.Load()

	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		path = ConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, "", fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, resolveAPIKey(), nil
}

func resolveAPIKey() string {
	for _, k := range []string{EnvAPIKey, EnvRunwareAPIKey} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	tok, _ := tokenStore.Get(keyringService, keyringAPIKey)
	return strings.TrimSpace(tok)
}

// Save writes the config YAML to path (ConfigPath when empty).
func Save(path string, cfg AppConfig) error {
	if strings.TrimSpace(path) == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SaveAPIKey stores the generator API key in the OS keyring. An empty key deletes it.
func SaveAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		err := tokenStore.Delete(keyringService, keyringAPIKey)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return tokenStore.Set(keyringService, keyringAPIKey, key)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	setStr(&dst.Store.Driver, strings.ToLower(src.Store.Driver))
	setStr(&dst.Store.Dir, src.Store.Dir)
	setStr(&dst.Store.DSN, src.Store.DSN)
	setStr(&dst.Generator.Kind, strings.ToLower(src.Generator.Kind))
	setStr(&dst.Generator.URL, src.Generator.URL)
	setStr(&dst.Generator.Model, src.Generator.Model)
	setInt(&dst.Generator.TimeoutMs, src.Generator.TimeoutMs)
	setInt(&dst.Generator.Width, src.Generator.Width)
	setInt(&dst.Generator.Height, src.Generator.Height)
	setStr(&dst.Server.Addr, src.Server.Addr)
	setStr(&dst.Logging.Level, strings.ToLower(src.Logging.Level))
	setStr(&dst.Logging.Format, strings.ToLower(src.Logging.Format))
	setStr(&dst.Logging.File, src.Logging.File)
	// booleans: copy directly from file so user preferences persist
	dst.Logging.Source = src.Logging.Source
	setInt(&dst.History.Keep, src.History.Keep)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	setStr(&cfg.Store.Driver, strings.ToLower(os.Getenv(EnvStoreDriver)))
	setStr(&cfg.Store.Dir, os.Getenv(EnvStateDir))
	setStr(&cfg.Store.DSN, os.Getenv(EnvStoreDSN))
	setStr(&cfg.Generator.Kind, strings.ToLower(os.Getenv(EnvGeneratorKind)))
	setStr(&cfg.Generator.URL, os.Getenv(EnvGeneratorURL))
	setStr(&cfg.Generator.Model, os.Getenv(EnvModel))
	if v := strings.TrimSpace(os.Getenv(EnvGeneratorTimeout)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setInt(&cfg.Generator.TimeoutMs, n)
		}
	}
	setStr(&cfg.Server.Addr, os.Getenv(EnvServerAddr))
	setStr(&cfg.Logging.Level, strings.ToLower(os.Getenv(EnvLogLevel)))
	setStr(&cfg.Logging.Format, strings.ToLower(os.Getenv(EnvLogFormat)))
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	setStr(&cfg.Logging.File, os.Getenv(EnvLogFile))
}

// envKeys maps dotted config keys to the env vars that override them.
var envKeys = map[string]string{
	"store.driver":         EnvStoreDriver,
	"store.dir":            EnvStateDir,
	"store.dsn":            EnvStoreDSN,
	"generator.kind":       EnvGeneratorKind,
	"generator.url":        EnvGeneratorURL,
	"generator.model":      EnvModel,
	"generator.timeout_ms": EnvGeneratorTimeout,
	"server.addr":          EnvServerAddr,
	"logging.level":        EnvLogLevel,
	"logging.format":       EnvLogFormat,
	"logging.source":       EnvLogSource,
	"logging.file":         EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the generator timeout, falling back to the default.
func (g GeneratorConfig) Timeout() time.Duration {
	if g.TimeoutMs <= 0 {
		return time.Duration(Defaults().Generator.TimeoutMs) * time.Millisecond
	}
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// EffectiveModel returns the configured model or DefaultModel.
func (g GeneratorConfig) EffectiveModel() string {
	if m := strings.TrimSpace(g.Model); m != "" {
		return m
	}
	return DefaultModel
}
