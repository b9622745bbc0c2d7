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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memTokens) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memTokens) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

func stubKeyring(t *testing.T) memTokens {
	t.Helper()
	m := memTokens{}
	old := SetTokenStore(m)
	t.Cleanup(func() { SetTokenStore(old) })
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvRunwareAPIKey, "")
	return m
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	stubKeyring(t)
	cfg, key, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	def := Defaults()
	if cfg.Store.Driver != def.Store.Driver || cfg.Generator.Model != DefaultModel {
		t.Fatalf("defaults not applied: %#v", cfg)
	}
	if key != "" {
		t.Fatalf("expected empty api key, got %q", key)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	stubKeyring(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "store:\n  driver: FILE\n  dir: /tmp/pd\ngenerator:\n  kind: proxy\n  url: http://localhost:3000/api/generateImage\n  timeout_ms: 5000\nlogging:\n  level: debug\n  source: true\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvModel, "rundiffusion:133005@920957")
	t.Setenv(EnvStoreDriver, "")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Driver != DriverFile || cfg.Store.Dir != "/tmp/pd" {
		t.Fatalf("store not merged: %#v", cfg.Store)
	}
	if cfg.Generator.Kind != GeneratorProxy || cfg.Generator.Timeout() != 5*time.Second {
		t.Fatalf("generator not merged: %#v", cfg.Generator)
	}
	if cfg.Generator.Model != "rundiffusion:133005@920957" {
		t.Fatalf("model env override not applied: %q", cfg.Generator.Model)
	}
	if cfg.Generator.Width != 768 || cfg.Generator.Height != 1344 {
		t.Fatalf("unset fields should keep defaults: %#v", cfg.Generator)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Source {
		t.Fatalf("logging not merged: %#v", cfg.Logging)
	}
	if env, ok := EnvOverrideFor("generator.model"); !ok || env != EnvModel {
		t.Fatalf("EnvOverrideFor(generator.model) = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("store.driver"); ok {
		t.Fatalf("store.driver is not overridden")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	stubKeyring(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAPIKeyFromKeyringAndEnv(t *testing.T) {
	stubKeyring(t)
	if err := SaveAPIKey("  from-keyring "); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "none.yaml")
	_, key, err := Load(path)
	if err != nil || key != "from-keyring" {
		t.Fatalf("keyring key = %q, %v", key, err)
	}

	t.Setenv(EnvRunwareAPIKey, "from-runware-env")
	if _, key, _ = Load(path); key != "from-runware-env" {
		t.Fatalf("RUNWARE_API_KEY should win over keyring, got %q", key)
	}
	t.Setenv(EnvAPIKey, "from-pdk-env")
	if _, key, _ = Load(path); key != "from-pdk-env" {
		t.Fatalf("PDK_API_KEY should win, got %q", key)
	}
}

func TestSaveAPIKeyEmptyDeletes(t *testing.T) {
	m := stubKeyring(t)
	if err := SaveAPIKey(""); err != nil {
		t.Fatalf("deleting a missing key should be a no-op: %v", err)
	}
	_ = SaveAPIKey("k")
	if err := SaveAPIKey(""); err != nil {
		t.Fatalf("SaveAPIKey(\"\"): %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("key not deleted: %v", m)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	stubKeyring(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Store.Driver = DriverPostgres
	cfg.Store.DSN = "postgres://u:p@localhost:5432/pd"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Store.Driver != DriverPostgres || got.Store.DSN != cfg.Store.DSN {
		t.Fatalf("round trip mismatch: %#v", got.Store)
	}
}
