// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	var agent AgentConfig
	if got := agent.MaxIterationsOrDefault(); got != 5 {
		t.Errorf("MaxIterationsOrDefault: got %d", got)
	}
	if got := agent.HistoryWindowOrDefault(); got != 6 {
		t.Errorf("HistoryWindowOrDefault: got %d", got)
	}
	if got := agent.ToolTimeoutOrDefault(); got != 30*time.Second {
		t.Errorf("ToolTimeoutOrDefault: got %v", got)
	}
	var cache CacheConfig
	if got := cache.ToolTTLOrDefault(); got != time.Hour {
		t.Errorf("ToolTTLOrDefault: got %v", got)
	}
	var events EventsConfig
	if got := events.IdleTTLOrDefault(); got != 5*time.Minute {
		t.Errorf("IdleTTLOrDefault: got %v", got)
	}
	var db TRNADBConfig
	if got := db.MaxResultsOrDefault(); got != 10 {
		t.Errorf("MaxResultsOrDefault: got %d", got)
	}
	var gb GenomeBrowserConfig
	if got := gb.MaxFeaturesOrDefault(); got != 50 {
		t.Errorf("MaxFeaturesOrDefault: got %d", got)
	}
	gb.MaxFeatures = 20
	if got := gb.MaxFeaturesOrDefault(); got != 20 {
		t.Errorf("MaxFeaturesOrDefault configured: got %d", got)
	}
	gb.MaxFeatures = 500
	if got := gb.MaxFeaturesOrDefault(); got != 50 {
		t.Errorf("MaxFeaturesOrDefault above hard cap: got %d", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trnachat.yaml")
	content := []byte(`
api:
  port: 9090
agent:
  max_iterations: 3
  tool_timeout: "10s"
storage:
  cache:
    type: memory
    tool_ttl: 60
tools:
  trnadb:
    path: "data/human_yeast_mouse.db"
    max_results: 5
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api.port: got %d", cfg.API.Port)
	}
	if cfg.Agent.MaxIterationsOrDefault() != 3 {
		t.Errorf("max_iterations: got %d", cfg.Agent.MaxIterationsOrDefault())
	}
	if cfg.Agent.ToolTimeoutOrDefault() != 10*time.Second {
		t.Errorf("tool_timeout: got %v", cfg.Agent.ToolTimeoutOrDefault())
	}
	if cfg.Storage.Cache.ToolTTLOrDefault() != time.Minute {
		t.Errorf("tool_ttl: got %v", cfg.Storage.Cache.ToolTTLOrDefault())
	}
	if cfg.Tools.TRNADB.MaxResultsOrDefault() != 5 {
		t.Errorf("trnadb.max_results: got %d", cfg.Tools.TRNADB.MaxResultsOrDefault())
	}
}

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("TRNACHAT_TEST_KEY", "sk-test")
	cfg := &Config{
		Model: ModelConfig{LLM: LLMConfig{Providers: map[string]ProviderConfig{
			"openai": {APIKey: "${TRNACHAT_TEST_KEY}"},
		}}},
	}
	if err := replaceEnvVars(cfg); err != nil {
		t.Fatalf("replaceEnvVars: %v", err)
	}
	if got := cfg.Model.LLM.Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("api_key: got %q", got)
	}
}
