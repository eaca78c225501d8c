package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	raw := `{
		"app": {"name": "tripmate"},
		"providers": {
			"openai": {"api_key": "sk-test", "model": "gpt-4o-mini", "enabled": true},
			"claude": {"api_key": "", "model": "claude-3", "enabled": false}
		},
		"tour": {"api_key": "tour-key"},
		"memory": {"type": "sqlite", "path": "data/checkpoints.db"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)

	name, provider := cfg.GetDefaultProvider()
	if name != "openai" || provider.Model != "gpt-4o-mini" {
		t.Errorf("default provider = %s %+v", name, provider)
	}
	if cfg.Memory.Type != "sqlite" || cfg.Memory.Path != "data/checkpoints.db" {
		t.Errorf("memory = %+v", cfg.Memory)
	}

	// Defaults fill in what the file omits.
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Tour.BaseURL != "https://apis.data.go.kr/B551011/KorService2" {
		t.Errorf("tour base url = %q", cfg.Tour.BaseURL)
	}
	if cfg.Tour.APIKey != "tour-key" {
		t.Errorf("tour api key = %q", cfg.Tour.APIKey)
	}
}
