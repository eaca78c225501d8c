package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	App        AppConfig                 `json:"app"`
	Server     ServerConfig              `json:"server"`
	Providers  map[string]ProviderConfig `json:"providers"`
	Tour       TourConfig                `json:"tour"`
	Memory     MemoryConfig              `json:"memory"`
	Governance GovernanceConfig          `json:"governance"`
}

type AppConfig struct {
	Name string `json:"name"`
}

type ServerConfig struct {
	Addr string `json:"addr"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

// TourConfig holds credentials for the Korea tourism catalog API.
type TourConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	// RegionsPath overrides the embedded region table when set.
	RegionsPath string `json:"regions_path,omitempty"`
}

type MemoryConfig struct {
	Type string `json:"type"` // memory or sqlite
	Path string `json:"path"`
}

// GovernanceConfig restricts what the research agent may do.
type GovernanceConfig struct {
	DeniedTools    []string `json:"denied_tools,omitempty"`
	DeniedPatterns []string `json:"denied_patterns,omitempty"`
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Tour.BaseURL == "" {
		c.Tour.BaseURL = "https://apis.data.go.kr/B551011/KorService2"
	}
	if c.Tour.APIKey == "" {
		c.Tour.APIKey = os.Getenv("KOREA_TOUR_API_KEY")
	}
	if c.Memory.Type == "" {
		c.Memory.Type = "memory"
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}
