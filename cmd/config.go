package main

import (
	"fmt"
	"os"
	"time"

	"github.com/yylt/ocrmux/mux"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr    = ":8501"
	defaultTempDir = "temp"
	defaultLogo    = "MinimalDevopsLogo.png"
)

type Config struct {
	Addr      string        `yaml:"address"`
	TempDir   string        `yaml:"temp_dir,omitempty"`
	Retention time.Duration `yaml:"retention,omitempty"`
	Logo      string        `yaml:"logo,omitempty"`
	Title     string        `yaml:"title,omitempty"`
	// largest accepted image in bytes
	MaxUpload int64 `yaml:"max_upload,omitempty"`
	// default prompt of backends which set none
	Prompt   string     `yaml:"prompt,omitempty"`
	Backends []mux.Conf `yaml:"backends,omitempty"`
}

// DefaultConfig serves llama3.2-vision on ollama and llava-phi-3-mini on LM Studio.
func DefaultConfig() *Config {
	return &Config{
		Backends: []mux.Conf{
			{Name: "llama-vision", Kind: mux.KindOllama, Index: 10},
			{Name: "llava-phi", Kind: mux.KindOpenai, Index: 5},
		},
	}
}

// LoadConfigmap reads configmap data from config-path, an empty path gives the default config
func LoadConfigmap(fp string) (*Config, error) {
	var (
		cfg = &Config{}
	)
	if fp == "" {
		cfg = DefaultConfig()
		cfg.complete()
		return cfg, nil
	}
	configmapBytes, err := os.ReadFile(fp)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %s, error: %v", fp, err)
	}

	err = yaml.Unmarshal(configmapBytes, cfg)
	if nil != err {
		return nil, fmt.Errorf("failed to parse configmap, error: %v", err)
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultConfig().Backends
	}
	cfg.complete()
	return cfg, nil
}

func (c *Config) complete() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.TempDir == "" {
		c.TempDir = defaultTempDir
	}
	if c.Logo == "" {
		c.Logo = defaultLogo
	}
	for i := range c.Backends {
		if c.Backends[i].Prompt == "" {
			c.Backends[i].Prompt = c.Prompt
		}
	}
}
