package mux

import (
	"context"
	"fmt"
	"time"

	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/util"
)

const (
	KindOllama    = "ollama"
	KindOpenai    = "openai"
	KindLangchain = "langchain"

	RoleUser = "user"

	DefaultTimeout = 5 * time.Minute
)

// Recognizer sends one image to a vision model server and returns the text to show.
type Recognizer interface {
	Name() string
	Index() int
	Model() string

	Recognize(ctx context.Context, img *encode.Image) (string, error)
}

type Conf struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Server string `yaml:"server,omitempty"`
	Model  string `yaml:"model,omitempty"`
	// builtin name ("plain", "detailed") or the literal prompt
	Prompt string `yaml:"prompt,omitempty"`
	Index  int    `yaml:"index,omitempty"`
	Debug  bool   `yaml:"debug,omitempty"`
	Proxy  string `yaml:"proxy,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`

	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Stream      *bool    `yaml:"stream,omitempty"`

	// langchain only, which client the sdk drives: ollama or openai
	Driver string `yaml:"driver,omitempty"`
	Apikey string `yaml:"apikey,omitempty"`
}

// Complete fills in the per-kind server and model defaults and checks the server url.
func (c *Conf) Complete() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	kind := c.Kind
	if kind == KindLangchain {
		if c.Driver == "" {
			c.Driver = KindOllama
		}
		kind = c.Driver
	}
	switch kind {
	case KindOllama:
		if c.Server == "" {
			c.Server = "http://localhost:11434"
		}
		if c.Model == "" {
			c.Model = "llama3.2-vision"
		}
	case KindOpenai:
		if c.Server == "" {
			c.Server = "http://localhost:1234"
		}
		if c.Model == "" {
			c.Model = "llava-phi-3-mini"
		}
	default:
		return fmt.Errorf("backend '%s' has unknown kind '%s'", c.Name, c.Kind)
	}
	if c.Name == "" {
		c.Name = c.Kind
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if _, err := util.ParseUrl(c.Server); err != nil {
		return fmt.Errorf("backend '%s' server: %w", c.Name, err)
	}
	return nil
}

// WithTimeout bounds one upstream call.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
