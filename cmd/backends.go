package main

import (
	"fmt"

	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/mux/langchain"
	"github.com/yylt/ocrmux/mux/ollama"
	"github.com/yylt/ocrmux/mux/openai"
	"k8s.io/klog/v2"
)

// NewBackends builds every configured backend, skipping the invalid ones.
func NewBackends(cfg *Config) (*mux.Set, error) {
	var rs []mux.Recognizer
	for i := range cfg.Backends {
		r, err := newBackend(&cfg.Backends[i])
		if err != nil {
			klog.Errorf("skip backend '%s': %v", cfg.Backends[i].Name, err)
			continue
		}
		rs = append(rs, r)
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("no usable backend in %d configured", len(cfg.Backends))
	}
	return mux.NewSet(rs...), nil
}

func newBackend(c *mux.Conf) (mux.Recognizer, error) {
	switch c.Kind {
	case mux.KindOllama:
		return ollama.New(c)
	case mux.KindOpenai:
		return openai.New(c)
	case mux.KindLangchain:
		return langchain.New(c)
	}
	return nil, fmt.Errorf("unknown kind '%s'", c.Kind)
}
