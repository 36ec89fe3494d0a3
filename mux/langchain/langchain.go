package langchain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/parse"
	"github.com/yylt/ocrmux/pkg/util"
	"k8s.io/klog/v2"
)

// local openai compatible servers ignore the token, the sdk refuses an empty one
const placeholderToken = "lm-studio"

// Chain drives the langchaingo ollama or openai client instead of raw http.
type Chain struct {
	c  *mux.Conf
	mu sync.Mutex

	llm    llms.Model
	prompt string
}

func New(c *mux.Conf) (*Chain, error) {
	if err := c.Complete(); err != nil {
		return nil, err
	}
	hc := util.NewDebugHTTPClient(c.Proxy, c.Debug)
	if hc == nil {
		return nil, fmt.Errorf("%s: invalid proxy '%s'", c.Name, c.Proxy)
	}
	var (
		llm llms.Model
		err error
	)
	switch c.Driver {
	case mux.KindOllama:
		llm, err = ollama.New(
			ollama.WithModel(c.Model),
			ollama.WithServerURL(c.Server),
			ollama.WithHTTPClient(hc),
		)
	case mux.KindOpenai:
		token := c.Apikey
		if token == "" {
			token = placeholderToken
		}
		llm, err = openai.New(
			openai.WithBaseURL(util.JoinUrl(c.Server, "v1")),
			openai.WithToken(token),
			openai.WithModel(c.Model),
			openai.WithHTTPClient(hc),
		)
	default:
		return nil, fmt.Errorf("backend '%s' has unknown driver '%s'", c.Name, c.Driver)
	}
	if err != nil {
		klog.Errorf("%s langchain client err: %v", c.Name, err)
		return nil, err
	}
	return &Chain{
		c:      c,
		llm:    llm,
		prompt: mux.Prompt(c.Prompt),
	}, nil
}

func (d *Chain) Name() string {
	return d.c.Name
}

func (d *Chain) Index() int {
	return d.c.Index
}

func (d *Chain) Model() string {
	return d.c.Model
}

func (d *Chain) Recognize(ctx context.Context, img *encode.Image) (string, error) {
	if !d.mu.TryLock() {
		return "", pkg.ErrBusy
	}
	defer d.mu.Unlock()

	ctx, cancel := mux.WithTimeout(ctx, d.c.Timeout)
	defer cancel()

	resp, err := d.llm.GenerateContent(ctx, d.messages(img), d.options()...)
	if err != nil {
		return "", fmt.Errorf("%s generate failed: %w", d.Name(), err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return parse.NoTextFound, nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (d *Chain) messages(img *encode.Image) []llms.MessageContent {
	var imgPart llms.ContentPart
	if d.c.Driver == mux.KindOpenai {
		imgPart = llms.ImageURLPart(img.DataURL())
	} else {
		imgPart = llms.BinaryPart(img.MIME, img.Raw)
	}
	return []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(d.prompt),
				imgPart,
			},
		},
	}
}

func (d *Chain) options() []llms.CallOption {
	var opt []llms.CallOption
	if d.c.Temperature != nil {
		opt = append(opt, llms.WithTemperature(*d.c.Temperature))
	}
	if d.c.MaxTokens != nil && *d.c.MaxTokens > 0 {
		opt = append(opt, llms.WithMaxTokens(*d.c.MaxTokens))
	}
	return opt
}
