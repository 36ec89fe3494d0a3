package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/parse"
	"github.com/yylt/ocrmux/pkg/util"
	"k8s.io/klog/v2"
)

const (
	completionsPath = "/v1/chat/completions"

	defaultTemperature = 0.7
	// -1 lets the server generate until the model stops
	defaultMaxTokens = -1
)

// Openai talks to an openai compatible chat completions server, such as LM Studio.
type Openai struct {
	c  *mux.Conf
	mu sync.Mutex

	rest   *resty.Client
	url    string
	prompt string
}

func New(c *mux.Conf) (*Openai, error) {
	if err := c.Complete(); err != nil {
		return nil, err
	}
	hc := util.NewDebugHTTPClient(c.Proxy, c.Debug)
	if hc == nil {
		return nil, fmt.Errorf("%s: invalid proxy '%s'", c.Name, c.Proxy)
	}
	rest := resty.NewWithClient(hc)
	if c.Apikey != "" {
		rest.SetAuthToken(c.Apikey)
	}
	return &Openai{
		c:      c,
		rest:   rest,
		url:    util.JoinUrl(c.Server, completionsPath),
		prompt: mux.Prompt(c.Prompt),
	}, nil
}

func (d *Openai) Name() string {
	return d.c.Name
}

func (d *Openai) Index() int {
	return d.c.Index
}

func (d *Openai) Model() string {
	return d.c.Model
}

func (d *Openai) Recognize(ctx context.Context, img *encode.Image) (string, error) {
	if !d.mu.TryLock() {
		return "", pkg.ErrBusy
	}
	defer d.mu.Unlock()

	ctx, cancel := mux.WithTimeout(ctx, d.c.Timeout)
	defer cancel()

	resp, err := d.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(d.payload(img)).
		Post(d.url)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", d.Name(), err)
	}
	body := string(resp.Body())
	if resp.StatusCode() != http.StatusOK {
		return "", &pkg.StatusError{Code: resp.StatusCode(), Body: body}
	}
	klog.V(4).Infof("%s response: %s", d.Name(), body)
	return parse.Completion(body)
}

func (d *Openai) payload(img *encode.Image) *chatReq {
	req := &chatReq{
		Model: d.c.Model,
		Messages: []message{
			{
				Role: mux.RoleUser,
				Content: []part{
					{Type: partText, Text: d.prompt},
					{Type: partImage, ImageURL: &imageURL{URL: img.DataURL()}},
				},
			},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	if d.c.Temperature != nil {
		req.Temperature = *d.c.Temperature
	}
	if d.c.MaxTokens != nil {
		req.MaxTokens = *d.c.MaxTokens
	}
	return req
}
