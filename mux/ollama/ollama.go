package ollama

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/ollama/ollama/api"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/parse"
	"github.com/yylt/ocrmux/pkg/util"
	"k8s.io/klog/v2"
)

const chatPath = "/api/chat"

// Ollama talks to the ollama chat api and reads its JSON-lines answer.
type Ollama struct {
	c  *mux.Conf
	mu sync.Mutex

	rest   *resty.Client
	url    string
	prompt string
}

func New(c *mux.Conf) (*Ollama, error) {
	if err := c.Complete(); err != nil {
		return nil, err
	}
	hc := util.NewDebugHTTPClient(c.Proxy, c.Debug)
	if hc == nil {
		return nil, fmt.Errorf("%s: invalid proxy '%s'", c.Name, c.Proxy)
	}
	return &Ollama{
		c:      c,
		rest:   resty.NewWithClient(hc),
		url:    util.JoinUrl(c.Server, chatPath),
		prompt: mux.Prompt(c.Prompt),
	}, nil
}

func (d *Ollama) Name() string {
	return d.c.Name
}

func (d *Ollama) Index() int {
	return d.c.Index
}

func (d *Ollama) Model() string {
	return d.c.Model
}

func (d *Ollama) Recognize(ctx context.Context, img *encode.Image) (string, error) {
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
	return parse.Lines(body)
}

func (d *Ollama) payload(img *encode.Image) *api.ChatRequest {
	req := &api.ChatRequest{
		Model: d.c.Model,
		Messages: []api.Message{
			{
				Role:    mux.RoleUser,
				Content: d.prompt,
				Images:  []api.ImageData{api.ImageData(img.Raw)},
			},
		},
		Stream: d.c.Stream,
	}
	opts := map[string]interface{}{}
	if d.c.Temperature != nil {
		opts["temperature"] = *d.c.Temperature
	}
	if d.c.MaxTokens != nil {
		opts["num_predict"] = *d.c.MaxTokens
	}
	if len(opts) > 0 {
		req.Options = opts
	}
	return req
}
