package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
)

type chatBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string   `json:"role"`
		Content string   `json:"content"`
		Images  []string `json:"images"`
	} `json:"messages"`
	Stream  *bool          `json:"stream"`
	Options map[string]any `json:"options"`
}

func newBackend(t *testing.T, srv *httptest.Server, c *mux.Conf) *Ollama {
	t.Helper()
	c.Kind = mux.KindOllama
	c.Server = srv.URL
	o, err := New(c)
	require.NoError(t, err)
	return o
}

func TestRecognize(t *testing.T) {
	var got chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n" +
			`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n" +
			`{"message":{"role":"assistant","content":"World"},"done":false}` + "\n" +
			`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer srv.Close()

	o := newBackend(t, srv, &mux.Conf{Name: "llama"})
	img := encode.FromBytes("scan.png", []byte("\x89PNG fake image bytes"))

	text, err := o.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", text)

	assert.Equal(t, "llama3.2-vision", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, mux.PlainPrompt, got.Messages[0].Content)
	assert.Equal(t, []string{img.Base64}, got.Messages[0].Images)
	assert.Nil(t, got.Stream)
	assert.Empty(t, got.Options)

	assert.Equal(t, "llama", o.Name())
	assert.Equal(t, "llama3.2-vision", o.Model())
}

func TestRecognizeOptions(t *testing.T) {
	var got chatBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"content":"line one\nline two"},"done":true}`))
	}))
	defer srv.Close()

	var (
		stream = false
		temp   = 0.1
		max    = 512
	)
	o := newBackend(t, srv, &mux.Conf{Model: "llava-phi3", Prompt: "detailed", Stream: &stream, Temperature: &temp, MaxTokens: &max, Index: 3})

	text, err := o.Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	assert.Equal(t, "llava-phi3", got.Model)
	assert.Equal(t, mux.DetailedPrompt, got.Messages[0].Content)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.Equal(t, 0.1, got.Options["temperature"])
	assert.Equal(t, float64(512), got.Options["num_predict"])
	assert.Equal(t, 3, o.Index())
}

func TestRecognizeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"llama3.2-vision\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	text, err := newBackend(t, srv, &mux.Conf{}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.Error(t, err)
	assert.Empty(t, text)
	assert.Equal(t, http.StatusNotFound, pkg.StatusCode(err))
	assert.Contains(t, err.Error(), "404")

	body, ok := pkg.RawBody(err)
	assert.True(t, ok)
	assert.Contains(t, body, "not found")
}

func TestRecognizeNotJsonLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>proxy login required</body></html>"))
	}))
	defer srv.Close()

	text, err := newBackend(t, srv, &mux.Conf{}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.Error(t, err)
	assert.Empty(t, text)
	body, ok := pkg.RawBody(err)
	assert.True(t, ok)
	assert.Contains(t, body, "proxy login required")
}

func TestRecognizeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newBackend(t, srv, &mux.Conf{Timeout: 50 * time.Millisecond}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	assert.Error(t, err)
}

func TestRecognizeBusy(t *testing.T) {
	var (
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.Write([]byte(`{"message":{"content":"done"}}`))
	}))
	defer srv.Close()

	var (
		o    = newBackend(t, srv, &mux.Conf{})
		img  = encode.FromBytes("a.png", []byte("x"))
		done = make(chan error, 1)
	)
	go func() {
		_, err := o.Recognize(context.Background(), img)
		done <- err
	}()
	<-entered

	_, err := o.Recognize(context.Background(), img)
	assert.ErrorIs(t, err, pkg.ErrBusy)

	close(release)
	assert.NoError(t, <-done)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&mux.Conf{Kind: mux.KindOllama, Server: "not a url"})
	assert.Error(t, err)

	_, err = New(&mux.Conf{Kind: mux.KindOllama, Proxy: "ftp://proxy"})
	assert.Error(t, err)
}
