package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/parse"
)

func serve(t *testing.T, code int, body string, got *chatReq, auth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		w.WriteHeader(code)
		w.Write([]byte(body))
	}))
}

func newBackend(t *testing.T, srv *httptest.Server, c *mux.Conf) *Openai {
	t.Helper()
	c.Kind = mux.KindOpenai
	c.Server = srv.URL
	o, err := New(c)
	require.NoError(t, err)
	return o
}

func TestRecognize(t *testing.T) {
	var got chatReq
	srv := serve(t, http.StatusOK, `{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"  RECEIPT\nTotal 12.00 \n"}}]}`, &got, nil)
	defer srv.Close()

	var (
		o   = newBackend(t, srv, &mux.Conf{Name: "lmstudio"})
		img = encode.FromBytes("scan.png", []byte("fake"))
	)
	text, err := o.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "RECEIPT\nTotal 12.00", text)

	assert.Equal(t, "llava-phi-3-mini", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, -1, got.MaxTokens)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, part{Type: "text", Text: mux.PlainPrompt}, got.Messages[0].Content[0])
	assert.Equal(t, "image_url", got.Messages[0].Content[1].Type)
	require.NotNil(t, got.Messages[0].Content[1].ImageURL)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
	assert.Equal(t, img.DataURL(), got.Messages[0].Content[1].ImageURL.URL)
}

func TestRecognizeOverrides(t *testing.T) {
	var (
		got  chatReq
		auth string
		temp = 0.0
		max  = 300
	)
	srv := serve(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`, &got, &auth)
	defer srv.Close()

	o := newBackend(t, srv, &mux.Conf{Temperature: &temp, MaxTokens: &max, Apikey: "secret", Prompt: "read"})
	_, err := o.Recognize(context.Background(), encode.FromBytes("a.jpg", []byte("x")))
	require.NoError(t, err)

	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, 300, got.MaxTokens)
	assert.Equal(t, "read", got.Messages[0].Content[0].Text)
	assert.Equal(t, "Bearer secret", auth)
}

func TestRecognizeNoChoices(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"choices":[]}`, nil, nil)
	defer srv.Close()

	text, err := newBackend(t, srv, &mux.Conf{}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, parse.NoTextFound, text)
}

func TestRecognizeInvalidJSON(t *testing.T) {
	srv := serve(t, http.StatusOK, "model is loading", nil, nil)
	defer srv.Close()

	_, err := newBackend(t, srv, &mux.Conf{}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.Error(t, err)
	body, ok := pkg.RawBody(err)
	assert.True(t, ok)
	assert.Equal(t, "model is loading", body)
}

func TestRecognizeStatus(t *testing.T) {
	srv := serve(t, http.StatusInternalServerError, `{"error":"no model loaded"}`, nil, nil)
	defer srv.Close()

	_, err := newBackend(t, srv, &mux.Conf{}).Recognize(context.Background(), encode.FromBytes("a.png", []byte("x")))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, pkg.StatusCode(err))
	assert.Equal(t, `Error: 500 - {"error":"no model loaded"}`, err.Error())
}
