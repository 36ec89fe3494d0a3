package util

import (
	"net/http"
	"net/http/httputil"
	"time"

	"k8s.io/klog/v2"
)

// dumped bodies are cut, a request carries the whole base64 image
const maxDump = 2048

type logTransport struct {
	tr    http.RoundTripper
	debug bool
}

func NewDebugHTTPClient(proxy string, debug bool) *http.Client {
	var (
		tr = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	)
	if proxy != "" {
		pu, err := ParseUrl(proxy)
		if err != nil {
			klog.Errorf("invalid proxy '%s': %v", proxy, err)
			return nil
		}
		tr.Proxy = http.ProxyURL(pu)
	}
	return &http.Client{
		Transport: &logTransport{
			tr:    tr,
			debug: debug,
		},
	}
}

// RoundTrip logs the request and response with httputil.DumpRequestOut and httputil.DumpResponse.
func (t *logTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.debug {
		dump, err := httputil.DumpRequestOut(req, true)
		if err != nil {
			return nil, err
		}
		klog.Infof("request: %s", cut(dump))
	}
	resp, err := t.tr.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.debug {
		dump, err := httputil.DumpResponse(resp, true)
		if err != nil {
			return nil, err
		}
		klog.Infof("response: %s", cut(dump))
	}
	return resp, nil
}

func cut(b []byte) string {
	if len(b) <= maxDump {
		return string(b)
	}
	return string(b[:maxDump]) + "...(truncated)"
}
