package dispatch

import (
	"net/http"
	"time"
)

// Transport is a wrapper around http.RoundTripper that
// lets you set default headers sent with every request.
type Transport struct {
	tr     http.RoundTripper
	header http.Header
}

// RoundTrip is the transport interceptor. Headers already present on
// the request are kept.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.header {
		if req.Header.Get(k) == "" {
			req.Header[k] = v
		}
	}

	tr := t.tr
	if tr == nil {
		tr = http.DefaultTransport
	}
	return tr.RoundTrip(req)
}

// SetHeader lets you set a default header for any subsequent request.
func (t *Transport) SetHeader(name, value string) {
	t.header.Set(name, value)
}

// GetHeader returns a header value from transport
func (t *Transport) GetHeader(name string) string {
	return t.header.Get(name)
}

// NewClient returns a new http.Client with our custom transport.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	t := &Transport{header: http.Header{}}
	t.SetHeader("Accept", "application/json")
	t.SetHeader("Content-Type", "application/json")
	t.SetHeader("Cache-Control", "no-cache")
	t.SetHeader("User-Agent", "retouch/1.0")

	return &http.Client{
		Timeout:   timeout,
		Transport: t,
	}
}
