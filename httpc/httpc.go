// thefox is a lightweight message bus providing remote method
// invocation between processes.
//
// (c) 2024, xrw67.
// Use of this source is governed by MIT license that
// can be found in the LICENSE file.

/*
Package httpc provides plain HTTP GET and POST helpers.

Each helper performs a single blocking request/response exchange and
captures the whole reply into a Response. The package is independent
of the bus and the bus doesn't depend on it.
*/
package httpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Response holds a fully read HTTP reply.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Content    []byte
}

// OK reports whether the reply carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

var client = &http.Client{Timeout: 30 * time.Second}

// Get performs a blocking GET of url.
func Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpc get %s: %w", url, err)
	}

	return do(req)
}

// Post performs a blocking POST of content to url.
func Post(
	ctx context.Context,
	url, contentType, content string) (*Response, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("httpc post %s: %w", url, err)
	}

	req.Header.Set("Content-Type", contentType)

	return do(req)
}

func do(req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpc %s %s: %w",
			req.Method, req.URL.String(), err)
	}

	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpc %s %s: read body: %w",
			req.Method, req.URL.String(), err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Content:    content,
	}, nil
}
