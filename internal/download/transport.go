package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport fetches url into w. progress, when non-nil, is called with the bytes
// written so far and the announced total (-1 if unknown).
type Transport interface {
	Fetch(ctx context.Context, url string, w io.Writer, progress func(written, total int64)) error
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// Temporary reports whether retrying can help: server errors, 408 and 429.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// HTTPTransport fetches over HTTP(S).
type HTTPTransport struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPTransport creates a transport whose requests time out after timeout.
func NewHTTPTransport(timeout time.Duration, userAgent string) *HTTPTransport {
	return &HTTPTransport{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, url string, w io.Writer, progress func(written, total int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	pw := &progressWriter{w: w, total: resp.ContentLength, fn: progress}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if resp.ContentLength >= 0 && pw.written != resp.ContentLength {
		return fmt.Errorf("reading %s: got %d of %d bytes", url, pw.written, resp.ContentLength)
	}
	return nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      func(written, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.fn != nil {
		p.fn(p.written, p.total)
	}
	return n, err
}
