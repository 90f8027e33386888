package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenFn is the overridable seam used to open a source for reading.
type OpenFn func(ctx context.Context, url string, insecure bool) (io.ReadCloser, error)

// openFn opens file://, bare local paths and http(s) URLs. Tests can replace
// it to avoid real I/O.
var openFn OpenFn = openSource

// httpTimeout bounds the wait for response headers. Body reads are bounded
// only by ctx, since Label streams whole sources.
const httpTimeout = 60 * time.Second

func openSource(ctx context.Context, url string, insecure bool) (io.ReadCloser, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("open: empty url")
	}

	if !isHTTP(url) {
		path := strings.TrimPrefix(url, "file://")
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = httpTimeout
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per source
	}
	client := &http.Client{Transport: tr}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "headerprobe/1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

func isHTTP(url string) bool {
	l := strings.ToLower(url)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// peek reads at most n bytes from the start of url. The bool reports whether
// the source held more than n bytes.
func peek(ctx context.Context, url string, n int, insecure bool) ([]byte, bool, error) {
	if n <= 0 {
		return nil, false, fmt.Errorf("peek: n must be > 0")
	}

	rc, err := openFn(ctx, url, insecure)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()

	// One extra byte tells a source of exactly n bytes from a longer one.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, int64(n)+1)); err != nil {
		return nil, false, err
	}
	b := buf.Bytes()
	if len(b) > n {
		return b[:n], true, nil
	}
	return b, false, nil
}

// cutToLastNewline drops a trailing partial line so a truncated sample does
// not end in half a record.
func cutToLastNewline(b []byte) []byte {
	if i := bytes.LastIndexByte(b, '\n'); i > 0 {
		return b[:i+1]
	}
	return b
}
