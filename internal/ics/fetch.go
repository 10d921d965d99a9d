package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	appLog "releasecal/internal/log"
)

// ErrUnsupportedScheme is returned for sources that are neither http(s) nor file.
var ErrUnsupportedScheme = errors.New("unsupported calendar source scheme")

// Opener opens a readable stream for a calendar source. Callers own the
// returned stream and must close it.
type Opener interface {
	Open(ctx context.Context, src *url.URL) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, src *url.URL) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, src *url.URL) (io.ReadCloser, error) {
	return f(ctx, src)
}

// HTTPOpener opens http, https and file sources. It adds no retries and
// no caching; every Open goes to the network.
type HTTPOpener struct {
	client    *http.Client
	userAgent string
}

// NewHTTPOpener creates an opener whose client gives up after timeout.
// A non-positive timeout means 15 seconds.
func NewHTTPOpener(timeout time.Duration) *HTTPOpener {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPOpener{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: "releasecal",
	}
}

// Open implements Opener. A non-2xx response is reported as an error and
// its body is closed.
func (o *HTTPOpener) Open(ctx context.Context, src *url.URL) (io.ReadCloser, error) {
	if src == nil {
		return nil, errors.New("source URL is nil")
	}

	switch src.Scheme {
	case "file":
		return os.Open(src.Path)
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, src.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")
	req.Header.Set("User-Agent", o.userAgent)

	appLog.Debug("ics fetch start", "url", RedactURL(src.String()))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}

	appLog.Debug("ics fetch connected", "url", RedactURL(src.String()), "status", resp.StatusCode)
	return resp.Body, nil
}

// RedactURL hides the path and query of a calendar URL for logging, since
// published calendar links usually embed a secret token.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return "ics://...(redacted)"
	}
	if parsed.Scheme == "file" {
		return "file://" + redactedSuffix
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
