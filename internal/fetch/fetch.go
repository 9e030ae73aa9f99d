// Package fetch is the HTTP transport for pages and images.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"

	"harvest/internal/metrics"
)

// maxErrBody caps the response excerpt carried by StatusError.
const maxErrBody = 4 << 10

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string

	// Retries is the number of extra attempts after a network error, a 429
	// or a 5xx. Zero disables retrying.
	Retries      int
	RetryWait    time.Duration
	MaxRetryWait time.Duration

	// Job labels the HTTP metrics.
	Job string
}

// Client fetches pages and images.
type Client struct {
	http *resty.Client
	opts Options

	// sleep waits between retries; returns false when ctx is done.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New returns a Client for opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 2 * time.Second
	}
	if opts.MaxRetryWait <= 0 {
		opts.MaxRetryWait = time.Minute
	}
	if opts.Job == "" {
		opts.Job = "harvest"
	}

	rc := resty.New()
	rc.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	rc.SetHeaders(opts.Headers)

	return &Client{http: rc, opts: opts, sleep: sleepContext}
}

// GetText fetches a page and returns its body decoded to UTF-8.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	body, header, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	text, err := decodeBody(body, header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", rawURL, err)
	}
	return text, nil
}

// GetBytes fetches rawURL and returns the raw body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := c.get(ctx, rawURL)
	return body, err
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	attempts := c.opts.Retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, header, status, err := c.attempt(ctx, rawURL)
		if err == nil {
			return body, header, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == attempts || !retryable(status) {
			break
		}
		if !c.sleep(ctx, nextRetryDelay(status, header, attempt, c.opts.RetryWait, c.opts.MaxRetryWait)) {
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, lastErr
}

func (c *Client) attempt(ctx context.Context, rawURL string) ([]byte, http.Header, int, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(rawURL)
	reqDur := time.Since(start)
	if err != nil {
		metrics.RecordHTTP(c.opts.Job, 0, err, reqDur, -1, -1)
		return nil, nil, 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	var attemptErr error
	if status < 200 || status > 299 {
		attemptErr = &StatusError{URL: rawURL, Status: status, Body: excerpt(body)}
	}
	metrics.RecordHTTP(c.opts.Job, status, attemptErr, resp.Time(), time.Since(start), int64(len(body)))
	return body, resp.Header(), status, attemptErr
}

func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func excerpt(body []byte) string {
	if len(body) > maxErrBody {
		body = body[:maxErrBody]
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
}

// nextRetryDelay honours Retry-After on 429, otherwise backs off
// exponentially from base, clamped to max. Network errors wait at least
// ten seconds.
func nextRetryDelay(status int, h http.Header, attempt int, base, max time.Duration) time.Duration {
	if status == http.StatusTooManyRequests {
		if ra := parseRetryAfter(h); ra > 0 {
			return ra
		}
	}

	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	if status == 0 && d < 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// decodeBody converts body to UTF-8 using the Content-Type charset, falling
// back to sniffing <meta> tags when the body is not valid UTF-8.
func decodeBody(body []byte, contentType string) (string, error) {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if name := params["charset"]; name != "" {
			enc, err := htmlindex.Get(name)
			if err != nil {
				return "", fmt.Errorf("unsupported charset %q", name)
			}
			if n, _ := htmlindex.Name(enc); n == "utf-8" {
				return string(body), nil
			}
			out, err := enc.NewDecoder().Bytes(body)
			if err != nil {
				return "", fmt.Errorf("decode %s: %w", name, err)
			}
			return string(out), nil
		}
	}

	if utf8.Valid(body) {
		return string(body), nil
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(out), nil
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// trimBOM drops a leading UTF-8 byte order mark.
func trimBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}
