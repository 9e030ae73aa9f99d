// Package ingest submits documents to the HTTP ingest API:
//
//	POST {base}/{collection}/{docType}
//	Authorization: Bearer <key>
//
// with the record as the JSON body. The response is expected to carry the
// assigned identifier as "id" or "_id".
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"harvest/internal/storage"
)

const maxErrBody = 4 << 10

type Sink struct {
	http *resty.Client
	base string
}

func init() {
	storage.Register("ingest", Open)
}

// Open validates the ingest settings and builds the client.
func Open(_ context.Context, cfg storage.Config) (storage.Sink, error) {
	ic := cfg.Ingest
	u, err := url.Parse(ic.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("ingest: invalid base url %q", ic.BaseURL)
	}

	timeout := ic.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	header := ic.Header
	if header == "" {
		header = "Authorization"
	}

	c := resty.New()
	c.SetTimeout(timeout)
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("Accept", "application/json")
	if ic.APIKey != "" {
		c.SetHeader(header, ic.Prefix+ic.APIKey)
	}

	return &Sink{http: c, base: strings.TrimRight(ic.BaseURL, "/")}, nil
}

func (s *Sink) Close() error { return nil }

// Submit posts doc.Body. A 2xx response without an id gives "", nil.
func (s *Sink) Submit(ctx context.Context, doc storage.Document) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", s.base, url.PathEscape(doc.Collection), url.PathEscape(doc.DocType))

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(doc.Body).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("ingest: POST %s: %w", endpoint, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := resp.Body()
		if len(body) > maxErrBody {
			body = body[:maxErrBody]
		}
		return "", fmt.Errorf("ingest: POST %s: status %d: %s", endpoint, resp.StatusCode(), strings.TrimSpace(string(body)))
	}
	return responseID(resp.Body()), nil
}

func responseID(body []byte) string {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return ""
	}
	for _, k := range []string{"id", "_id"} {
		if id := storage.NormalizeID(out[k]); id != "" {
			return id
		}
	}
	return ""
}
