package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }

func TestGetText_UTF8AndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "harvest-test", r.Header.Get("User-Agent"))
		require.Equal(t, "sv-SE", r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>Modellår</p>"))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "harvest-test", Headers: map[string]string{"Accept-Language": "sv-SE"}})
	got, err := c.GetText(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<p>Modellår</p>", got)
}

func TestGetText_DecodesLatin1(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<p>Modell\xe5r</p>"))
	}))
	defer srv.Close()

	got, err := New(Options{}).GetText(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<p>Modellår</p>", got)
}

func TestGetText_SniffsMetaCharset(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><head><meta charset="windows-1252"></head><body>Modell` + "\xe5" + `r</body></html>`)
	got, err := decodeBody(body, "text/html")
	require.NoError(t, err)
	require.Contains(t, got, "Modellår")
}

func TestGet_StatusErrorCarriesExcerpt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer srv.Close()

	_, err := New(Options{}).GetBytes(context.Background(), srv.URL)
	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusNotFound))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Body, maxErrBody)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := New(Options{Retries: 2})
	c.sleep = noSleep

	got, err := c.GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got)
	require.EqualValues(t, 3, calls.Load())
}

func TestGet_NoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Options{Retries: 3})
	c.sleep = noSleep

	_, err := c.GetText(context.Background(), srv.URL)
	require.True(t, IsStatus(err, http.StatusForbidden))
	require.EqualValues(t, 1, calls.Load())
}

func TestNextRetryDelay(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "7")
	require.Equal(t, 7*time.Second, nextRetryDelay(http.StatusTooManyRequests, h, 1, time.Second, time.Minute))

	require.Equal(t, time.Second, nextRetryDelay(500, nil, 1, time.Second, time.Minute))
	require.Equal(t, 4*time.Second, nextRetryDelay(500, nil, 3, time.Second, time.Minute))
	require.Equal(t, 5*time.Second, nextRetryDelay(500, nil, 10, time.Second, 5*time.Second))
	require.Equal(t, 10*time.Second, nextRetryDelay(0, nil, 1, time.Second, time.Minute))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	require.Zero(t, parseRetryAfter(h))

	h.Set("Retry-After", "-3")
	require.Zero(t, parseRetryAfter(h))

	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	d := parseRetryAfter(h)
	require.Greater(t, d, 58*time.Minute)
}

func TestReadSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	got, err := ReadSource(ctx, nil, "-", strings.NewReader("\xef\xbb\xbf<p>stdin</p>"))
	require.NoError(t, err)
	require.Equal(t, "<p>stdin</p>", got)

	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte("<p>file</p>"), 0o644))
	got, err = ReadSource(ctx, nil, path, nil)
	require.NoError(t, err)
	require.Equal(t, "<p>file</p>", got)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>remote</p>"))
	}))
	defer srv.Close()
	got, err = ReadSource(ctx, New(Options{}), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, "<p>remote</p>", got)

	_, err = ReadSource(ctx, nil, filepath.Join(t.TempDir(), "missing.html"), nil)
	require.Error(t, err)
}
