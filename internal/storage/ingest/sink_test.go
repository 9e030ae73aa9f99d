package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"harvest/internal/storage"
)

type captured struct {
	method, path, auth string
	body               map[string]any
}

func newServer(t *testing.T, status int, resp string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		_ = json.Unmarshal(b, &got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func open(t *testing.T, base string) storage.Sink {
	t.Helper()
	s, err := Open(context.Background(), storage.Config{
		Kind:   "ingest",
		Ingest: storage.IngestConfig{BaseURL: base + "/api/", APIKey: "secret", Header: "Authorization", Prefix: "Bearer "},
	})
	require.NoError(t, err)
	return s
}

func TestSubmit_PostsBodyWithBearerKey(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusCreated, `{"id": "abc123"}`, &got)

	id, err := open(t, srv.URL).Submit(context.Background(), storage.Document{
		Collection: "cars", DocType: "listing", Body: []byte(`{"pris":150000,"model":2018}`),
	})
	require.NoError(t, err)
	require.Equal(t, "abc123", id)

	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/api/cars/listing", got.path)
	require.Equal(t, "Bearer secret", got.auth)
	require.Equal(t, map[string]any{"pris": float64(150000), "model": float64(2018)}, got.body)
}

func TestSubmit_UnderscoreIDAndMissingID(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusOK, `{"_id": 17}`, &got)
	id, err := open(t, srv.URL).Submit(context.Background(), storage.Document{Collection: "c", DocType: "d", Body: []byte(`{}`)})
	require.NoError(t, err)
	require.Equal(t, "17", id)

	srv2 := newServer(t, http.StatusAccepted, `{"status":"queued"}`, &got)
	id, err = open(t, srv2.URL).Submit(context.Background(), storage.Document{Collection: "c", DocType: "d", Body: []byte(`{}`)})
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestSubmit_ErrorStatus(t *testing.T) {
	t.Parallel()

	var got captured
	srv := newServer(t, http.StatusUnauthorized, `{"error":"bad key"}`, &got)
	_, err := open(t, srv.URL).Submit(context.Background(), storage.Document{Collection: "c", DocType: "d", Body: []byte(`{}`)})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "status 401"), err.Error())
	require.Contains(t, err.Error(), "bad key")
}

func TestOpen_RejectsBadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), storage.Config{Ingest: storage.IngestConfig{BaseURL: "localhost:8080"}})
	require.Error(t, err)
}
