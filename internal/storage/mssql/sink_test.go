package mssql

import (
	"context"
	"os"
	"strings"
	"testing"

	"harvest/internal/storage"
)

func TestBuildCreateSQL_GuardedByObjectID(t *testing.T) {
	t.Parallel()

	spec, err := storage.DocumentTable("dbo.cars")
	if err != nil {
		t.Fatalf("DocumentTable: %v", err)
	}
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		"IF OBJECT_ID(N'[dbo].[cars]', N'U') IS NULL CREATE TABLE [dbo].[cars]",
		"[id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[source_url] NVARCHAR(2048) NULL",
		"[body] NVARCHAR(MAX) NOT NULL",
		"[created_at] DATETIMEOFFSET NOT NULL",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
}

func TestBuildInsertSQL_OutputsInsertedID(t *testing.T) {
	t.Parallel()

	spec, _ := storage.DocumentTable("cars")
	got := buildInsertSQL(spec)
	want := "INSERT INTO [cars] ([doc_type], [source_url], [body], [created_at]) OUTPUT INSERTED.[id] VALUES (@p1, @p2, @p3, @p4)"
	if got != want {
		t.Fatalf("buildInsertSQL:\n got %s\nwant %s", got, want)
	}
}

func TestMssqlIdent_EscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := mssqlIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("mssqlIdent = %s", got)
	}
}

func TestSink_Integration(t *testing.T) {
	dsn := os.Getenv("HARVEST_TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("set HARVEST_TEST_MSSQL_DSN to run against a real database")
	}

	ctx := context.Background()
	s, err := Open(ctx, storage.Config{Kind: "mssql", DSN: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Submit(ctx, storage.Document{Collection: "harvest_test_docs", DocType: "listing", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}
