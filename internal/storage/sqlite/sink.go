package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"harvest/internal/storage"
)

// Sink stores documents in SQLite, one table per collection.
//
// SQLite has no timestamp type; created_at is stored as RFC3339Nano text so
// it sorts and round-trips. body is stored as TEXT and can be queried with
// the json1 functions.
type Sink struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]storage.TableSpec
}

func init() {
	storage.Register("sqlite", Open)
}

// Open connects to cfg.DSN (a file path or ":memory:").
func Open(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db, ensured: map[string]storage.TableSpec{}}, nil
}

func (s *Sink) Close() error { return s.db.Close() }

// Submit inserts doc and returns the row id.
func (s *Sink) Submit(ctx context.Context, doc storage.Document) (string, error) {
	spec, err := s.ensureTable(ctx, doc.Collection)
	if err != nil {
		return "", err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	args := doc.Args()
	args[3] = doc.CreatedAt.UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, buildInsertSQL(spec), args...)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert into %s: %w", spec.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", nil
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Sink) ensureTable(ctx context.Context, collection string) (storage.TableSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec, ok := s.ensured[collection]; ok {
		return spec, nil
	}
	spec, err := storage.DocumentTable(collection)
	if err != nil {
		return storage.TableSpec{}, err
	}
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return storage.TableSpec{}, err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return storage.TableSpec{}, fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	s.ensured[collection] = spec
	return spec, nil
}

func buildCreateSQL(spec storage.TableSpec) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(tableIdent(spec.Name))
	b.WriteString(" (")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		typ, err := mapType(c.Type)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", c.Name, err)
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if c.Type != storage.TypeID && !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String(), nil
}

func buildInsertSQL(spec storage.TableSpec) string {
	cols := spec.InsertColumns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqlIdent(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableIdent(spec.Name),
		strings.Join(quoted, ", "),
		strings.TrimRight(strings.Repeat("?, ", len(cols)), ", "),
	)
}

func mapType(logical string) (string, error) {
	switch logical {
	case storage.TypeID:
		return "INTEGER PRIMARY KEY AUTOINCREMENT", nil
	case storage.TypeText, storage.TypeJSON, storage.TypeTimestamp:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported type %q", logical)
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func tableIdent(name string) string {
	schema, table := storage.SplitTableName(name)
	if schema == "" {
		return sqlIdent(table)
	}
	return sqlIdent(schema) + "." + sqlIdent(table)
}

// parseSQLiteTime reads created_at back. Besides RFC3339 it accepts the
// "YYYY-MM-DD HH:MM:SS[.fff][+zz:zz]" form SQLite's datetime functions emit;
// a missing zone is UTC.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("sqlite: unrecognised time %q", s)
}

// Recent returns the newest limit documents of collection, newest first.
func (s *Sink) Recent(ctx context.Context, collection string, limit int) ([]storage.Document, error) {
	spec, err := storage.DocumentTable(collection)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT doc_type, COALESCE(source_url, ''), body, created_at FROM %s ORDER BY id DESC LIMIT ?`, tableIdent(spec.Name))
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Document
	for rows.Next() {
		var (
			d       storage.Document
			body    string
			created string
		)
		if err := rows.Scan(&d.DocType, &d.SourceURL, &body, &created); err != nil {
			return nil, err
		}
		d.Collection = collection
		d.Body = []byte(body)
		if d.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
