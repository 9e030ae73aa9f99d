package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"harvest/internal/storage"
)

/*
Sink stores documents in Postgres.

Each collection is a table with a BIGSERIAL id and a JSONB body, created on
first use. A schema-qualified collection ("scrape.cars") also creates the
schema. Submit returns the generated id via RETURNING.
*/
type Sink struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]storage.TableSpec
}

func init() {
	storage.Register("postgres", Open)
}

// Open creates a connection pool for cfg.DSN.
func Open(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Sink{pool: pool, ensured: map[string]storage.TableSpec{}}, nil
}

func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

func (s *Sink) Submit(ctx context.Context, doc storage.Document) (string, error) {
	spec, err := s.ensureTable(ctx, doc.Collection)
	if err != nil {
		return "", err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	var id int64
	if err := s.pool.QueryRow(ctx, buildInsertSQL(spec), doc.Args()...).Scan(&id); err != nil {
		return "", fmt.Errorf("postgres: insert into %s: %w", spec.Name, err)
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
	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		return storage.TableSpec{}, err
	}
	if schemaSQL != "" {
		if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
			return storage.TableSpec{}, fmt.Errorf("create schema for %s: %w", spec.Name, err)
		}
	}
	if _, err := s.pool.Exec(ctx, tableSQL); err != nil {
		return storage.TableSpec{}, fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	s.ensured[collection] = spec
	return spec, nil
}

// buildCreateSQL returns the CREATE SCHEMA statement (empty for unqualified
// names) and the CREATE TABLE statement.
func buildCreateSQL(spec storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	schema, _ := storage.SplitTableName(spec.Name)
	if schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	}

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
			return "", "", fmt.Errorf("column %s: %w", c.Name, err)
		}
		b.WriteString(pgx.Identifier{c.Name}.Sanitize())
		b.WriteString(" ")
		b.WriteString(typ)
		if c.Type != storage.TypeID && !c.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return schemaSQL, b.String(), nil
}

func buildInsertSQL(spec storage.TableSpec) string {
	cols := spec.InsertColumns()
	quoted := make([]string, len(cols))
	ph := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		ph[i] = "$" + strconv.Itoa(i+1)
		if c == "body" {
			ph[i] += "::jsonb"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		tableIdent(spec.Name), strings.Join(quoted, ", "), strings.Join(ph, ", "), pgx.Identifier{"id"}.Sanitize())
}

func mapType(logical string) (string, error) {
	switch logical {
	case storage.TypeID:
		return "BIGSERIAL PRIMARY KEY", nil
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeJSON:
		return "JSONB", nil
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	default:
		return "", fmt.Errorf("unsupported type %q", logical)
	}
}

func tableIdent(name string) string {
	schema, table := storage.SplitTableName(name)
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}
