package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// Logical column types.
const (
	TypeID        = "id"        // auto-generated integer primary key
	TypeText      = "text"      // short text
	TypeJSON      = "json"      // the document body
	TypeTimestamp = "timestamp" // UTC timestamp
)

// TableSpec describes a document table. The SQL backends map the logical
// column types onto their own dialect.
type TableSpec struct {
	// Name is the table name, optionally schema-qualified ("public.cars").
	Name    string
	Columns []ColumnSpec
}

type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
}

// Columns every document table carries, in insert order after id.
var documentColumns = []ColumnSpec{
	{Name: "id", Type: TypeID},
	{Name: "doc_type", Type: TypeText},
	{Name: "source_url", Type: TypeText, Nullable: true},
	{Name: "body", Type: TypeJSON},
	{Name: "created_at", Type: TypeTimestamp},
}

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DocumentTable describes the table a collection is stored in. The
// collection name is used as the table name and must be a plain
// (optionally schema-qualified) identifier.
func DocumentTable(collection string) (TableSpec, error) {
	parts := strings.Split(collection, ".")
	if len(parts) > 2 {
		return TableSpec{}, fmt.Errorf("collection %q: at most one schema qualifier allowed", collection)
	}
	for _, p := range parts {
		if !reIdent.MatchString(p) {
			return TableSpec{}, fmt.Errorf("collection %q is not a valid table name", collection)
		}
	}
	return TableSpec{Name: collection, Columns: append([]ColumnSpec(nil), documentColumns...)}, nil
}

// SplitTableName returns the schema (possibly "") and the bare table name.
func SplitTableName(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// InsertColumns are the columns a backend binds on insert, in order.
func (t TableSpec) InsertColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Type == TypeID {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// Args returns the insert values for doc, matching InsertColumns.
func (d Document) Args() []any {
	var src any
	if d.SourceURL != "" {
		src = d.SourceURL
	}
	return []any{d.DocType, src, string(d.Body), d.CreatedAt.UTC()}
}
