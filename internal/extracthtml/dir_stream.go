package extracthtml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// StreamFromDir runs s over every file in dir and streams a single JSON array
// to w, one object per file, adding "source_file" to each.
//
// Files are visited in name order. Unreadable or unparseable files are
// skipped. post, when non-nil, runs on each record before it is written
// (the CLI uses it for enrichment).
func StreamFromDir(ctx context.Context, w io.Writer, dir string, s *Schema, post func(Record)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("write [: %w", err)
	}

	first := true
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}

		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}

		rec, err := ExtractHTML(ctx, string(b), s)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		rec["source_file"] = e.Name()
		if post != nil {
			post(rec)
		}

		out, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.Name(), err)
		}
		if !first {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return fmt.Errorf("write comma: %w", err)
			}
		}
		first = false
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	if _, err := io.WriteString(w, "]\n"); err != nil {
		return fmt.Errorf("write ]: %w", err)
	}
	return nil
}
