package extracthtml

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// Schema maps field names to compiled pipelines. Fields are independent of
// each other, so they are evaluated concurrently.
type Schema struct {
	fields map[string]Pipeline
	names  []string

	// Concurrency caps the number of fields evaluated at once. Zero means
	// GOMAXPROCS.
	Concurrency int
}

// CompileSchema compiles every field pipeline. The first failing field is
// reported by name.
func CompileSchema(spec map[string]PipelineSpec, fragments map[string]PipelineSpec) (*Schema, error) {
	if len(spec) == 0 {
		return nil, fmt.Errorf("schema has no fields")
	}

	s := &Schema{fields: make(map[string]Pipeline, len(spec))}
	for name := range spec {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for _, name := range s.names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("schema has an empty field name")
		}
		p, err := CompilePipeline(spec[name], fragments)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		s.fields[name] = p
	}
	return s, nil
}

// Fields returns the field names, sorted.
func (s *Schema) Fields() []string { return append([]string(nil), s.names...) }

// Pipeline returns the compiled pipeline for field.
func (s *Schema) Pipeline(field string) (Pipeline, bool) {
	p, ok := s.fields[field]
	return p, ok
}

// Evaluate runs every field pipeline against root and collects one Record
// whose key set is exactly the schema's field set. The only error is context
// cancellation.
func (s *Schema) Evaluate(ctx context.Context, root Subject) (Record, error) {
	values := make([]any, len(s.names))

	limit := s.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range s.names {
		p := s.fields[name]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			values[i] = p.Eval(root).Value()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := make(Record, len(s.names))
	for i, name := range s.names {
		rec[name] = values[i]
	}
	return rec, nil
}

// EvaluateDocument evaluates s against the document root.
func (s *Schema) EvaluateDocument(ctx context.Context, doc *goquery.Document) (Record, error) {
	return s.Evaluate(ctx, DocumentSubject(doc))
}

// ExtractHTML parses html and evaluates s against the document root.
//
// Missing matches are not errors; they surface as Absent fields.
func ExtractHTML(ctx context.Context, html string, s *Schema) (Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return s.EvaluateDocument(ctx, doc)
}
