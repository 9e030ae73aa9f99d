package extracthtml

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docSubject(t *testing.T, html string) Subject {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return DocumentSubject(doc)
}

// pipeline compiles string-form stages, e.g. pipeline(t, "select dd {0,}[0]", "text").
func pipeline(t *testing.T, stages ...string) Pipeline {
	t.Helper()
	spec := make(PipelineSpec, 0, len(stages))
	for _, s := range stages {
		toks, err := Tokenize(s)
		if err != nil {
			t.Fatalf("tokenize %q: %v", s, err)
		}
		spec = append(spec, toks)
	}
	p, err := CompilePipeline(spec, nil)
	if err != nil {
		t.Fatalf("compile %q: %v", stages, err)
	}
	return p
}

func scalarOf(t *testing.T, s Subject) any {
	t.Helper()
	v, ok := s.Scalar()
	if !ok {
		t.Fatalf("expected scalar, got %s", s)
	}
	return v
}
