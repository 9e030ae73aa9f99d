package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DebugPrintSelector prints either outer HTML or text of matches for a selector.
// This is used by the command's "--selector" debug mode.
func DebugPrintSelector(w io.Writer, html, selector string, textOnly bool) error {
	m, err := compileSelector(selector)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		if textOnly {
			fmt.Fprintln(w, strings.TrimSpace(s.Text()))
			fmt.Fprintln(w)
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			in, _ := s.Html()
			fmt.Fprintln(w, in)
			fmt.Fprintln(w)
			return
		}
		fmt.Fprintln(w, out)
		fmt.Fprintln(w)
	})
	return nil
}

// TraceStep is the subject observed after one stage.
type TraceStep struct {
	Stage string
	Out   Subject
}

// Trace evaluates p like Eval but keeps every intermediate subject.
func (p Pipeline) Trace(root Subject) []TraceStep {
	steps := make([]TraceStep, 0, len(p.stages))
	cur := root
	for _, st := range p.stages {
		cur = st.Apply(cur)
		steps = append(steps, TraceStep{Stage: st.String(), Out: cur})
	}
	return steps
}

// DebugPipeline prints a stage-by-stage trace of every field in s. It is
// used by "extract --trace" when a field comes out Absent and it is not
// obvious which stage lost it.
func DebugPipeline(w io.Writer, html string, s *Schema) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	root := DocumentSubject(doc)

	for _, name := range s.Fields() {
		p := s.fields[name]
		fmt.Fprintf(w, "%s:\n", name)
		for i, step := range p.Trace(root) {
			fmt.Fprintf(w, "  %2d. %-40s -> %s\n", i+1, step.Stage, step.Out)
		}
	}
	return nil
}
