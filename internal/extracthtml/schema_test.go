package extracthtml

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func detailSchema(t *testing.T) *Schema {
	t.Helper()
	fragments := map[string]PipelineSpec{
		"clean": {{"collapseNewlines"}, {"collapseInternalWhitespace"}, {"trim"}},
		"value": {{"parent"}, {"select", "span", "{0,}[1]"}, {"text"}, {"@clean"}},
	}
	s, err := CompileSchema(map[string]PipelineSpec{
		"title":     {{"select", "h1", "{0,}[0]"}, {"text"}, {"@clean"}},
		"Modellår":  {{"contents", "span", "Modellår"}, {"@value"}},
		"Totalpris": {{"contents", "span", "Totalpris"}, {"@value"}},
		"pris":      {{"contents", "span", "Totalpris"}, {"@value"}, {"stripAllWhitespace"}, {"parseInteger"}},
		"Effekt":    {{"contents", "span", "Effekt"}, {"@value"}},
		"images":    {{"select", "img"}, {"attr", "src"}},
	}, fragments)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return s
}

func TestSchema_Evaluate(t *testing.T) {
	t.Parallel()

	rec, err := ExtractHTML(context.Background(), carDetail, detailSchema(t))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}

	if diff := cmp.Diff([]string{"Effekt", "Modellår", "Totalpris", "images", "pris", "title"}, sortedKeys(rec)); diff != "" {
		t.Fatalf("field set (-want +got):\n%s", diff)
	}
	if rec["title"] != "Volvo V70" {
		t.Errorf("title: %#v", rec["title"])
	}
	if rec["Modellår"] != "2018" {
		t.Errorf("Modellår: %#v", rec["Modellår"])
	}
	if rec["Totalpris"] != "150 000 kr" {
		t.Errorf("Totalpris: %#v", rec["Totalpris"])
	}
	if rec["pris"] != 150000.0 {
		t.Errorf("pris: %#v", rec["pris"])
	}
	if !IsAbsent(rec["Effekt"]) {
		t.Errorf("Effekt: expected absent, got %#v", rec["Effekt"])
	}
	if diff := cmp.Diff([]any{"/img/1.jpg", "/img/2.jpg"}, rec["images"]); diff != "" {
		t.Errorf("images (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Effekt"}, rec.Missing()); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
}

func TestSchema_OrderIndependent(t *testing.T) {
	t.Parallel()

	s := detailSchema(t)
	root := docSubject(t, carDetail)

	serial := *s
	serial.Concurrency = 1
	want, err := serial.Evaluate(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		got, err := s.Evaluate(context.Background(), root)
		if err != nil {
			t.Fatal(err)
		}
		wb, _ := want.MarshalJSON()
		gb, _ := got.MarshalJSON()
		if string(wb) != string(gb) {
			t.Fatalf("run %d differs:\nwant %s\ngot  %s", i, wb, gb)
		}
	}
}

func TestSchema_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detailSchema(t).Evaluate(ctx, docSubject(t, carDetail))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCompileSchema_Errors(t *testing.T) {
	t.Parallel()

	if _, err := CompileSchema(nil, nil); err == nil {
		t.Fatalf("empty schema: expected error")
	}
	_, err := CompileSchema(map[string]PipelineSpec{"x": {{"select", "a", "{x}"}}}, nil)
	if err == nil || err.Error() != `field "x": stage 1: stage select: invalid quantifier "{x}": want {min,} or {min,}[index]` {
		t.Fatalf("got %v", err)
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	t.Parallel()

	rec := Record{
		"gone":  AbsentValue,
		"nan":   math.NaN(),
		"inf":   math.Inf(1),
		"n":     1.5,
		"s":     "x",
		"null":  nil,
		"list":  []any{"x", nil, math.NaN(), 2.0},
		"whole": 150000.0,
	}
	b, err := rec.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"inf":null,"list":["x",null,null,2],"n":1.5,"nan":null,"null":null,"s":"x","whole":150000}`
	if string(b) != want {
		t.Fatalf("got  %s\nwant %s", b, want)
	}
}

func TestRecord_Accessors(t *testing.T) {
	t.Parallel()

	rec := Record{"a": AbsentValue, "n": 3.0, "nan": math.NaN(), "s": "x", "null": nil}

	if rec.Present("a") || rec.Present("missing") {
		t.Errorf("absent and missing keys must not be present")
	}
	if !rec.Present("null") {
		t.Errorf("explicit null counts as present")
	}
	if v, ok := rec.Number("n"); !ok || v != 3 {
		t.Errorf("Number(n) = %v, %v", v, ok)
	}
	if _, ok := rec.Number("nan"); ok {
		t.Errorf("NaN is not a number here")
	}
	if v, ok := rec.Text("s"); !ok || v != "x" {
		t.Errorf("Text(s) = %q, %v", v, ok)
	}

	c := rec.Clone()
	c["n"] = 4.0
	if rec["n"] != 3.0 {
		t.Errorf("Clone shares storage")
	}
}

func TestSubject_Value(t *testing.T) {
	t.Parallel()

	root := docSubject(t, `<ul><li>a</li><li>b</li></ul>`)
	if got := pipeline(t, "select li {0,}[1]").Eval(root).Value(); got != "b" {
		t.Errorf("node value: %#v", got)
	}
	if diff := cmp.Diff([]any{"a", "b"}, pipeline(t, "select li").Eval(root).Value()); diff != "" {
		t.Errorf("nodelist value (-want +got):\n%s", diff)
	}
	if !IsAbsent(Absent().Value()) {
		t.Errorf("absent value")
	}
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
