package extracthtml

import "testing"

func TestParseQuantifier(t *testing.T) {
	t.Parallel()

	cases := map[string]Quantifier{
		"":          DefaultQuantifier,
		"{0,}":      {},
		"{0,}[0]":   {Index: 0, HasIndex: true},
		"{0,}[1]":   {Index: 1, HasIndex: true},
		"{ 2 , }":   {Min: 2},
		"{1,}[ 3 ]": {Min: 1, Index: 3, HasIndex: true},
	}
	for in, want := range cases {
		got, err := ParseQuantifier(in)
		if err != nil {
			t.Fatalf("ParseQuantifier(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseQuantifier(%q) = %+v, want %+v", in, got, want)
		}
	}

	for _, in := range []string{"{0}", "{,}", "{0,1}", "[0]", "{-1,}", "{0,}[-1]", "first"} {
		if _, err := ParseQuantifier(in); err == nil {
			t.Errorf("ParseQuantifier(%q): expected error", in)
		}
	}
}

func TestQuantifier_String(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"{0,}", "{0,}[0]", "{2,}[5]"} {
		q, err := ParseQuantifier(s)
		if err != nil {
			t.Fatal(err)
		}
		if q.String() != s {
			t.Errorf("String() = %q, want %q", q.String(), s)
		}
	}
}

func TestQuantifier_ApplyNil(t *testing.T) {
	t.Parallel()

	if got := (Quantifier{HasIndex: true}).Apply(nil); !got.IsAbsent() {
		t.Fatalf("indexed on nil: got %s", got)
	}
	if got := DefaultQuantifier.Apply(nil); got.Kind() != KindNodeList || got.Len() != 0 {
		t.Fatalf("default on nil: got %s", got)
	}
}
