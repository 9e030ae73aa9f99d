package extracthtml

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveLinks(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://cars.example/list?page=1")
	in := []any{
		"/ad/1",
		" /ad/2#gallery ",
		"https://cars.example/ad/1",
		"ad/3",
		"",
		nil,
		"#top",
		"mailto:sales@cars.example",
		"javascript:void(0)",
		"//cdn.example/ad/4",
	}
	want := []string{
		"https://cars.example/ad/1",
		"https://cars.example/ad/2",
		"https://cars.example/ad/3",
		"https://cdn.example/ad/4",
	}
	if diff := cmp.Diff(want, ResolveLinks(base, in)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"https://cars.example/only"}, ResolveLinks(base, "/only")); diff != "" {
		t.Fatalf("single string (-want +got):\n%s", diff)
	}
	if got := ResolveLinks(base, 3.0); got != nil {
		t.Fatalf("number: got %v", got)
	}
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://example.com/a/b")
	if got := ResolveHref(base, "../c"); got != "https://example.com/c" {
		t.Fatalf("got %q", got)
	}
	if got := ResolveHref(nil, "/x"); got != "/x" {
		t.Fatalf("nil base: got %q", got)
	}
}
