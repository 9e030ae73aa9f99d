package extracthtml

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reQuantifier = regexp.MustCompile(`^\{\s*(\d+)\s*,\s*\}(?:\[\s*(\d+)\s*\])?$`)

// Quantifier constrains how a selection collapses its matches.
//
// Text form is "{min,}" optionally followed by "[index]":
//
//	{0,}      every match, as a NodeList
//	{0,}[0]   the first match, or Absent
//	{2,}      every match when there are at least two, else an empty list
//
// Under-matching is never an error.
type Quantifier struct {
	Min      int
	Index    int
	HasIndex bool
}

// DefaultQuantifier is "{0,}": return the matches as-is.
var DefaultQuantifier = Quantifier{}

// ParseQuantifier parses the text form. An empty string yields
// DefaultQuantifier.
func ParseQuantifier(s string) (Quantifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultQuantifier, nil
	}

	m := reQuantifier.FindStringSubmatch(s)
	if m == nil {
		return Quantifier{}, fmt.Errorf("invalid quantifier %q: want {min,} or {min,}[index]", s)
	}

	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return Quantifier{}, fmt.Errorf("invalid quantifier %q: %w", s, err)
	}
	q := Quantifier{Min: lo}

	if m[2] != "" {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return Quantifier{}, fmt.Errorf("invalid quantifier index %q: %w", s, err)
		}
		q.Index = idx
		q.HasIndex = true
	}
	return q, nil
}

// Apply collapses matches according to q.
//
// With an index the result is the index-th match (0-based) as a Node, or
// Absent when there are not enough matches. Without an index the result is a
// NodeList: all matches when len >= Min, otherwise empty.
func (q Quantifier) Apply(matches *goquery.Selection) Subject {
	n := 0
	if matches != nil {
		n = matches.Length()
	}

	if q.HasIndex {
		if q.Index >= n || n < q.Min {
			return Absent()
		}
		return NodeOf(matches.Eq(q.Index))
	}

	if n < q.Min {
		return NodeListOf(nil)
	}
	return NodeListOf(matches)
}

func (q Quantifier) String() string {
	if q.HasIndex {
		return fmt.Sprintf("{%d,}[%d]", q.Min, q.Index)
	}
	return fmt.Sprintf("{%d,}", q.Min)
}
