package extracthtml

import (
	"fmt"
	"math"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// Kind tags the variant held by a Subject.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNode
	KindNodeList
	KindScalar
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNode:
		return "node"
	case KindNodeList:
		return "nodelist"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Subject is the value threaded through a pipeline.
//
// Variants:
//   - Absent: nothing to work with (missing match, missing attribute, bad date)
//   - Node: exactly one element
//   - NodeList: an ordered, possibly empty set of elements
//   - Scalar: nil, string or float64 (NaN marks a failed numeric parse)
//   - List: an ordered sequence of scalars, produced by element-wise reads
//
// The zero value is Absent.
type Subject struct {
	kind   Kind
	sel    *goquery.Selection
	scalar any
	list   []any
}

// Absent returns the empty subject.
func Absent() Subject { return Subject{} }

// NodeOf wraps a single-element selection. Selections with any other length
// are returned as a NodeList so callers never see a multi-node Node.
func NodeOf(sel *goquery.Selection) Subject {
	if sel == nil || sel.Length() != 1 {
		return NodeListOf(sel)
	}
	return Subject{kind: KindNode, sel: sel}
}

// NodeListOf wraps a selection of any length. A nil selection becomes an
// empty list.
func NodeListOf(sel *goquery.Selection) Subject {
	if sel == nil {
		sel = &goquery.Selection{}
	}
	return Subject{kind: KindNodeList, sel: sel}
}

// ScalarOf wraps a scalar value. Integers are widened to float64; any other
// non-scalar type is rendered with fmt.Sprint.
func ScalarOf(v any) Subject {
	return Subject{kind: KindScalar, scalar: normalizeScalar(v)}
}

// ListOf wraps a scalar sequence. The slice is copied.
func ListOf(vs []any) Subject {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = normalizeScalar(v)
	}
	return Subject{kind: KindList, list: out}
}

// DocumentSubject returns the root subject for a parsed document.
func DocumentSubject(doc *goquery.Document) Subject {
	if doc == nil {
		return Absent()
	}
	return NodeOf(doc.Selection)
}

func (s Subject) Kind() Kind { return s.kind }

// IsAbsent reports whether s carries no value.
func (s Subject) IsAbsent() bool { return s.kind == KindAbsent }

// Selection returns the underlying goquery selection for Node and NodeList
// subjects, nil otherwise.
func (s Subject) Selection() *goquery.Selection {
	if s.kind == KindNode || s.kind == KindNodeList {
		return s.sel
	}
	return nil
}

// Scalar returns the scalar value and whether s is a Scalar.
func (s Subject) Scalar() (any, bool) {
	if s.kind != KindScalar {
		return nil, false
	}
	return s.scalar, true
}

// List returns a copy of the scalar sequence and whether s is a List.
func (s Subject) List() ([]any, bool) {
	if s.kind != KindList {
		return nil, false
	}
	return append([]any(nil), s.list...), true
}

// Len is the number of elements for NodeList and List, 1 for Node and
// Scalar, 0 for Absent.
func (s Subject) Len() int {
	switch s.kind {
	case KindNode, KindScalar:
		return 1
	case KindNodeList:
		return s.sel.Length()
	case KindList:
		return len(s.list)
	default:
		return 0
	}
}

// roots returns the selection used as the search root for selection stages.
func (s Subject) roots() (*goquery.Selection, bool) {
	if s.kind == KindNode || s.kind == KindNodeList {
		return s.sel, true
	}
	return nil, false
}

// Value converts s into a record value.
//
// Nodes are read as their text content so a pipeline that stops at an
// element still produces something serialisable.
func (s Subject) Value() any {
	switch s.kind {
	case KindNode:
		return s.sel.Text()
	case KindNodeList:
		out := make([]any, 0, s.sel.Length())
		s.sel.Each(func(_ int, n *goquery.Selection) {
			out = append(out, n.Text())
		})
		return out
	case KindScalar:
		return s.scalar
	case KindList:
		return append([]any(nil), s.list...)
	default:
		return AbsentValue
	}
}

func (s Subject) String() string {
	switch s.kind {
	case KindNode:
		return "node<" + goquery.NodeName(s.sel) + ">"
	case KindNodeList:
		return fmt.Sprintf("nodelist[%d]", s.sel.Length())
	case KindScalar:
		return fmt.Sprintf("scalar(%s)", formatScalar(s.scalar))
	case KindList:
		return fmt.Sprintf("list[%d]", len(s.list))
	default:
		return "absent"
	}
}

func normalizeScalar(v any) any {
	switch t := v.(type) {
	case nil, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case float64:
		if math.IsNaN(t) {
			return "NaN"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
