package extracthtml

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrUnknownStage is returned when a pipeline names a stage that is not in
// the catalog.
var ErrUnknownStage = errors.New("unknown stage")

// Stage is one compiled pipeline step. Arguments are validated when the stage
// is compiled, so Apply never fails; it degrades to Absent or passes the
// subject through instead.
type Stage struct {
	Name string
	Args []string

	apply func(in Subject) Subject
}

// Apply runs the stage against in.
func (st Stage) Apply(in Subject) Subject {
	if st.apply == nil {
		return in
	}
	return st.apply(in)
}

func (st Stage) String() string {
	if len(st.Args) == 0 {
		return st.Name
	}
	quoted := make([]string, len(st.Args))
	for i, a := range st.Args {
		quoted[i] = quoteArg(a)
	}
	return st.Name + " " + strings.Join(quoted, " ")
}

// stageDef describes one entry of the catalog.
type stageDef struct {
	minArgs int
	maxArgs int
	compile func(args []string) (func(Subject) Subject, error)
}

var catalog = map[string]stageDef{
	"select":                     {1, 2, compileSelect},
	"contents":                   {2, 3, compileContents},
	"siblings":                   {0, 0, navigate(func(s *goquery.Selection) *goquery.Selection { return s.Siblings() }, false)},
	"parent":                     {0, 0, navigate(func(s *goquery.Selection) *goquery.Selection { return s.Parent() }, true)},
	"nextSibling":                {0, 0, fixed(nextSibling)},
	"children":                   {0, 0, navigate(func(s *goquery.Selection) *goquery.Selection { return s.Children() }, false)},
	"remove":                     {1, 1, compileRemove},
	"readAttribute":              {1, 1, compileReadAttribute},
	"readProperty":               {1, 1, compileReadProperty},
	"readTextContent":            {0, 0, fixed(readTextContent)},
	"trim":                       {0, 0, fixed(mapStrings(strings.TrimSpace))},
	"collapseInternalWhitespace": {0, 0, fixed(mapStrings(collapseWhitespace))},
	"collapseNewlines":           {0, 0, fixed(mapStrings(collapseNewlines))},
	"stripAllWhitespace":         {0, 0, fixed(mapStrings(stripWhitespace))},
	"parseInteger":               {0, 1, compileParseInteger},
	"parseFloat":                 {0, 0, fixed(mapNumbers(parseFloatPrefix))},
	"parseLocalizedDate":         {2, 2, compileParseDate},
	"match":                      {1, 1, compileMatch},
	"decodeEmail":                {0, 0, fixed(decodeEmail)},
}

// aliases are short names accepted in schema files.
var aliases = map[string]string{
	"attr": "readAttribute",
	"prop": "readProperty",
	"text": "readTextContent",
	"next": "nextSibling",
}

// StageNames lists the catalog, sorted.
func StageNames() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CompileStage resolves name against the catalog and validates args.
func CompileStage(name string, args []string) (Stage, error) {
	canonical := name
	if a, ok := aliases[name]; ok {
		canonical = a
	}

	def, ok := catalog[canonical]
	if !ok {
		return Stage{}, fmt.Errorf("%w: %q", ErrUnknownStage, name)
	}
	if len(args) < def.minArgs || len(args) > def.maxArgs {
		return Stage{}, fmt.Errorf("stage %s: want %s, got %d", canonical, argCount(def), len(args))
	}

	fn, err := def.compile(args)
	if err != nil {
		return Stage{}, fmt.Errorf("stage %s: %w", canonical, err)
	}
	return Stage{
		Name:  canonical,
		Args:  append([]string(nil), args...),
		apply: fn,
	}, nil
}

func argCount(def stageDef) string {
	if def.minArgs == def.maxArgs {
		return fmt.Sprintf("%d args", def.minArgs)
	}
	return fmt.Sprintf("%d-%d args", def.minArgs, def.maxArgs)
}

func fixed(fn func(Subject) Subject) func([]string) (func(Subject) Subject, error) {
	return func([]string) (func(Subject) Subject, error) { return fn, nil }
}

func compileSelector(sel string) (goquery.Matcher, error) {
	if strings.TrimSpace(sel) == "" {
		return nil, fmt.Errorf("empty selector")
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return m, nil
}

func compileSelect(args []string) (func(Subject) Subject, error) {
	m, err := compileSelector(args[0])
	if err != nil {
		return nil, err
	}
	q := DefaultQuantifier
	if len(args) > 1 {
		if q, err = ParseQuantifier(args[1]); err != nil {
			return nil, err
		}
	}

	return func(in Subject) Subject {
		roots, ok := in.roots()
		if !ok {
			return Absent()
		}
		if in.kind == KindNodeList && q.HasIndex {
			return eachRoot(roots, func(r *goquery.Selection) Subject {
				return q.Apply(r.FindMatcher(m))
			})
		}
		return q.Apply(roots.FindMatcher(m))
	}, nil
}

// eachRoot applies a single-valued step to every node of a NodeList without
// hiding ambiguity: no roots is Absent, one root is that root's result and
// several roots give a NodeList of the per-root nodes.
func eachRoot(roots *goquery.Selection, pick func(*goquery.Selection) Subject) Subject {
	switch roots.Length() {
	case 0:
		return Absent()
	case 1:
		return pick(roots)
	}
	var nodes []*html.Node
	roots.Each(func(_ int, r *goquery.Selection) {
		if out := pick(r); out.kind == KindNode {
			nodes = append(nodes, out.sel.Nodes...)
		}
	})
	return NodeListOf(roots.Slice(0, 0).AddNodes(nodes...))
}

// nextSibling moves to the following element sibling.
func nextSibling(in Subject) Subject {
	next := func(s *goquery.Selection) Subject {
		n := s.Next()
		if n.Length() == 0 {
			return Absent()
		}
		return NodeOf(n)
	}
	switch in.kind {
	case KindNode:
		return next(in.sel)
	case KindNodeList:
		return eachRoot(in.sel, next)
	default:
		return in
	}
}

// compileContents builds the text-filtered selection stage.
//
// Ambiguity is reported, not resolved: one surviving match becomes a Node,
// anything else (none, several) stays a NodeList so the caller can tell the
// field is unavailable.
func compileContents(args []string) (func(Subject) Subject, error) {
	m, err := compileSelector(args[0])
	if err != nil {
		return nil, err
	}
	want := args[1]
	q := DefaultQuantifier
	if len(args) > 2 {
		if q, err = ParseQuantifier(args[2]); err != nil {
			return nil, err
		}
	}

	return func(in Subject) Subject {
		roots, ok := in.roots()
		if !ok {
			return Absent()
		}
		matches := roots.FindMatcher(m).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Text() == want
		})

		out := q.Apply(matches)
		if out.kind == KindNodeList && out.sel.Length() == 1 {
			return NodeOf(out.sel)
		}
		return out
	}, nil
}

// navigate builds a structural stage. For a single Node with single=true an
// empty result becomes Absent and a one-element result stays a Node.
func navigate(step func(*goquery.Selection) *goquery.Selection, single bool) func([]string) (func(Subject) Subject, error) {
	return fixed(func(in Subject) Subject {
		switch in.kind {
		case KindNode:
			out := step(in.sel)
			if single {
				if out.Length() == 0 {
					return Absent()
				}
				return NodeOf(out)
			}
			return NodeListOf(out)
		case KindNodeList:
			return NodeListOf(step(in.sel))
		default:
			return in
		}
	})
}

// compileRemove returns a detached deep copy of the subject with matching
// descendants dropped. The source tree is never touched.
func compileRemove(args []string) (func(Subject) Subject, error) {
	m, err := compileSelector(args[0])
	if err != nil {
		return nil, err
	}
	return func(in Subject) Subject {
		if in.kind != KindNode && in.kind != KindNodeList {
			return in
		}
		clone := in.sel.Clone()
		clone.FindMatcher(m).Remove()
		if in.kind == KindNode {
			return NodeOf(clone)
		}
		return NodeListOf(clone)
	}, nil
}

func compileReadAttribute(args []string) (func(Subject) Subject, error) {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return nil, fmt.Errorf("empty attribute name")
	}
	return readEach(func(s *goquery.Selection) (any, bool) {
		return s.Attr(name)
	}), nil
}

func compileReadProperty(args []string) (func(Subject) Subject, error) {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return nil, fmt.Errorf("empty property name")
	}
	return readEach(func(s *goquery.Selection) (any, bool) {
		return Property(s, name)
	}), nil
}

func readTextContent(in Subject) Subject {
	return readEach(func(s *goquery.Selection) (any, bool) {
		return s.Text(), true
	})(in)
}

// readEach turns a per-node reader into a stage. A Node yields a Scalar (or
// Absent when the value is missing); a NodeList yields a List with null for
// missing values.
func readEach(read func(*goquery.Selection) (any, bool)) func(Subject) Subject {
	return func(in Subject) Subject {
		switch in.kind {
		case KindNode:
			v, ok := read(in.sel)
			if !ok {
				return Absent()
			}
			return ScalarOf(v)
		case KindNodeList:
			out := make([]any, 0, in.sel.Length())
			in.sel.Each(func(_ int, s *goquery.Selection) {
				v, ok := read(s)
				if !ok {
					v = nil
				}
				out = append(out, v)
			})
			return ListOf(out)
		default:
			return in
		}
	}
}

// Property reads a live DOM property, as opposed to a serialized attribute.
// Unknown property names fall back to the attribute of the same name.
func Property(s *goquery.Selection, name string) (string, bool) {
	if s == nil || s.Length() == 0 {
		return "", false
	}
	switch name {
	case "textContent", "innerText":
		return s.Text(), true
	case "innerHTML":
		h, err := s.Html()
		if err != nil {
			return "", false
		}
		return h, true
	case "outerHTML":
		h, err := goquery.OuterHtml(s)
		if err != nil {
			return "", false
		}
		return h, true
	case "tagName", "nodeName":
		n := s.Get(0)
		if n.Type != html.ElementNode {
			return "", false
		}
		return strings.ToUpper(n.Data), true
	case "className":
		v, _ := s.Attr("class")
		return v, true
	default:
		return s.Attr(name)
	}
}

func quoteArg(a string) string {
	if a != "" && !strings.ContainsAny(a, " \t\n'\"") {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `\'`) + "'"
}
