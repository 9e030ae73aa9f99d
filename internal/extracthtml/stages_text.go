package extracthtml

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var reFloatPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)

// mapStrings lifts a string normaliser into a stage. Strings inside a List
// are mapped element-wise; every other subject passes through unchanged.
func mapStrings(fn func(string) string) func(Subject) Subject {
	return func(in Subject) Subject {
		switch in.kind {
		case KindScalar:
			if s, ok := in.scalar.(string); ok {
				return ScalarOf(fn(s))
			}
			return in
		case KindList:
			out := make([]any, len(in.list))
			for i, v := range in.list {
				if s, ok := v.(string); ok {
					out[i] = fn(s)
					continue
				}
				out[i] = v
			}
			return ListOf(out)
		default:
			return in
		}
	}
}

// mapNumbers lifts a numeric coercion into a stage. Numbers pass through,
// null becomes NaN, nodes and Absent are left alone.
func mapNumbers(fn func(string) float64) func(Subject) Subject {
	conv := func(v any) any {
		switch t := v.(type) {
		case string:
			return fn(t)
		case float64:
			return t
		default:
			return math.NaN()
		}
	}
	return func(in Subject) Subject {
		switch in.kind {
		case KindScalar:
			return ScalarOf(conv(in.scalar))
		case KindList:
			out := make([]any, len(in.list))
			for i, v := range in.list {
				out[i] = conv(v)
			}
			return ListOf(out)
		default:
			return in
		}
	}
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// collapseNewlines replaces each run of line breaks with a single space.
func collapseNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inBreak := false
	for _, r := range s {
		if r == '\n' || r == '\r' {
			if !inBreak {
				b.WriteByte(' ')
			}
			inBreak = true
			continue
		}
		inBreak = false
		b.WriteRune(r)
	}
	return b.String()
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func compileParseInteger(args []string) (func(Subject) Subject, error) {
	base := 10
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		b, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || b < 2 || b > 36 {
			return nil, fmt.Errorf("invalid base %q: want 2..36", args[0])
		}
		base = b
	}
	return func(in Subject) Subject {
		if in.kind == KindScalar {
			if f, ok := in.scalar.(float64); ok {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return ScalarOf(math.NaN())
				}
				return ScalarOf(math.Trunc(f))
			}
		}
		return mapNumbers(func(s string) float64 { return parseIntPrefix(s, base) })(in)
	}, nil
}

// parseIntPrefix reads the longest valid integer prefix of s in the given
// base, after leading whitespace and an optional sign. "150000kr" is 150000;
// a string without leading digits is NaN.
func parseIntPrefix(s string, base int) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if base == 16 && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	n := 0.0
	digits := 0
	for _, r := range s {
		d := digitValue(r)
		if d < 0 || d >= base {
			break
		}
		n = n*float64(base) + float64(d)
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return n
}

func digitValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'z':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'Z':
		return int(r-'A') + 10
	default:
		return -1
	}
}

// parseFloatPrefix reads the longest decimal prefix of s. No prefix is NaN.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := reFloatPrefix.FindString(s)
	if m == "" {
		return math.NaN()
	}
	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// Out-of-range exponents still carry a value (±Inf or 0).
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// Date patterns use the usual d/M/y/H/m/s letters. Parsing is lenient about
// zero padding, formatting is not.
var (
	parseLayout = strings.NewReplacer(
		"yyyy", "2006", "yy", "06",
		"MM", "1", "M", "1",
		"dd", "2", "d", "2",
		"HH", "15", "mm", "04", "ss", "05",
	)
	formatLayout = strings.NewReplacer(
		"yyyy", "2006", "yy", "06",
		"MM", "01", "M", "1",
		"dd", "02", "d", "2",
		"HH", "15", "mm", "04", "ss", "05",
	)
)

func compileParseDate(args []string) (func(Subject) Subject, error) {
	src, dst := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if src == "" || dst == "" {
		return nil, fmt.Errorf("source and target patterns are required")
	}
	in := parseLayout.Replace(src)
	out := formatLayout.Replace(dst)

	conv := func(v any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		t, err := time.Parse(in, strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		return t.Format(out)
	}

	return func(sub Subject) Subject {
		switch sub.kind {
		case KindScalar:
			v := conv(sub.scalar)
			if v == nil {
				return Absent()
			}
			return ScalarOf(v)
		case KindList:
			vals := make([]any, len(sub.list))
			for i, v := range sub.list {
				vals[i] = conv(v)
			}
			return ListOf(vals)
		default:
			return sub
		}
	}, nil
}

// compileMatch keeps the regex-filter semantics of the original mapping
// format: capture group 1 when present, else the full match. A string that
// does not match becomes Absent (null inside a List).
func compileMatch(args []string) (func(Subject) Subject, error) {
	re, err := regexp.Compile(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", args[0], err)
	}

	conv := func(v any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		sm := re.FindStringSubmatch(s)
		switch {
		case len(sm) == 0:
			return nil
		case len(sm) > 1:
			return sm[1]
		default:
			return sm[0]
		}
	}

	return func(in Subject) Subject {
		switch in.kind {
		case KindScalar:
			v := conv(in.scalar)
			if v == nil {
				return Absent()
			}
			return ScalarOf(v)
		case KindList:
			vals := make([]any, len(in.list))
			for i, v := range in.list {
				vals[i] = conv(v)
			}
			return ListOf(vals)
		default:
			return in
		}
	}, nil
}

// ParseNumber is the lenient numeric coercion used outside pipelines: all
// whitespace is removed first, so grouped thousands such as "150 000 kr"
// read as 150000. No leading number is NaN.
func ParseNumber(s string) float64 {
	return parseFloatPrefix(stripWhitespace(s))
}
