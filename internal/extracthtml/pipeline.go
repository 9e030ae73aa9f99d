package extracthtml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownFragment is returned when a pipeline references a fragment
	// that is not defined.
	ErrUnknownFragment = errors.New("unknown fragment")
	// ErrFragmentCycle is returned when fragments reference each other in a
	// loop.
	ErrFragmentCycle = errors.New("fragment cycle")
)

// StageSpec is the uncompiled form of one stage: its name followed by its
// literal arguments. In schema files a stage is written either as an array
// (["select", "dd", "{0,}[0]"]) or as a single string that is tokenised on
// whitespace with ' and " quoting (`select dd {0,}[0]`). A spec whose name
// starts with "@" is a fragment reference.
type StageSpec []string

// UnmarshalJSON accepts both the array and the string form.
func (s *StageSpec) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		toks, err := Tokenize(text)
		if err != nil {
			return err
		}
		if len(toks) == 0 {
			return fmt.Errorf("empty stage")
		}
		*s = toks
		return nil
	}

	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("stage must be a string or an array of strings: %s", strings.TrimSpace(string(b)))
	}
	if len(arr) == 0 {
		return fmt.Errorf("empty stage")
	}
	*s = arr
	return nil
}

// Name returns the stage name (or the "@fragment" reference).
func (s StageSpec) Name() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Args returns the literal arguments.
func (s StageSpec) Args() []string {
	if len(s) < 2 {
		return nil
	}
	return s[1:]
}

func (s StageSpec) fragment() (string, bool) {
	if len(s) == 1 && strings.HasPrefix(s[0], "@") && len(s[0]) > 1 {
		return s[0][1:], true
	}
	return "", false
}

// PipelineSpec is an ordered list of stage specs.
type PipelineSpec []StageSpec

// Tokenize splits a stage string into words. Single and double quotes group
// words and may contain the other quote. Inside quotes a backslash escapes
// the quote character or another backslash and is kept literally otherwise,
// so regex arguments survive unchanged.
func Tokenize(s string) ([]string, error) {
	var (
		toks  []string
		cur   strings.Builder
		quote rune
		inTok bool
		esc   bool
	)
	for _, r := range s {
		switch {
		case esc:
			if r != quote && r != '\\' {
				cur.WriteByte('\\')
			}
			cur.WriteRune(r)
			esc = false
		case quote != 0:
			switch r {
			case '\\':
				esc = true
			case quote:
				quote = 0
			default:
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inTok = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inTok {
				toks = append(toks, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			cur.WriteRune(r)
			inTok = true
		}
	}
	if quote != 0 || esc {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if inTok {
		toks = append(toks, cur.String())
	}
	return toks, nil
}

// Pipeline is a compiled, straight-line sequence of stages.
type Pipeline struct {
	stages []Stage
}

// Stages returns the compiled stages in evaluation order.
func (p Pipeline) Stages() []Stage { return append([]Stage(nil), p.stages...) }

// Len is the number of stages after fragment expansion.
func (p Pipeline) Len() int { return len(p.stages) }

// Eval threads root through every stage in order.
func (p Pipeline) Eval(root Subject) Subject {
	cur := root
	for _, st := range p.stages {
		cur = st.Apply(cur)
	}
	return cur
}

func (p Pipeline) String() string {
	parts := make([]string, len(p.stages))
	for i, st := range p.stages {
		parts[i] = st.String()
	}
	return strings.Join(parts, " | ")
}

// CompilePipeline expands fragment references and resolves every stage
// against the catalog. Errors name the offending stage position.
func CompilePipeline(spec PipelineSpec, fragments map[string]PipelineSpec) (Pipeline, error) {
	flat, err := expandFragments(spec, fragments, nil)
	if err != nil {
		return Pipeline{}, err
	}

	stages := make([]Stage, 0, len(flat))
	for i, ss := range flat {
		st, err := CompileStage(ss.Name(), ss.Args())
		if err != nil {
			return Pipeline{}, fmt.Errorf("stage %d: %w", i+1, err)
		}
		stages = append(stages, st)
	}
	return Pipeline{stages: stages}, nil
}

// expandFragments splices every "@name" reference in place. stack holds the
// fragments currently being expanded.
func expandFragments(spec PipelineSpec, fragments map[string]PipelineSpec, stack []string) (PipelineSpec, error) {
	out := make(PipelineSpec, 0, len(spec))
	for _, ss := range spec {
		if len(ss) == 0 {
			return nil, fmt.Errorf("empty stage")
		}
		name, ok := ss.fragment()
		if !ok {
			out = append(out, ss)
			continue
		}

		for _, open := range stack {
			if open == name {
				return nil, fmt.Errorf("%w: %s -> %s", ErrFragmentCycle, strings.Join(stack, " -> "), name)
			}
		}
		frag, ok := fragments[name]
		if !ok {
			return nil, fmt.Errorf("%w: @%s", ErrUnknownFragment, name)
		}
		sub, err := expandFragments(frag, fragments, append(stack, name))
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}
