package extracthtml

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// LoadSchemaFile reads, parses and compiles a JSON5 schema file.
func LoadSchemaFile(path string) (*SchemaSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	ss, err := ParseSchemaFile(b)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return ss, nil
}

// ParseSchemaFile compiles schema file content. Every pipeline is compiled
// up front, so unknown stages, bad selectors, malformed quantifiers and
// fragment cycles are all reported here rather than during extraction.
func ParseSchemaFile(b []byte) (*SchemaSet, error) {
	sf, err := decodeSchemaFile(b)
	if err != nil {
		return nil, err
	}
	if len(sf.List) == 0 && len(sf.Detail) == 0 {
		return nil, fmt.Errorf("schema file has neither a list nor a detail section")
	}

	for name, frag := range sf.Fragments {
		if _, err := expandFragments(frag, sf.Fragments, []string{name}); err != nil {
			return nil, fmt.Errorf("fragment %q: %w", name, err)
		}
	}

	var ss SchemaSet
	if len(sf.List) > 0 {
		if ss.List, err = CompileSchema(sf.List, sf.Fragments); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
	}
	if len(sf.Detail) > 0 {
		if ss.Detail, err = CompileSchema(sf.Detail, sf.Fragments); err != nil {
			return nil, fmt.Errorf("detail: %w", err)
		}
	}
	return &ss, nil
}

// decodeSchemaFile accepts JSON5 (comments, unquoted keys, trailing commas).
// The relaxed document is normalised to plain JSON first so StageSpec can
// decode both of its forms.
func decodeSchemaFile(b []byte) (*SchemaFile, error) {
	var raw any
	if err := json5.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse schema json5: %w", err)
	}
	norm, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalise schema: %w", err)
	}

	var sf SchemaFile
	if err := json.Unmarshal(norm, &sf); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &sf, nil
}
