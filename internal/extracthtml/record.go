package extracthtml

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

type absentMarker struct{}

func (absentMarker) String() string { return "<absent>" }

// AbsentValue marks a record field whose pipeline produced nothing. It is
// distinct from nil, which is an explicit null.
var AbsentValue any = absentMarker{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v any) bool {
	_, ok := v.(absentMarker)
	return ok
}

// Record maps field names to extracted values: string, float64 (NaN allowed),
// nil, []any of those, or AbsentValue.
type Record map[string]any

// Present reports whether key holds something other than Absent. An explicit
// null counts as present.
func (r Record) Present(key string) bool {
	v, ok := r[key]
	return ok && !IsAbsent(v)
}

// Text returns the field as a string when it is one.
func (r Record) Text(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Number returns the field as a finite float64.
func (r Record) Number(key string) (float64, bool) {
	f, ok := r[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Missing lists the keys that are Absent, sorted.
func (r Record) Missing() []string {
	var out []string
	for k, v := range r {
		if IsAbsent(v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy; list values are copied too.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if l, ok := v.([]any); ok {
			v = append([]any(nil), l...)
		}
		out[k] = v
	}
	return out
}

// MarshalJSON writes keys in sorted order, omits Absent fields and writes
// non-finite numbers as null.
func (r Record) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r))
	for k, v := range r {
		if IsAbsent(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := writeValue(&buf, r[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			buf.WriteString("null")
			return nil
		}
		buf.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if IsAbsent(e) {
				e = nil
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case absentMarker:
		buf.WriteString("null")
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
