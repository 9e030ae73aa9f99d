// Package enrich reconciles an extracted record with the structured data
// embedded in the page and adds derived price metrics.
package enrich

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/titanous/json5"

	"harvest/internal/extracthtml"
)

// Names of the derived fields.
const (
	YearsOld        = "yearsOld"
	PricePerYear    = "prisPerÅr"
	PricePerKm      = "prisPerKm"
	PricePerHorsepw = "prisPerHk"
)

// FieldSet names the four logical fields enrichment works with.
type FieldSet struct {
	ModelYear string
	Price     string
	Distance  string
	Power     string
}

func (f FieldSet) pairs() [4]string {
	return [4]string{f.ModelYear, f.Price, f.Distance, f.Power}
}

// Config controls the merge and fallback steps.
type Config struct {
	// BlobField is the raw field carrying the embedded JSON document. It is
	// always removed from the record.
	BlobField string
	// NestedPath is a dot path into the blob, e.g. "ad" or "ad.vehicle".
	// Empty means the blob root.
	NestedPath string
	// AllowKeys are copied from the nested object when present and non-null.
	AllowKeys []string

	Canonical FieldSet
	Scraped   FieldSet
}

// DefaultConfig is the car-listing profile.
func DefaultConfig() Config {
	return Config{
		BlobField:  "adData",
		NestedPath: "ad",
		AllowKeys:  []string{"model", "make", "fuel", "gearbox", "pris", "km", "hk"},
		Canonical:  FieldSet{ModelYear: "model", Price: "pris", Distance: "km", Power: "hk"},
		Scraped:    FieldSet{ModelYear: "Modellår", Price: "Totalpris", Distance: "Kilometer", Power: "Effekt"},
	}
}

// Report describes what Apply changed.
type Report struct {
	// Merged lists the keys copied from the embedded document.
	Merged []string
	// Fallbacks lists canonical fields filled from their scraped equivalent.
	Fallbacks []string
	// Derived lists the derived fields written.
	Derived []string
	// BlobErr is set when the embedded document could not be decoded. The
	// remaining steps still run.
	BlobErr error
}

type Enricher struct {
	Config Config
	// Now defaults to time.Now. The current year feeds YearsOld.
	Now func() time.Time
}

// New returns an Enricher for cfg.
func New(cfg Config) *Enricher {
	return &Enricher{Config: cfg, Now: time.Now}
}

// Apply enriches rec in place: secondary merge, then fallbacks and number
// coercion, then derived metrics.
func (e *Enricher) Apply(rec extracthtml.Record) Report {
	var rep Report
	rep.Merged, rep.BlobErr = e.merge(rec)
	rep.Fallbacks = e.fallback(rec)
	rep.Derived = e.derive(rec)
	return rep
}

func (e *Enricher) merge(rec extracthtml.Record) ([]string, error) {
	field := e.Config.BlobField
	if field == "" {
		return nil, nil
	}
	raw, ok := rec[field]
	if !ok {
		return nil, nil
	}
	delete(rec, field)
	if extracthtml.IsAbsent(raw) || raw == nil {
		return nil, nil
	}

	doc, err := decodeBlob(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	nested, ok := lookupPath(doc, e.Config.NestedPath)
	if !ok {
		return nil, nil
	}

	var merged []string
	for _, k := range e.Config.AllowKeys {
		v, ok := nested[k]
		if !ok || v == nil {
			continue
		}
		rec[k] = normalizeJSON(v)
		merged = append(merged, k)
	}
	return merged, nil
}

func decodeBlob(raw any) (any, error) {
	switch t := raw.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, fmt.Errorf("empty document")
		}
		var doc any
		if err := json5.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("decode embedded document: %w", err)
		}
		return doc, nil
	case map[string]any:
		return t, nil
	default:
		return nil, fmt.Errorf("embedded document is %T, not text", raw)
	}
}

func lookupPath(doc any, path string) (map[string]any, bool) {
	cur := doc
	if path != "" {
		for _, seg := range strings.Split(path, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[seg]
			if !ok {
				return nil, false
			}
		}
	}
	m, ok := cur.(map[string]any)
	return m, ok
}

// normalizeJSON maps decoded JSON numbers onto float64 so merged values look
// like extracted ones.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSON(e)
		}
		return out
	default:
		return v
	}
}

func (e *Enricher) fallback(rec extracthtml.Record) []string {
	canon := e.Config.Canonical.pairs()
	scraped := e.Config.Scraped.pairs()

	var filled []string
	for i, c := range canon {
		if c == "" {
			continue
		}
		if s := scraped[i]; s != "" && !hasValue(rec, c) && hasValue(rec, s) {
			rec[c] = rec[s]
			filled = append(filled, c)
		}
		if v, ok := rec[c]; ok {
			rec[c] = coerceNumber(v)
		}
	}
	return filled
}

func hasValue(rec extracthtml.Record, key string) bool {
	return rec.Present(key) && rec[key] != nil
}

// coerceNumber turns text into a number. Lists (ambiguous selections), nulls
// and Absent are left alone.
func coerceNumber(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return extracthtml.ParseNumber(t)
	case bool:
		return math.NaN()
	default:
		return v
	}
}

func (e *Enricher) derive(rec extracthtml.Record) []string {
	c := e.Config.Canonical
	for _, k := range []string{YearsOld, PricePerYear, PricePerKm, PricePerHorsepw} {
		delete(rec, k)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	var derived []string
	set := func(key string, v float64) {
		rec[key] = round2(v)
		derived = append(derived, key)
	}

	age, haveAge := 0.0, false
	if year, ok := number(rec, c.ModelYear); ok {
		age, haveAge = float64(now().Year())-year, true
		set(YearsOld, age)
	}

	price, ok := number(rec, c.Price)
	if !ok {
		return derived
	}
	if haveAge {
		if v, ok := ratio(price, age); ok {
			set(PricePerYear, v)
		}
	}
	if km, ok := number(rec, c.Distance); ok {
		if v, ok := ratio(price, km); ok {
			set(PricePerKm, v)
		}
	}
	if hp, ok := number(rec, c.Power); ok {
		if v, ok := ratio(price, hp); ok {
			set(PricePerHorsepw, v)
		}
	}
	return derived
}

func number(rec extracthtml.Record, key string) (float64, bool) {
	if key == "" {
		return 0, false
	}
	return rec.Number(key)
}

// ratio divides only by a strictly positive denominator and only returns
// finite, strictly positive results.
func ratio(num, den float64) (float64, bool) {
	if !(den > 0) {
		return 0, false
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) || !(v > 0) {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
