package enrich

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"harvest/internal/extracthtml"
)

func fixedYear(year int) func() time.Time {
	return func() time.Time { return time.Date(year, time.June, 1, 12, 0, 0, 0, time.UTC) }
}

func newTestEnricher(year int) *Enricher {
	e := New(DefaultConfig())
	e.Now = fixedYear(year)
	return e
}

func TestApply_SecondarySourceWins(t *testing.T) {
	t.Parallel()

	rec := extracthtml.Record{
		"Modellår": "2019",
		"adData":   `{"ad": {"model": 2020, "make": "Volvo", "color": "red", "fuel": null}}`,
	}
	rep := newTestEnricher(2024).Apply(rec)

	if rep.BlobErr != nil {
		t.Fatalf("BlobErr: %v", rep.BlobErr)
	}
	if got, _ := rec.Number("model"); got != 2020 {
		t.Fatalf("model = %v, want 2020", rec["model"])
	}
	if _, ok := rec["adData"]; ok {
		t.Fatalf("blob field not removed")
	}
	if _, ok := rec["color"]; ok {
		t.Fatalf("key outside the allow list was copied")
	}
	if _, ok := rec["fuel"]; ok {
		t.Fatalf("null value was copied")
	}
	if diff := cmp.Diff([]string{"model", "make"}, rep.Merged); diff != "" {
		t.Fatalf("merged (-want +got):\n%s", diff)
	}
	if len(rep.Fallbacks) != 0 {
		t.Fatalf("fallbacks = %v, want none", rep.Fallbacks)
	}
	if got, _ := rec.Number(YearsOld); got != 4 {
		t.Fatalf("yearsOld = %v, want 4", rec[YearsOld])
	}
}

func TestApply_Fallbacks(t *testing.T) {
	t.Parallel()

	rec := extracthtml.Record{
		"Modellår":  "2018",
		"Totalpris": "150 000 kr",
		"Kilometer": "12 000 km",
		"Effekt":    "150 hk",
		"hk":        extracthtml.AbsentValue,
	}
	rep := newTestEnricher(2024).Apply(rec)

	if diff := cmp.Diff([]string{"model", "pris", "km", "hk"}, rep.Fallbacks); diff != "" {
		t.Fatalf("fallbacks (-want +got):\n%s", diff)
	}
	want := map[string]float64{
		"model":         2018,
		"pris":          150000,
		"km":            12000,
		"hk":            150,
		YearsOld:        6,
		PricePerYear:    25000,
		PricePerKm:      12.5,
		PricePerHorsepw: 1000,
	}
	for k, w := range want {
		got, ok := rec.Number(k)
		if !ok || got != w {
			t.Fatalf("%s = %v, want %v", k, rec[k], w)
		}
	}
	// Scraped originals are kept.
	if s, _ := rec.Text("Totalpris"); s != "150 000 kr" {
		t.Fatalf("Totalpris = %q", s)
	}
}

func TestApply_DerivedPresenceGuards(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  extracthtml.Record
		want []string
	}{
		{
			name: "age zero",
			rec:  extracthtml.Record{"model": 2024.0, "pris": 100000.0},
			want: []string{YearsOld},
		},
		{
			name: "model year in the future",
			rec:  extracthtml.Record{"model": 2025.0, "pris": 100000.0},
			want: []string{YearsOld},
		},
		{
			name: "zero distance and negative power",
			rec:  extracthtml.Record{"pris": 100000.0, "km": 0.0, "hk": -5.0},
			want: nil,
		},
		{
			name: "unparsable price",
			rec:  extracthtml.Record{"model": "2010", "pris": "ring oss", "km": "1000"},
			want: []string{YearsOld},
		},
		{
			name: "ambiguous price list",
			rec:  extracthtml.Record{"pris": []any{"1", "2"}, "km": 10.0},
			want: nil,
		},
		{
			name: "negative price",
			rec:  extracthtml.Record{"model": 2018.0, "pris": -150000.0, "km": 12000.0, "hk": 150.0},
			want: []string{YearsOld},
		},
		{
			name: "negative scraped price",
			rec:  extracthtml.Record{"Totalpris": "-150 000 kr", "Modellår": "2018"},
			want: []string{YearsOld},
		},
		{
			name: "zero price",
			rec:  extracthtml.Record{"model": 2018.0, "pris": 0.0, "km": 12000.0},
			want: []string{YearsOld},
		},
		{
			name: "all present",
			rec:  extracthtml.Record{"model": 2014.0, "pris": 100000.0, "km": 20000.0, "hk": 200.0},
			want: []string{YearsOld, PricePerYear, PricePerKm, PricePerHorsepw},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rep := newTestEnricher(2024).Apply(tc.rec)
			if diff := cmp.Diff(tc.want, rep.Derived); diff != "" {
				t.Fatalf("derived (-want +got):\n%s", diff)
			}
			for _, k := range []string{YearsOld, PricePerYear, PricePerKm, PricePerHorsepw} {
				v, ok := tc.rec[k]
				if !ok {
					continue
				}
				f, isNum := v.(float64)
				if !isNum || math.IsNaN(f) || math.IsInf(f, 0) {
					t.Fatalf("%s = %v, want a finite number", k, v)
				}
				if k != YearsOld && f <= 0 {
					t.Fatalf("%s = %v, want > 0", k, f)
				}
			}
		})
	}
}

func TestApply_StaleDerivedFieldsRemoved(t *testing.T) {
	t.Parallel()

	rec := extracthtml.Record{"pris": 1000.0, "km": 0.0, PricePerKm: 99.0}
	newTestEnricher(2024).Apply(rec)
	if _, ok := rec[PricePerKm]; ok {
		t.Fatalf("stale %s kept: %v", PricePerKm, rec[PricePerKm])
	}
}

func TestApply_Rounding(t *testing.T) {
	t.Parallel()

	rec := extracthtml.Record{"pris": 100000.0, "km": 3.0}
	newTestEnricher(2024).Apply(rec)
	if got, _ := rec.Number(PricePerKm); got != 33333.33 {
		t.Fatalf("prisPerKm = %v, want 33333.33", got)
	}
}

func TestApply_BadBlob(t *testing.T) {
	t.Parallel()

	rec := extracthtml.Record{"adData": "{not json", "Totalpris": "5 000"}
	rep := newTestEnricher(2024).Apply(rec)

	if rep.BlobErr == nil {
		t.Fatalf("expected BlobErr")
	}
	if _, ok := rec["adData"]; ok {
		t.Fatalf("blob field not removed")
	}
	if got, _ := rec.Number("pris"); got != 5000 {
		t.Fatalf("pris = %v, want 5000 from the fallback", rec["pris"])
	}
}

func TestApply_NestedPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.NestedPath = "ad.vehicle"
	e := New(cfg)
	e.Now = fixedYear(2024)

	rec := extracthtml.Record{"adData": `{ad: {vehicle: {hk: 190, km: '3000'}}, }`}
	rep := e.Apply(rec)
	if rep.BlobErr != nil {
		t.Fatalf("BlobErr: %v", rep.BlobErr)
	}
	if got, _ := rec.Number("hk"); got != 190 {
		t.Fatalf("hk = %v", rec["hk"])
	}
	if got, _ := rec.Number("km"); got != 3000 {
		t.Fatalf("km = %v, want text coerced to 3000", rec["km"])
	}

	missing := extracthtml.Record{"adData": `{"other": {}}`}
	if rep := e.Apply(missing); len(rep.Merged) != 0 || rep.BlobErr != nil {
		t.Fatalf("unexpected report %+v", rep)
	}
}

const detailPage = `<html><body>
<h1>Volvo V60</h1>
<ul>
  <li><span>Modellår</span><span>2018</span></li>
  <li><span>Totalpris</span><span>150&nbsp;000 kr</span></li>
  <li><span>Kilometer</span><span>60 000 km</span></li>
</ul>
<script id="adData" type="application/json">{"ad": {"make": "Volvo"}}</script>
</body></html>`

func TestApply_ExtractedDetailPage(t *testing.T) {
	t.Parallel()

	value := extracthtml.PipelineSpec{{"parent"}, {"select", "span", "{0,}[1]"}, {"text"}, {"trim"}}
	field := func(label string) extracthtml.PipelineSpec {
		return append(extracthtml.PipelineSpec{{"contents", "span", label}}, value...)
	}
	schema, err := extracthtml.CompileSchema(map[string]extracthtml.PipelineSpec{
		"Modellår":  field("Modellår"),
		"Totalpris": field("Totalpris"),
		"Kilometer": field("Kilometer"),
		"Effekt":    field("Effekt"),
		"adData":    {{"select", "script#adData", "{0,}[0]"}, {"text"}},
	}, nil)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	rec, err := extracthtml.ExtractHTML(context.Background(), detailPage, schema)
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}
	newTestEnricher(2024).Apply(rec)

	for k, w := range map[string]float64{"pris": 150000, YearsOld: 6, PricePerYear: 25000, PricePerKm: 2.5} {
		if got, ok := rec.Number(k); !ok || got != w {
			t.Fatalf("%s = %v, want %v", k, rec[k], w)
		}
	}
	if s, _ := rec.Text("make"); s != "Volvo" {
		t.Fatalf("make = %v", rec["make"])
	}
	if rec.Present("Effekt") || rec.Present("hk") {
		t.Fatalf("Effekt/hk should be absent: %v / %v", rec["Effekt"], rec["hk"])
	}
	if _, ok := rec[PricePerHorsepw]; ok {
		t.Fatalf("prisPerHk written without power")
	}
}

const shippedDetailPage = `<html><body>
<h1>
  Volvo   V60
</h1>
<time class="published">1.3.2024</time>
<figure class="gallery"><img src="/img/v60.jpg"></figure>
<dl>
  <dt>Modellår</dt><dd>2018</dd>
  <dt>Totalpris</dt><dd>150 000 kr</dd>
  <dt>Kilometer</dt><dd>12 000 km</dd>
  <dt>Effekt</dt><dd>150 hk</dd>
  <dt>Växellåda</dt><dd>Automat</dd>
</dl>
<div class="seller-name">Bilhallen AB</div>
<script id="ad-data" type="application/json">{"ad": {"make": "Volvo", "fuel": "Diesel"}}</script>
</body></html>`

func TestApply_ShippedCarsSchema(t *testing.T) {
	t.Parallel()

	ss, err := extracthtml.LoadSchemaFile("../../configs/cars.json5")
	if err != nil {
		t.Fatalf("LoadSchemaFile: %v", err)
	}
	rec, err := extracthtml.ExtractHTML(context.Background(), shippedDetailPage, ss.Detail)
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}
	rep := newTestEnricher(2024).Apply(rec)
	if rep.BlobErr != nil {
		t.Fatalf("blob: %v", rep.BlobErr)
	}

	for k, w := range map[string]float64{
		"pris":          150000,
		"model":         2018,
		"km":            12000,
		"hk":            150,
		YearsOld:        6,
		PricePerYear:    25000,
		PricePerKm:      12.5,
		PricePerHorsepw: 1000,
	} {
		if got, ok := rec.Number(k); !ok || got != w {
			t.Errorf("%s = %v, want %v", k, rec[k], w)
		}
	}
	for k, w := range map[string]string{
		"title":     "Volvo V60",
		"published": "2024-03-01",
		"imageUrl":  "/img/v60.jpg",
		"Växellåda": "Automat",
		"Säljare":   "Bilhallen AB",
		"make":      "Volvo",
		"fuel":      "Diesel",
	} {
		if got, _ := rec.Text(k); got != w {
			t.Errorf("%s = %v, want %q", k, rec[k], w)
		}
	}
	if rec.Present("Drivmedel") {
		t.Errorf("Drivmedel should be absent, got %v", rec["Drivmedel"])
	}
	if _, ok := rec["adData"]; ok {
		t.Errorf("embedded blob left in record")
	}
}
