// Package crawl runs one crawl: fetch the listing page, discover detail
// links, then extract, enrich and submit each detail page in order.
//
// Items are processed strictly sequentially with a pause between them. A
// failing item is logged and counted; it never stops the run. Cancelling the
// context stops the run between items.
package crawl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/enrich"
	"harvest/internal/extracthtml"
	"harvest/internal/metrics"
	"harvest/internal/storage"
)

// Fetcher is the HTTP transport. *fetch.Client implements it.
type Fetcher interface {
	GetText(ctx context.Context, url string) (string, error)
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// Options is everything a Sequencer needs. Nothing is read from globals.
type Options struct {
	ListingURL string
	Collection string
	DocType    string

	List   *extracthtml.Schema
	Detail *extracthtml.Schema
	// LinkField is the list-schema field holding detail links.
	LinkField string

	// ImageField names a detail field with the primary image URL. When set
	// and present, the image is downloaded and stored base64-encoded under
	// ImageTarget.
	ImageField  string
	ImageTarget string

	// ExpectedFields are reported when Absent. Empty means every Absent
	// field of the detail schema is reported.
	ExpectedFields []string

	// MaxItems caps the number of detail links; 0 means all of them.
	MaxItems int

	MinDelay time.Duration
	Jitter   time.Duration

	Fetcher Fetcher
	// Enricher may be nil to skip enrichment.
	Enricher *enrich.Enricher
	Sink     storage.Sink
	// SinkName labels submission metrics.
	SinkName string

	Logger logrus.FieldLogger

	// Test seams.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool
	Rand  *rand.Rand
}

// ItemResult is the outcome of one detail link.
type ItemResult struct {
	Index int
	URL   string
	// ID is the identifier returned by the sink, possibly "".
	ID      string
	Missing []string
	// ImageErr is set when the image could not be fetched; the record is
	// still submitted without it.
	ImageErr error
	Err      error
}

func (r ItemResult) OK() bool { return r.Err == nil }

// Summary of a run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    []ItemResult
	Duration  time.Duration
}

type Sequencer struct {
	opts  Options
	log   logrus.FieldLogger
	pacer *pacer
	now   func() time.Time
}

// New validates opts and returns a Sequencer.
func New(opts Options) (*Sequencer, error) {
	switch {
	case opts.ListingURL == "":
		return nil, fmt.Errorf("crawl: listing url is required")
	case opts.List == nil || opts.Detail == nil:
		return nil, fmt.Errorf("crawl: list and detail schemas are required")
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("crawl: fetcher is required")
	case opts.Sink == nil:
		return nil, fmt.Errorf("crawl: sink is required")
	}
	if _, err := url.Parse(opts.ListingURL); err != nil {
		return nil, fmt.Errorf("crawl: listing url: %w", err)
	}
	if opts.LinkField == "" {
		opts.LinkField = "links"
	}
	if opts.ImageTarget == "" {
		opts.ImageTarget = "image"
	}
	if opts.SinkName == "" {
		opts.SinkName = "sink"
	}

	s := &Sequencer{
		opts:  opts,
		log:   opts.Logger,
		pacer: newPacer(opts.Rand, opts.MinDelay, opts.Jitter, opts.Sleep),
		now:   opts.Now,
	}
	if s.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		s.log = l
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run crawls once. The returned error is non-nil only when the listing step
// fails or ctx is cancelled; per-item failures are in Summary.Failed.
func (s *Sequencer) Run(ctx context.Context) (Summary, error) {
	start := s.now()
	var sum Summary

	links, err := s.discover(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(links)
	s.log.WithFields(logrus.Fields{"listing": s.opts.ListingURL, "links": len(links)}).Info("discovered detail links")

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			s.finish(&sum, start)
			return sum, err
		}
		if i > 0 && !s.pacer.Wait(ctx) {
			s.finish(&sum, start)
			return sum, ctx.Err()
		}

		res := s.processItem(ctx, i+1, len(links), link)
		if res.OK() {
			sum.Succeeded++
			metrics.RecordItem("ok")
		} else {
			sum.Failed = append(sum.Failed, res)
			metrics.RecordItem("failed")
		}
	}

	s.finish(&sum, start)
	return sum, nil
}

func (s *Sequencer) finish(sum *Summary, start time.Time) {
	sum.Duration = s.now().Sub(start)
	entry := s.log.WithFields(logrus.Fields{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"failed":    len(sum.Failed),
		"duration":  sum.Duration.String(),
	})
	if len(sum.Failed) == 0 {
		entry.Info("crawl finished")
		return
	}
	for _, f := range sum.Failed {
		s.log.WithField("index", f.Index).WithField("link", f.URL).WithError(f.Err).Warn("failed item")
	}
	entry.Warn("crawl finished with failures")
}

// discover fetches the listing page and returns its resolved detail links.
func (s *Sequencer) discover(ctx context.Context) ([]string, error) {
	t0 := time.Now()
	html, err := s.opts.Fetcher.GetText(ctx, s.opts.ListingURL)
	metrics.RecordStep("listing", err, time.Since(t0))
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	rec, err := extracthtml.ExtractHTML(ctx, html, s.opts.List)
	if err != nil {
		return nil, fmt.Errorf("extract listing: %w", err)
	}

	base, _ := url.Parse(s.opts.ListingURL)
	links := extracthtml.ResolveLinks(base, rec[s.opts.LinkField])
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: field %q of %s", ErrNoLinks, s.opts.LinkField, s.opts.ListingURL)
	}
	if s.opts.MaxItems > 0 && len(links) > s.opts.MaxItems {
		links = links[:s.opts.MaxItems]
	}
	return links, nil
}

// processItem runs one detail link through fetch, extract, image, enrich and
// submit. Every failure is captured in the result.
func (s *Sequencer) processItem(ctx context.Context, index, total int, link string) ItemResult {
	res := ItemResult{Index: index, URL: link}
	log := s.log.WithFields(logrus.Fields{"item": fmt.Sprintf("%d/%d", index, total), "link": link})

	fail := func(step string, err error) ItemResult {
		res.Err = &ItemError{Index: index, URL: link, Step: step, Err: err}
		log.WithError(err).WithField("step", step).Error("item failed")
		return res
	}

	var html string
	if err := s.step(StepFetch, func() (err error) {
		html, err = s.opts.Fetcher.GetText(ctx, link)
		return err
	}); err != nil {
		return fail(StepFetch, err)
	}

	var rec extracthtml.Record
	if err := s.step(StepExtract, func() (err error) {
		rec, err = extracthtml.ExtractHTML(ctx, html, s.opts.Detail)
		return err
	}); err != nil {
		return fail(StepExtract, err)
	}
	rec["url"] = link

	if s.opts.ImageField != "" {
		res.ImageErr = s.attachImage(ctx, rec, link)
		if res.ImageErr != nil {
			log.WithError(res.ImageErr).Warn("image not attached")
		}
	}

	if s.opts.Enricher != nil {
		err := s.step(StepEnrich, func() error {
			rep := s.opts.Enricher.Apply(rec)
			log.WithFields(logrus.Fields{
				"merged":    rep.Merged,
				"fallbacks": rep.Fallbacks,
				"derived":   rep.Derived,
			}).Debug("enriched")
			return rep.BlobErr
		})
		if err != nil {
			log.WithError(err).Warn("embedded data ignored")
		}
	}

	res.Missing = s.missing(rec)
	for _, f := range res.Missing {
		metrics.RecordMissingField(f)
		log.WithField("field", f).Info("field missing")
	}

	var body []byte
	if err := s.step(StepEncode, func() (err error) {
		body, err = json.Marshal(rec)
		return err
	}); err != nil {
		return fail(StepEncode, err)
	}

	doc := storage.Document{
		Collection: s.opts.Collection,
		DocType:    s.opts.DocType,
		SourceURL:  link,
		Body:       body,
		CreatedAt:  s.now(),
	}
	err := s.step(StepSubmit, func() (err error) {
		res.ID, err = s.opts.Sink.Submit(ctx, doc)
		return err
	})
	metrics.RecordSubmission(s.opts.SinkName, err)
	if err != nil {
		return fail(StepSubmit, err)
	}

	if res.ID == "" {
		log.Warn("submitted; no id returned")
	} else {
		log.WithField("id", res.ID).Info("submitted")
	}
	return res
}

func (s *Sequencer) step(name string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	metrics.RecordStep(name, err, time.Since(t0))
	return err
}

func (s *Sequencer) attachImage(ctx context.Context, rec extracthtml.Record, link string) error {
	src := imageURL(rec[s.opts.ImageField])
	if src == "" {
		return nil
	}
	base, _ := url.Parse(link)
	abs := extracthtml.ResolveHref(base, src)

	return s.step(StepImage, func() error {
		b, err := s.opts.Fetcher.GetBytes(ctx, abs)
		if err != nil {
			return err
		}
		rec[s.opts.ImageTarget] = base64.StdEncoding.EncodeToString(b)
		return nil
	})
}

// imageURL takes a single URL, or the first of an ambiguous list.
func imageURL(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (s *Sequencer) missing(rec extracthtml.Record) []string {
	if len(s.opts.ExpectedFields) == 0 {
		return rec.Missing()
	}
	var out []string
	for _, f := range s.opts.ExpectedFields {
		if !rec.Present(f) {
			out = append(out, f)
		}
	}
	return out
}
