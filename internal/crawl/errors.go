package crawl

import (
	"errors"
	"fmt"
)

// ErrNoLinks is returned when the listing page yields no usable detail links.
var ErrNoLinks = errors.New("listing has no detail links")

// Steps of one item, used in ItemError and step metrics.
const (
	StepFetch   = "fetch"
	StepExtract = "extract"
	StepImage   = "image"
	StepEnrich  = "enrich"
	StepEncode  = "encode"
	StepSubmit  = "submit"
)

// ItemError is a failure of one detail link.
type ItemError struct {
	Index int
	URL   string
	Step  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %s: %v", e.Index, e.URL, e.Step, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
