// Command harvest crawls a listing page, extracts each detail page with a
// declarative schema, enriches the records and submits them to a sink.
//
//	harvest crawl --config configs/cars.yaml
//	harvest extract --schema configs/cars.json5 --url https://cars.example/ad/1 --enrich
//	harvest extract --selector "dl.specs dt" --text < page.html
//	harvest validate --config configs/cars.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
