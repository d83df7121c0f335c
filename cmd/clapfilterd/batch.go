package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/dshills/clapfilter/internal/config"
	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/integration/process"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/topn"
)

// batchResult is the JSON payload a -batch run prints to stdout.
type batchResult struct {
	Lines     []string `json:"lines"`
	Indices   [][]int  `json:"indices"`
	Processed int64    `json:"processed"`
	Matched   int64    `json:"matched"`
}

// runBatch runs exactly one non-cancellable filter pass over the source
// named by opts and prints the final payload as JSON.
func runBatch(cfg config.Config, opts options) int {
	src, err := openBatchSource(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer src.Close()

	matcher := match.NewMatcher(opts.query, match.Options{})
	printer := topn.Printer{ContainerWidth: terminalContainerWidth(), Tabstop: 8}
	window := topn.NewWindow(cfg.TopNCapacity, printer, nil)

	driver := filter.NewDriver(cfg.Workers)
	if err := driver.Run(context.Background(), src, matcher, window); err != nil {
		fmt.Fprintf(os.Stderr, "Error: filter run failed: %v\n", err)
		return exitFailure
	}

	result := renderBatchResult(window)
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding result: %v\n", err)
		return exitFailure
	}
	return exitSuccess
}

func renderBatchResult(window *topn.Window) batchResult {
	snapshot := window.Snapshot()
	processed, matched := window.Counts()
	result := batchResult{
		Lines:     make([]string, 0, len(snapshot)),
		Indices:   make([][]int, 0, len(snapshot)),
		Processed: processed,
		Matched:   matched,
	}
	for _, mi := range snapshot {
		line, cols := window.Printer.Render(mi)
		result.Lines = append(result.Lines, line)
		result.Indices = append(result.Indices, cols)
	}
	return result
}

// terminalContainerWidth returns the width to truncate rendered lines to
// when stdout is an interactive terminal (manual -batch invocation for
// debugging), or 0 (no truncation) when stdout is redirected, matching
// how the JSON result is normally consumed by another process.
func terminalContainerWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	return width
}

func openBatchSource(opts options) (filter.Source, error) {
	switch {
	case opts.sourceFile != "":
		f, err := os.Open(opts.sourceFile)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", opts.sourceFile, err)
		}
		return filter.NewFileLineSource(opts.sourceFile, f, f.Close), nil

	case opts.sourceCmd != "":
		supervisor := process.NewSupervisor()
		cs, err := filter.NewCommandSource(context.Background(), supervisor, opts.sourceCmd, opts.cwd)
		if err != nil {
			return nil, fmt.Errorf("spawning %q: %w", opts.sourceCmd, err)
		}
		return cs, nil

	default:
		return nil, fmt.Errorf("no source given")
	}
}
