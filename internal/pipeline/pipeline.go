package pipeline

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/spanfix/internal/merge"
	"github.com/ppiankov/spanfix/internal/store/sqlite"
	"github.com/ppiankov/spanfix/internal/traceio"
	"github.com/ppiankov/spanfix/internal/tracer"
)

// Request describes one transform run.
type Request struct {
	Input  string
	Output string

	Reconstruct bool
	Merge       bool

	Tracer tracer.Options
	Merger merge.Options
	Save   traceio.SaveOptions
}

// Summary reports what a run did.
type Summary struct {
	Input     string `json:"input"`
	Output    string `json:"output"`
	EventsIn  int    `json:"events_in"`
	EventsOut int    `json:"events_out"`
	// Spans is set by Export.
	Spans int `json:"spans,omitempty"`

	exported bool

	Tracer   *tracer.Stats `json:"tracer,omitempty"`
	Unclosed []int64       `json:"unclosed,omitempty"`
	Merge    *merge.Stats  `json:"merge,omitempty"`
	Groups   []merge.Group `json:"groups,omitempty"`
}

// String renders the one-line summary printed after a run.
func (s *Summary) String() string {
	if s.exported {
		return fmt.Sprintf("%s: %s events -> %s spans (%s)",
			s.Input, humanize.Comma(int64(s.EventsIn)), humanize.Comma(int64(s.Spans)), s.Output)
	}
	return fmt.Sprintf("%s: %s events -> %s events (%s)",
		s.Input, humanize.Comma(int64(s.EventsIn)), humanize.Comma(int64(s.EventsOut)), s.Output)
}

// Run loads req.Input, applies the requested stages in order
// (reconstruct, then merge) and writes req.Output. Nothing is written
// when any stage fails.
func Run(ctx context.Context, req Request) (*Summary, error) {
	if req.Input == "" || req.Output == "" {
		return nil, fmt.Errorf("input and output paths are required")
	}

	doc, err := traceio.Load(req.Input)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Input: req.Input, Output: req.Output, EventsIn: len(doc.Events)}

	if req.Reconstruct {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := tracer.Reconstruct(doc.Events, req.Tracer)
		doc.Events = res.Events
		sum.Tracer = &res.Stats
		sum.Unclosed = res.Unclosed
	}

	if req.Merge {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := merge.Merge(doc.Events, req.Merger)
		doc.Events = res.Events
		sum.Merge = &res.Stats
		sum.Groups = res.Groups
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := traceio.Save(req.Output, doc, req.Save); err != nil {
		return nil, fmt.Errorf("write %s: %w", req.Output, err)
	}
	sum.EventsOut = len(doc.Events)
	return sum, nil
}

// Export reconstructs span identity for the trace at input and writes
// the resulting span tree to a SQLite database at dbPath, replacing any
// spans already stored there.
func Export(ctx context.Context, input, dbPath string, opts tracer.Options) (*Summary, error) {
	if input == "" || dbPath == "" {
		return nil, fmt.Errorf("input and database paths are required")
	}

	doc, err := traceio.Load(input)
	if err != nil {
		return nil, err
	}
	res := tracer.Reconstruct(doc.Events, opts)

	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	n, err := store.ReplaceSpans(ctx, res.Events)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Input:     input,
		Output:    dbPath,
		EventsIn:  len(doc.Events),
		EventsOut: len(res.Events),
		Spans:     n,
		Tracer:    &res.Stats,
		Unclosed:  res.Unclosed,
		exported:  true,
	}, nil
}
