package inspect

import (
	"sort"

	"github.com/ppiankov/spanfix/internal/merge"
	"github.com/ppiankov/spanfix/internal/model"
)

// Report describes the identity fields present in a trace. It answers the
// questions asked when a viewer shows a flat or wrongly nested timeline:
// do Begin events carry ids, do they carry parents, and are the ids distinct.
type Report struct {
	Events          int            `json:"events"`
	Phases          map[string]int `json:"phases"`
	Begins          int            `json:"begins"`
	Ends            int            `json:"ends"`
	WithID          int            `json:"with_id"`
	WithParentID    int            `json:"with_parent_id"`
	DistinctIDs     int            `json:"distinct_ids"`
	SharedID        bool           `json:"shared_id"`
	Tracks          int            `json:"tracks"`
	DuplicateGroups int            `json:"duplicate_groups"`
	SpanNames       []string       `json:"span_names"`
}

// Analyze builds a Report. It does not modify events.
func Analyze(events []model.Event) Report {
	r := Report{
		Events: len(events),
		Phases: make(map[string]int),
	}

	ids := make(map[int64]struct{})
	tracks := make(map[model.Track]struct{})
	names := make(map[string]struct{})

	for i := range events {
		ev := &events[i]
		r.Phases[string(ev.Phase)]++
		tracks[ev.Track()] = struct{}{}

		switch ev.Phase {
		case model.PhaseBegin:
			r.Begins++
			names[ev.Name] = struct{}{}
		case model.PhaseEnd:
			r.Ends++
		}
		if ev.ID != nil {
			r.WithID++
			ids[*ev.ID] = struct{}{}
		}
		if ev.ParentID != nil {
			r.WithParentID++
		}
	}

	r.DistinctIDs = len(ids)
	r.SharedID = len(ids) == 1 && r.WithID > 2
	r.Tracks = len(tracks)

	_, groups := merge.GroupIndexes(events)
	for _, idx := range groups {
		if len(idx) > 2 {
			r.DuplicateGroups++
		}
	}

	r.SpanNames = make([]string, 0, len(names))
	for n := range names {
		r.SpanNames = append(r.SpanNames, n)
	}
	sort.Strings(r.SpanNames)

	return r
}
