package tracediff

import (
	"fmt"
	"sort"

	"github.com/ppiankov/spanfix/internal/inspect"
)

// Change represents a counter that differs between two traces.
type Change struct {
	Field   string `json:"field"`
	Old     int    `json:"old"`
	New     int    `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// NameChange represents a span name present in only one trace.
type NameChange struct {
	Type string `json:"type"` // "added", "removed"
	Name string `json:"name"`
}

// DiffResult holds the comparison of two trace reports.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	NameChanges []NameChange `json:"name_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares the reports of two traces, typically the same trace
// before and after a transform.
func Diff(old, new inspect.Report) *DiffResult {
	r := &DiffResult{}

	diffInt(r, "events", old.Events, new.Events)
	diffInt(r, "tracks", old.Tracks, new.Tracks)
	diffInt(r, "begins", old.Begins, new.Begins)
	diffInt(r, "ends", old.Ends, new.Ends)
	diffInt(r, "ids.with_id", old.WithID, new.WithID)
	diffInt(r, "ids.distinct", old.DistinctIDs, new.DistinctIDs)
	diffInt(r, "ids.with_parent_id", old.WithParentID, new.WithParentID)
	diffInt(r, "duplicate_groups", old.DuplicateGroups, new.DuplicateGroups)

	if old.SharedID != new.SharedID {
		comment := "introduced"
		if old.SharedID {
			comment = "resolved"
		}
		r.Changes = append(r.Changes, Change{
			Field:   "ids.shared",
			Old:     boolInt(old.SharedID),
			New:     boolInt(new.SharedID),
			Comment: comment,
		})
	}

	for _, p := range phaseKeys(old.Phases, new.Phases) {
		diffInt(r, "phases."+p, old.Phases[p], new.Phases[p])
	}

	diffNames(r, old.SpanNames, new.SpanNames)

	r.HasChanges = len(r.Changes) > 0 || len(r.NameChanges) > 0
	return r
}

func diffInt(r *DiffResult, field string, old, new int) {
	if old == new {
		return
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     old,
		New:     new,
		Comment: fmt.Sprintf("%+d", new-old),
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func phaseKeys(a, b map[string]int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func diffNames(r *DiffResult, oldNames, newNames []string) {
	oldSet := make(map[string]bool, len(oldNames))
	for _, n := range oldNames {
		oldSet[n] = true
	}
	newSet := make(map[string]bool, len(newNames))
	for _, n := range newNames {
		newSet[n] = true
	}

	for _, n := range newNames {
		if !oldSet[n] {
			r.NameChanges = append(r.NameChanges, NameChange{Type: "added", Name: n})
		}
	}
	for _, n := range oldNames {
		if !newSet[n] {
			r.NameChanges = append(r.NameChanges, NameChange{Type: "removed", Name: n})
		}
	}
}
