package inspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/spanfix/internal/model"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatText renders a Report for a terminal.
func FormatText(source string, r Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Trace: %s | %s events on %d track(s)\n", source, humanize.Comma(int64(r.Events)), r.Tracks))
	b.WriteString(separator + "\n")

	phases := make([]string, 0, len(r.Phases))
	for p := range r.Phases {
		phases = append(phases, p)
	}
	sort.Strings(phases)
	for _, p := range phases {
		b.WriteString(fmt.Sprintf("  ph=%-3s %12s\n", p, humanize.Comma(int64(r.Phases[p]))))
	}

	b.WriteString(separator + "\n")
	b.WriteString(fmt.Sprintf("Begin/End:        %s / %s\n", humanize.Comma(int64(r.Begins)), humanize.Comma(int64(r.Ends))))
	b.WriteString(fmt.Sprintf("With id:          %s (%s distinct)\n", humanize.Comma(int64(r.WithID)), humanize.Comma(int64(r.DistinctIDs))))
	b.WriteString(fmt.Sprintf("With parentId:    %s\n", humanize.Comma(int64(r.WithParentID))))
	b.WriteString(fmt.Sprintf("Duplicate groups: %s\n", humanize.Comma(int64(r.DuplicateGroups))))
	if len(r.SpanNames) > 0 {
		b.WriteString(fmt.Sprintf("Span names:       %s\n", truncate(strings.Join(r.SpanNames, ", "), 60)))
	}

	b.WriteString(separator + "\n")
	b.WriteString(diagnosis(r) + "\n")
	return b.String()
}

// FormatJSON renders a Report as indented JSON.
func FormatJSON(r Report) (string, error) {
	data, err := model.JSON.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

func diagnosis(r Report) string {
	switch {
	case r.Begins == 0:
		return "No Begin events: nothing to reconstruct."
	case r.SharedID:
		return "All spans share one id: run `spanfix ids` to assign distinct ids."
	case r.WithID == 0:
		return "Spans carry no id: run `spanfix ids` to assign ids and parents."
	case r.DuplicateGroups > 0:
		return fmt.Sprintf("%d duplicate span group(s): run `spanfix merge` to collapse them.", r.DuplicateGroups)
	default:
		return "Span identity present."
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
