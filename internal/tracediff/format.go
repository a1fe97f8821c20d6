package tracediff

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/spanfix/internal/model"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Trace diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trace diff: %s → %s\n", r.OldPath, r.NewPath)

	writeSection(&b, "", filterTopLevel(r.Changes))
	writeSection(&b, "Identity", filterChanges(r.Changes, "ids."))
	writeSection(&b, "Phases", filterChanges(r.Changes, "phases."))

	if len(r.NameChanges) > 0 {
		b.WriteString("\n  Span names:\n")
		for _, nc := range r.NameChanges {
			switch nc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", nc.Name)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", nc.Name)
			}
		}
	}

	return b.String()
}

func writeSection(b *strings.Builder, title string, changes []Change) {
	if len(changes) == 0 {
		return
	}
	indent := "  "
	b.WriteString("\n")
	if title != "" {
		fmt.Fprintf(b, "  %s:\n", title)
		indent = "    "
	}
	for _, c := range changes {
		name := c.Field
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		fmt.Fprintf(b, "%s%-18s %s → %s", indent, name+":", humanize.Comma(int64(c.Old)), humanize.Comma(int64(c.New)))
		if c.Comment != "" {
			fmt.Fprintf(b, "  (%s)", c.Comment)
		}
		b.WriteString("\n")
	}
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := model.JSON.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterChanges(changes []Change, prefix string) []Change {
	var out []Change
	for _, c := range changes {
		if strings.HasPrefix(c.Field, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func filterTopLevel(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if !strings.Contains(c.Field, ".") {
			out = append(out, c)
		}
	}
	return out
}
