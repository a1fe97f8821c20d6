package model

import "fmt"

// Phase is the Chrome trace event kind marker carried in "ph".
type Phase string

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseInstant  Phase = "i"
	PhaseMetadata Phase = "M"
	PhaseComplete Phase = "X"
)

// IsBoundary reports whether the phase opens or closes a span.
func (p Phase) IsBoundary() bool {
	return p == PhaseBegin || p == PhaseEnd
}

// Track identifies one execution timeline. Nesting is only meaningful
// within a single track.
type Track struct {
	PID int64
	TID int64
}

func (t Track) String() string {
	return fmt.Sprintf("%d/%d", t.PID, t.TID)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
