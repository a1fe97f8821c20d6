package tracer

import (
	"sort"

	"github.com/ppiankov/spanfix/internal/model"
)

// spanStack is the nesting stack of currently open span ids on one track.
type spanStack struct {
	ids []int64
}

func (s *spanStack) Push(id int64) {
	s.ids = append(s.ids, id)
}

// Pop removes and returns the innermost open span.
func (s *spanStack) Pop() (int64, bool) {
	if len(s.ids) == 0 {
		return 0, false
	}
	id := s.ids[len(s.ids)-1]
	s.ids = s.ids[:len(s.ids)-1]
	return id, true
}

// Top returns the innermost open span without removing it.
func (s *spanStack) Top() (int64, bool) {
	if len(s.ids) == 0 {
		return 0, false
	}
	return s.ids[len(s.ids)-1], true
}

func (s *spanStack) Depth() int {
	return len(s.ids)
}

// stackSet keeps one stack per track. In single-track mode every event
// shares the stack stored under the zero Track.
type stackSet struct {
	singleTrack bool
	stacks      map[model.Track]*spanStack
}

func newStackSet(singleTrack bool) *stackSet {
	return &stackSet{
		singleTrack: singleTrack,
		stacks:      make(map[model.Track]*spanStack),
	}
}

// For returns the stack that owns events on track t, creating it on first use.
func (ss *stackSet) For(t model.Track) *spanStack {
	if ss.singleTrack {
		t = model.Track{}
	}
	s, ok := ss.stacks[t]
	if !ok {
		s = &spanStack{}
		ss.stacks[t] = s
	}
	return s
}

// Len returns the number of distinct stacks seen.
func (ss *stackSet) Len() int {
	return len(ss.stacks)
}

// Unclosed returns the ids still open across all stacks, ascending.
func (ss *stackSet) Unclosed() []int64 {
	var ids []int64
	for _, s := range ss.stacks {
		ids = append(ids, s.ids...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
