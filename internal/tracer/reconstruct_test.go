package tracer

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/spanfix/internal/model"
)

func begin(name string, ts float64) model.Event {
	return model.Event{Name: name, Phase: model.PhaseBegin, Timestamp: ts, PID: 1, TID: 1}
}

func end(name string, ts float64) model.Event {
	return model.Event{Name: name, Phase: model.PhaseEnd, Timestamp: ts, PID: 1, TID: 1}
}

func onTrack(ev model.Event, pid, tid int64) model.Event {
	ev.PID, ev.TID = pid, tid
	return ev
}

func TestIDSequenceStartsAtOne(t *testing.T) {
	s := newIDSequence()
	for want := int64(1); want <= 3; want++ {
		if got := s.Next(); got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestSingleSpanSharesID(t *testing.T) {
	res := Reconstruct([]model.Event{begin("f", 0), end("f", 10)}, Options{})

	for _, ev := range res.Events {
		if ev.ID == nil || *ev.ID != 1 {
			t.Fatalf("expected id=1 on %s event, got %v", ev.Phase, ev.ID)
		}
		if ev.ParentID != nil {
			t.Errorf("expected no parentId on %s event, got %d", ev.Phase, *ev.ParentID)
		}
	}
	if res.Stats.Spans != 1 || res.Stats.OpenSpans != 0 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
}

func TestNestedSpanGetsParent(t *testing.T) {
	res := Reconstruct([]model.Event{
		begin("outer", 0),
		begin("inner", 1),
		end("inner", 5),
		end("outer", 10),
	}, Options{})

	byName := map[string]model.Event{}
	for _, ev := range res.Events {
		if ev.Phase == model.PhaseBegin {
			byName[ev.Name] = ev
		}
	}

	outer, inner := byName["outer"], byName["inner"]
	if *outer.ID != 1 || outer.ParentID != nil {
		t.Errorf("outer: expected id=1 and no parent, got id=%d parent=%v", *outer.ID, outer.ParentID)
	}
	if *inner.ID != 2 || inner.ParentID == nil || *inner.ParentID != 1 {
		t.Errorf("inner: expected id=2 parent=1, got id=%d parent=%v", *inner.ID, inner.ParentID)
	}
	if *res.Events[2].ID != 2 || *res.Events[3].ID != 1 {
		t.Errorf("expected End ids 2 then 1, got %d then %d", *res.Events[2].ID, *res.Events[3].ID)
	}
	if res.Stats.MaxDepth != 2 {
		t.Errorf("expected max depth 2, got %d", res.Stats.MaxDepth)
	}
}

func TestUnmatchedEndPassesThrough(t *testing.T) {
	stray := end("orphan", 3)
	stray.ID = model.Int64(77)

	res := Reconstruct([]model.Event{stray}, Options{})

	if len(res.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(res.Events))
	}
	if res.Events[0].ID != nil {
		t.Errorf("expected no id on unmatched End, got %d", *res.Events[0].ID)
	}
	if res.Stats.UnmatchedEnds != 1 {
		t.Errorf("expected 1 unmatched end, got %d", res.Stats.UnmatchedEnds)
	}
}

func TestUnmatchedBeginKeepsID(t *testing.T) {
	res := Reconstruct([]model.Event{begin("a", 0), begin("b", 1), end("b", 2)}, Options{})

	if res.Stats.OpenSpans != 1 {
		t.Errorf("expected 1 open span, got %d", res.Stats.OpenSpans)
	}
	if diff := cmp.Diff([]int64{1}, res.Unclosed); diff != "" {
		t.Errorf("unclosed mismatch (-want +got):\n%s", diff)
	}
	if *res.Events[0].ID != 1 {
		t.Errorf("expected open Begin to keep id 1, got %d", *res.Events[0].ID)
	}
}

func TestSortsByTimestampStably(t *testing.T) {
	meta := model.Event{Name: "thread_name", Phase: model.PhaseMetadata, PID: 1, TID: 1}
	res := Reconstruct([]model.Event{
		end("f", 10),
		begin("f", 0),
		meta,
		{Name: "mark", Phase: model.PhaseInstant, Timestamp: 5, PID: 1, TID: 1},
	}, Options{})

	var got []string
	for _, ev := range res.Events {
		got = append(got, string(ev.Phase)+":"+ev.Name)
	}
	want := []string{"B:f", "M:thread_name", "i:mark", "E:f"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if res.Events[1].ID != nil || res.Events[2].ID != nil {
		t.Error("expected non-boundary events to stay without id")
	}
}

func TestTracksNestIndependently(t *testing.T) {
	events := []model.Event{
		onTrack(begin("main", 0), 1, 1),
		onTrack(begin("worker", 1), 1, 2),
		onTrack(end("worker", 2), 1, 2),
		onTrack(end("main", 3), 1, 1),
	}

	res := Reconstruct(events, Options{})
	worker := res.Events[1]
	if worker.ParentID != nil {
		t.Errorf("expected worker span on another thread to have no parent, got %d", *worker.ParentID)
	}
	if res.Stats.Tracks != 2 {
		t.Errorf("expected 2 tracks, got %d", res.Stats.Tracks)
	}

	single := Reconstruct(events, Options{SingleTrack: true})
	worker = single.Events[1]
	if worker.ParentID == nil || *worker.ParentID != 1 {
		t.Errorf("expected single-track mode to nest worker under main, got %v", worker.ParentID)
	}
	if single.Stats.Tracks != 1 {
		t.Errorf("expected 1 track in single-track mode, got %d", single.Stats.Tracks)
	}
}

func TestEndOnOtherTrackDoesNotCloseSpan(t *testing.T) {
	res := Reconstruct([]model.Event{
		onTrack(begin("a", 0), 1, 1),
		onTrack(end("a", 1), 1, 2),
	}, Options{})

	if res.Events[1].ID != nil {
		t.Errorf("expected End on a different track to stay unmatched, got id %d", *res.Events[1].ID)
	}
	if res.Stats.UnmatchedEnds != 1 || res.Stats.OpenSpans != 1 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
}

func TestOverwritesBogusIdentity(t *testing.T) {
	a, b := begin("a", 0), begin("b", 1)
	a.ID, b.ID = model.Int64(1), model.Int64(1)
	b.ParentID = model.Int64(99)
	ea, eb := end("b", 2), end("a", 3)
	ea.ID, eb.ID = model.Int64(1), model.Int64(1)
	ea.ParentID = model.Int64(5)

	res := Reconstruct([]model.Event{a, b, ea, eb}, Options{})

	gotIDs := []int64{*res.Events[0].ID, *res.Events[1].ID, *res.Events[2].ID, *res.Events[3].ID}
	if diff := cmp.Diff([]int64{1, 2, 2, 1}, gotIDs); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if *res.Events[1].ParentID != 1 {
		t.Errorf("expected parent 1, got %d", *res.Events[1].ParentID)
	}
	if res.Events[2].ParentID != nil {
		t.Error("expected End to carry no parentId")
	}
}

func TestInputNotModified(t *testing.T) {
	in := []model.Event{end("f", 10), begin("f", 0)}
	want := model.CloneAll(in)

	Reconstruct(in, Options{})

	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

// randomNested builds a well-formed trace of n spans on a few tracks.
func randomNested(r *rand.Rand, n int) []model.Event {
	var events []model.Event
	ts := 0.0
	for tid := int64(1); tid <= 3; tid++ {
		open := []string{}
		emitted := 0
		for emitted < n || len(open) > 0 {
			ts++
			if emitted < n && (len(open) == 0 || r.Intn(2) == 0) {
				name := string(rune('a' + r.Intn(5)))
				events = append(events, onTrack(begin(name, ts), 1, tid))
				open = append(open, name)
				emitted++
				continue
			}
			name := open[len(open)-1]
			open = open[:len(open)-1]
			events = append(events, onTrack(end(name, ts), 1, tid))
		}
	}
	r.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	return events
}

func TestReconstructionProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		res := Reconstruct(randomNested(r, 20), Options{})

		open := map[int64]bool{}
		begins, pairedEnds := 0, 0
		for _, ev := range res.Events {
			switch ev.Phase {
			case model.PhaseBegin:
				begins++
				if open[*ev.ID] {
					t.Fatalf("round %d: id %d reused while open", round, *ev.ID)
				}
				if ev.ParentID != nil && !open[*ev.ParentID] {
					t.Fatalf("round %d: parent %d of span %d is not open", round, *ev.ParentID, *ev.ID)
				}
				open[*ev.ID] = true
			case model.PhaseEnd:
				if ev.ID == nil {
					t.Fatalf("round %d: End at ts %v left unmatched", round, ev.Timestamp)
				}
				pairedEnds++
				delete(open, *ev.ID)
			}
		}
		if begins != pairedEnds {
			t.Fatalf("round %d: %d begins vs %d paired ends", round, begins, pairedEnds)
		}
		if len(open) != 0 || res.Stats.OpenSpans != 0 {
			t.Fatalf("round %d: spans left open: %v", round, open)
		}
	}
}
