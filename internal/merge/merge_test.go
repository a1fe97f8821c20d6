package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/spanfix/internal/model"
)

func ev(ph model.Phase, name string, ts float64, args map[string]any) model.Event {
	return model.Event{Name: name, Phase: ph, Timestamp: ts, PID: 1, TID: 1, Args: args}
}

func threePairs() []model.Event {
	args := map[string]any{"path": "/src/a.rs"}
	return []model.Event{
		ev(model.PhaseBegin, "resolve", 0, args),
		ev(model.PhaseEnd, "resolve", 5, args),
		ev(model.PhaseBegin, "resolve", 10, args),
		ev(model.PhaseEnd, "resolve", 15, args),
		ev(model.PhaseBegin, "resolve", 20, args),
		ev(model.PhaseEnd, "resolve", 25, args),
	}
}

func TestMergeThreeAlternatingPairs(t *testing.T) {
	res := Merge(threePairs(), Options{})

	if len(res.Events) != 1 {
		t.Fatalf("expected 1 merged event, got %d", len(res.Events))
	}
	m := res.Events[0]
	if m.Phase != model.PhaseBegin || m.Name != "resolve" {
		t.Errorf("expected merged Begin for resolve, got %s %s", m.Phase, m.Name)
	}
	if m.Timestamp != 25 {
		t.Errorf("expected end boundary ts=25, got %v", m.Timestamp)
	}
	if m.Duration == nil || *m.Duration != 25 {
		t.Errorf("expected dur=25 covering ts 0..25, got %v", m.Duration)
	}
	if m.Timestamp-*m.Duration != 0 {
		t.Errorf("expected span to start at ts=0, got %v", m.Timestamp-*m.Duration)
	}
	if res.Stats.Merged != 1 || res.Stats.Superseded != 6 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if len(res.Groups) != 1 || res.Groups[0].Outcome != OutcomeMerged || res.Groups[0].Size != 6 {
		t.Errorf("unexpected groups: %+v", res.Groups)
	}
}

func TestMergeCollapseUsesLastEndDuration(t *testing.T) {
	events := threePairs()
	events[5].Duration = model.Float64(7)
	events[0].ID = model.Int64(3)

	res := Merge(events, Options{Style: StyleCollapse})

	m := res.Events[0]
	if *m.Duration != 7 {
		t.Errorf("expected dur copied from last End, got %v", *m.Duration)
	}
	if m.ID == nil || *m.ID != 3 {
		t.Errorf("expected id copied from first Begin, got %v", m.ID)
	}
}

func TestMergePairStyle(t *testing.T) {
	events := threePairs()
	events[0].ID = model.Int64(4)
	events[5].ID = model.Int64(9)

	res := Merge(events, Options{Style: StylePair})

	if len(res.Events) != 2 {
		t.Fatalf("expected B/E pair, got %d events", len(res.Events))
	}
	b, e := res.Events[0], res.Events[1]
	if b.Phase != model.PhaseBegin || b.Timestamp != 0 {
		t.Errorf("expected Begin at 0, got %s at %v", b.Phase, b.Timestamp)
	}
	if e.Phase != model.PhaseEnd || e.Timestamp != 25 {
		t.Errorf("expected End at 25, got %s at %v", e.Phase, e.Timestamp)
	}
	if e.ID == nil || *e.ID != 4 {
		t.Errorf("expected End to share the Begin id 4, got %v", e.ID)
	}
}

func TestMergeCompleteStyle(t *testing.T) {
	res := Merge(threePairs(), Options{Style: StyleComplete})

	if len(res.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(res.Events))
	}
	x := res.Events[0]
	if x.Phase != model.PhaseComplete || x.Timestamp != 0 || *x.Duration != 25 {
		t.Errorf("expected X at 0 dur 25, got %s at %v dur %v", x.Phase, x.Timestamp, *x.Duration)
	}
}

func TestMergeSkipsNonAlternatingGroup(t *testing.T) {
	events := []model.Event{
		ev(model.PhaseBegin, "f", 0, nil),
		ev(model.PhaseBegin, "f", 1, nil),
		ev(model.PhaseEnd, "f", 2, nil),
	}

	res := Merge(events, Options{})

	if diff := cmp.Diff(events, res.Events); diff != "" {
		t.Errorf("expected group emitted unchanged (-want +got):\n%s", diff)
	}
	if res.Stats.Skipped != 1 || res.Groups[0].Outcome != OutcomeNotAlternating {
		t.Errorf("expected skipped group, got %+v / %+v", res.Stats, res.Groups)
	}
}

func TestMergeLeavesSinglePairAlone(t *testing.T) {
	events := []model.Event{
		ev(model.PhaseBegin, "f", 0, nil),
		ev(model.PhaseEnd, "f", 2, nil),
	}
	res := Merge(events, Options{})
	if diff := cmp.Diff(events, res.Events); diff != "" {
		t.Errorf("single pair changed (-want +got):\n%s", diff)
	}
	if res.Stats.Candidates != 0 {
		t.Errorf("expected no candidates, got %d", res.Stats.Candidates)
	}
}

func TestMergeGroupsByArgsPidTid(t *testing.T) {
	a := map[string]any{"path": "a"}
	b := map[string]any{"path": "b"}
	events := []model.Event{
		ev(model.PhaseBegin, "f", 0, a),
		ev(model.PhaseEnd, "f", 1, a),
		ev(model.PhaseBegin, "f", 2, b),
		ev(model.PhaseEnd, "f", 3, b),
	}
	other := ev(model.PhaseBegin, "f", 4, a)
	other.TID = 2
	otherEnd := ev(model.PhaseEnd, "f", 5, a)
	otherEnd.TID = 2
	events = append(events, other, otherEnd)

	res := Merge(events, Options{})
	if res.Stats.Candidates != 0 || len(res.Events) != len(events) {
		t.Errorf("expected no merge across distinct keys, got %+v", res.Stats)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	for _, style := range []Style{StyleCollapse, StylePair, StyleComplete} {
		input := append(threePairs(),
			ev(model.PhaseInstant, "result", 12, map[string]any{"return": "ok"}),
			ev(model.PhaseBegin, "other", 30, nil),
			ev(model.PhaseEnd, "other", 31, nil),
		)
		once := Merge(input, Options{Style: style})
		twice := Merge(once.Events, Options{Style: style})

		if diff := cmp.Diff(once.Events, twice.Events); diff != "" {
			t.Errorf("%s: second merge changed output (-once +twice):\n%s", style, diff)
		}
		if twice.Stats.Candidates != 0 {
			t.Errorf("%s: expected no candidates on second pass, got %d", style, twice.Stats.Candidates)
		}
	}
}

func TestMergeKeepsOtherPhasesAndSorts(t *testing.T) {
	input := append(threePairs(),
		ev(model.PhaseInstant, "result", 12, nil),
		model.Event{Name: "thread_name", Phase: model.PhaseMetadata, PID: 1, TID: 1},
	)

	res := Merge(input, Options{Style: StyleComplete})

	var got []string
	for _, e := range res.Events {
		got = append(got, string(e.Phase)+":"+e.Name)
	}
	// X is appended after retained events, so it follows M at ts=0.
	want := []string{"M:thread_name", "X:resolve", "i:result"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeInputNotModified(t *testing.T) {
	in := threePairs()
	want := model.CloneAll(in)
	Merge(in, Options{})
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func TestMergeConservation(t *testing.T) {
	for k := 2; k <= 6; k++ {
		var events []model.Event
		maxTS := 0.0
		for i := 0; i < k; i++ {
			start := float64(i * 10)
			events = append(events,
				ev(model.PhaseBegin, "g", start, nil),
				ev(model.PhaseEnd, "g", start+3, nil),
			)
			maxTS = start + 3
		}
		res := Merge(events, Options{})
		if len(res.Events) != 1 {
			t.Fatalf("k=%d: expected 1 event, got %d", k, len(res.Events))
		}
		if res.Events[0].Timestamp != maxTS {
			t.Errorf("k=%d: expected end boundary %v, got %v", k, maxTS, res.Events[0].Timestamp)
		}
	}
}

func TestParseStyle(t *testing.T) {
	for in, want := range map[string]Style{"": StyleCollapse, "PAIR": StylePair, " complete ": StyleComplete} {
		got, err := ParseStyle(in)
		if err != nil || got != want {
			t.Errorf("ParseStyle(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStyle("squash"); err == nil {
		t.Error("expected error for unknown style")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := model.Event{Name: "f", Args: map[string]any{"x": 1, "y": "z"}}
	b := model.Event{Name: "f", Args: map[string]any{"y": "z", "x": 1}}
	ka, kb := KeyOf(&a), KeyOf(&b)
	if ka != kb || ka.Fingerprint() != kb.Fingerprint() {
		t.Errorf("expected equal keys, got %v / %v", ka, kb)
	}
	if len(ka.Fingerprint()) != 16 {
		t.Errorf("expected 16 hex chars, got %q", ka.Fingerprint())
	}
}

func TestMergeReparentsChildrenOfSupersededBegins(t *testing.T) {
	withID := func(e model.Event, id, parent int64) model.Event {
		e.ID = model.Int64(id)
		if parent > 0 {
			e.ParentID = model.Int64(parent)
		}
		return e
	}
	events := []model.Event{
		withID(ev(model.PhaseBegin, "f", 0, nil), 1, 0),
		withID(ev(model.PhaseBegin, "g", 1, nil), 2, 1),
		withID(ev(model.PhaseEnd, "g", 2, nil), 2, 0),
		withID(ev(model.PhaseEnd, "f", 5, nil), 1, 0),
		withID(ev(model.PhaseBegin, "f", 10, nil), 3, 0),
		withID(ev(model.PhaseBegin, "h", 11, nil), 4, 3),
		withID(ev(model.PhaseEnd, "h", 12, nil), 4, 0),
		withID(ev(model.PhaseEnd, "f", 15, nil), 3, 0),
	}

	res := Merge(events, Options{Style: StylePair})
	if res.Stats.Reparented != 1 {
		t.Errorf("expected 1 re-parented event, got %d", res.Stats.Reparented)
	}
	for _, e := range res.Events {
		if e.Name == "h" && e.Phase == model.PhaseBegin {
			if e.ParentID == nil || *e.ParentID != 1 {
				t.Errorf("expected h to be re-parented to 1, got %v", e.ParentID)
			}
		}
	}
	if events[5].ParentID == nil || *events[5].ParentID != 3 {
		t.Error("input events must not be modified")
	}
}
