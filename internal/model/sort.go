package model

import "sort"

// SortByTimestamp orders events by ts ascending in place. The sort is
// stable: events sharing a timestamp keep their relative order.
func SortByTimestamp(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}

// CloneAll deep-copies every event into a new slice.
func CloneAll(events []Event) []Event {
	out := make([]Event, len(events))
	for i := range events {
		out[i] = events[i].Clone()
	}
	return out
}

// CountPhase returns how many events carry phase p.
func CountPhase(events []Event, p Phase) int {
	n := 0
	for i := range events {
		if events[i].Phase == p {
			n++
		}
	}
	return n
}
