package tracer

// idSequence hands out span ids for one reconstruction pass.
// Ids start at 1 and increase monotonically; a fresh sequence is created
// per call so separate files never share counter state.
type idSequence struct {
	next int64
}

func newIDSequence() *idSequence {
	return &idSequence{next: 1}
}

// Next returns the next unused id.
func (s *idSequence) Next() int64 {
	id := s.next
	s.next++
	return id
}
