// ABOUTME: Bounded set of recently delivered message ids
// ABOUTME: Drops redeliveries after resubscription; oldest ids are evicted first

package realtime

import "container/list"

// seenSet remembers up to max message ids in insertion order.
// Not safe for concurrent use; the sync client's delivery goroutine owns it.
type seenSet struct {
	ids   map[string]*list.Element
	order *list.List
	max   int
}

func newSeenSet(max int) *seenSet {
	return &seenSet{
		ids:   make(map[string]*list.Element),
		order: list.New(),
		max:   max,
	}
}

// checkAndMark reports whether id was already seen, marking it if not.
func (s *seenSet) checkAndMark(id string) bool {
	if _, ok := s.ids[id]; ok {
		return true
	}
	if s.order.Len() >= s.max {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.ids, oldest.Value.(string))
	}
	s.ids[id] = s.order.PushBack(id)
	return false
}
