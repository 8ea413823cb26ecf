package topk

import (
	"math"
	"sort"
)

// Entry is one candidate held by a Selector.
type Entry[T any] struct {
	Item     T
	Distance float64
}

// Selector keeps the k lowest-distance items seen so far in ascending order.
// Items with equal distance keep their insertion order.
type Selector[T any] struct {
	k       int
	entries []Entry[T]
}

func New[T any](k int) *Selector[T] {
	if k < 0 {
		k = 0
	}
	return &Selector[T]{k: k, entries: make([]Entry[T], 0, k+1)}
}

func (s *Selector[T]) K() int { return s.k }

func (s *Selector[T]) Len() int { return len(s.entries) }

func (s *Selector[T]) Full() bool { return len(s.entries) >= s.k }

// Insert places item at its ascending position and drops the worst entry
// once more than k are held.
func (s *Selector[T]) Insert(distance float64, item T) {
	if s.k == 0 {
		return
	}
	if s.Full() && distance >= s.entries[len(s.entries)-1].Distance {
		return
	}
	pos := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Distance > distance
	})
	s.entries = append(s.entries, Entry[T]{})
	copy(s.entries[pos+1:], s.entries[pos:])
	s.entries[pos] = Entry[T]{Item: item, Distance: distance}
	if len(s.entries) > s.k {
		s.entries = s.entries[:s.k]
	}
}

// Worst returns the k-th smallest distance. It reports false until k
// entries are held.
func (s *Selector[T]) Worst() (float64, bool) {
	if s.k == 0 || len(s.entries) < s.k {
		return 0, false
	}
	return s.entries[len(s.entries)-1].Distance, true
}

// Threshold is Worst as a pruning bound: +Inf until the selector is full.
func (s *Selector[T]) Threshold() float64 {
	if w, ok := s.Worst(); ok {
		return w
	}
	return math.Inf(1)
}

// Entries returns a copy of the held entries, best first.
func (s *Selector[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(s.entries))
	copy(out, s.entries)
	return out
}

// Merge inserts every entry of other. Merging partitions in scan order gives
// the same result as a single sequential scan.
func (s *Selector[T]) Merge(other *Selector[T]) {
	for _, e := range other.entries {
		s.Insert(e.Distance, e.Item)
	}
}
