package generator

// orderedSet keeps the first value seen for each key, in insertion order.
type orderedSet[K comparable, V any] struct {
	keys []K
	vals map[K]V
}

func newOrderedSet[K comparable, V any]() *orderedSet[K, V] {
	return &orderedSet[K, V]{vals: make(map[K]V)}
}

// Add inserts v under k unless k is already present. It reports whether v was added.
func (s *orderedSet[K, V]) Add(k K, v V) bool {
	if _, ok := s.vals[k]; ok {
		return false
	}
	s.keys = append(s.keys, k)
	s.vals[k] = v
	return true
}

func (s *orderedSet[K, V]) Has(k K) bool {
	_, ok := s.vals[k]
	return ok
}

func (s *orderedSet[K, V]) Len() int { return len(s.keys) }

// Values returns the values in insertion order.
func (s *orderedSet[K, V]) Values() []V {
	out := make([]V, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.vals[k])
	}
	return out
}
