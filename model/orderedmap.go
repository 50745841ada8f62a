package model

// orderedMap is a map that preserves key insertion order.
type orderedMap[V any] struct {
	keys   []string
	values map[string]V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{
		keys:   make([]string, 0),
		values: make(map[string]V),
	}
}

// Set sets the value for a key. A new key goes last; an existing key keeps its position.
func (om *orderedMap[V]) Set(key string, value V) {
	if _, exists := om.values[key]; !exists {
		om.keys = append(om.keys, key)
	}
	om.values[key] = value
}

// Get retrieves the value for a key.
func (om *orderedMap[V]) Get(key string) (V, bool) {
	v, ok := om.values[key]
	return v, ok
}

// Delete removes a key, keeping the order of the others.
func (om *orderedMap[V]) Delete(key string) {
	if _, exists := om.values[key]; !exists {
		return
	}
	delete(om.values, key)
	for i, k := range om.keys {
		if k == key {
			om.keys = append(om.keys[:i], om.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (om *orderedMap[V]) Keys() []string {
	return append([]string(nil), om.keys...)
}

// Values returns the values in insertion order.
func (om *orderedMap[V]) Values() []V {
	out := make([]V, 0, len(om.keys))
	for _, k := range om.keys {
		out = append(out, om.values[k])
	}
	return out
}

func (om *orderedMap[V]) Len() int { return len(om.keys) }
