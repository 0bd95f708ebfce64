package unit

// Tuple is the immutable fixed-length sequence built by BUILD_TUPLE. By
// convention it is never mutated after construction; it may be shared across
// goroutines through the slot cache.
type Tuple []any

// Len returns the number of elements.
func (t Tuple) Len() int {
	return len(t)
}

// At returns the element at the given index.
func (t Tuple) At(i int) any {
	return t[i]
}
