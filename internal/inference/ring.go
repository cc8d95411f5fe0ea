package inference

// Ring is a fixed-capacity buffer of feature vectors. Pushing into a full
// ring overwrites the oldest entry.
type Ring struct {
	arena [][]float32
	head  int // next write position
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{arena: make([][]float32, capacity)}
}

func (r *Ring) Push(v []float32) {
	r.arena[r.head] = v
	r.head = (r.head + 1) % len(r.arena)
	if r.size < len(r.arena) {
		r.size++
	}
}

func (r *Ring) Len() int   { return r.size }
func (r *Ring) Cap() int   { return len(r.arena) }
func (r *Ring) Full() bool { return r.size == len(r.arena) }

// Snapshot returns the buffered vectors oldest first. The returned slice is
// new; the vectors are shared and must not be mutated.
func (r *Ring) Snapshot() [][]float32 {
	out := make([][]float32, 0, r.size)
	start := 0
	if r.Full() {
		start = r.head
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.arena[(start+i)%len(r.arena)])
	}
	return out
}
