package vmath

// FastRand is a xorshift64 generator (shift triple 13/17/5)
// Sequences depend only on the seed, so orderings derived from it are stable
// across runs and platforms. Not safe for concurrent use
type FastRand struct {
	state uint64
}

// NewFastRand seeds the generator; xorshift has an all-zero fixed point so seed 0 is mapped to 1
func NewFastRand(seed uint64) *FastRand {
	if seed == 0 {
		seed = 1
	}
	return &FastRand{state: seed}
}

func (r *FastRand) Next() uint64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// Intn returns Next() % n, 0 for n <= 0
// Modulo bias is accepted; the draw must stay reproducible across implementations
func (r *FastRand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Next() % uint64(n))
}

// Float64 returns a value in [0, 1) from the top 53 bits
func (r *FastRand) Float64() float64 {
	return float64(r.Next()>>11) / (1 << 53)
}

// Range returns a value in [lo, hi], lo when the interval is empty
func (r *FastRand) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + r.Float64()*(hi-lo)
}

// Shuffle performs a Fisher-Yates pass from the tail: for i = n-1..1, swap(i, Intn(i+1))
func (r *FastRand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, r.Intn(i+1))
	}
}
