package graph

// pair is a directed (source, target) key.
type pair[K comparable] struct {
	source, target K
}

// pairCounter accumulates counts per directed pair and remembers the order in
// which pairs were first seen, so traversal is deterministic.
type pairCounter[K comparable] struct {
	index  map[pair[K]]int
	pairs  []pair[K]
	counts []int
}

func newPairCounter[K comparable]() *pairCounter[K] {
	return &pairCounter[K]{index: make(map[pair[K]]int)}
}

// add increments (source, target) by n and returns the new cumulative count.
func (c *pairCounter[K]) add(source, target K, n int) int {
	key := pair[K]{source, target}
	i, ok := c.index[key]
	if !ok {
		i = len(c.pairs)
		c.index[key] = i
		c.pairs = append(c.pairs, key)
		c.counts = append(c.counts, 0)
	}
	c.counts[i] += n
	return c.counts[i]
}

func (c *pairCounter[K]) len() int { return len(c.pairs) }

func (c *pairCounter[K]) each(fn func(source, target K, count int)) {
	for i, p := range c.pairs {
		fn(p.source, p.target, c.counts[i])
	}
}
