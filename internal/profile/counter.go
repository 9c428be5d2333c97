package profile

import (
	"math"
	"sort"
)

// Counter is a multiset of string keys with per-key counts.
//
// Keys remember the order in which they were first added. That order is the
// tie-break for KeepTopN and SortedByCount: among equal counts, the key seen
// first wins. The same input sequence therefore always yields the same result.
type Counter struct {
	idx  map[string]int
	keys []string
	cnts []int64
}

// CounterEntry is a single key with its count.
type CounterEntry struct {
	Key   string
	Count int64
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{idx: make(map[string]int)}
}

// Add increments key by one and reports whether the key was new.
func (c *Counter) Add(key string) bool {
	return c.AddN(key, 1)
}

// AddN increments key by n and reports whether the key was new.
// Non-positive n is ignored.
func (c *Counter) AddN(key string, n int64) bool {
	if n <= 0 {
		return false
	}
	if i, ok := c.idx[key]; ok {
		c.cnts[i] += n
		return false
	}
	c.idx[key] = len(c.keys)
	c.keys = append(c.keys, key)
	c.cnts = append(c.cnts, n)
	return true
}

// Get returns the count for key, or 0 when absent.
func (c *Counter) Get(key string) int64 {
	if i, ok := c.idx[key]; ok {
		return c.cnts[i]
	}
	return 0
}

// Len is the number of distinct keys.
func (c *Counter) Len() int { return len(c.keys) }

// Sum is the total of all counts.
func (c *Counter) Sum() int64 {
	var s int64
	for _, n := range c.cnts {
		s += n
	}
	return s
}

// Max is the largest count, or 0 for an empty counter.
func (c *Counter) Max() int64 {
	var m int64
	for _, n := range c.cnts {
		if n > m {
			m = n
		}
	}
	return m
}

// Mean is the average count per distinct key.
func (c *Counter) Mean() float64 {
	if len(c.cnts) == 0 {
		return 0
	}
	return float64(c.Sum()) / float64(len(c.cnts))
}

// Stdev is the population standard deviation of the per-key counts.
func (c *Counter) Stdev() float64 {
	if len(c.cnts) == 0 {
		return 0
	}
	mean := c.Mean()
	var ss float64
	for _, n := range c.cnts {
		d := float64(n) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(c.cnts)))
}

// KeepTopN retains the n keys with the highest counts. It is a no-op when the
// counter already holds n keys or fewer. Ties are resolved by first-seen order.
func (c *Counter) KeepTopN(n int) {
	if n < 0 {
		n = 0
	}
	if len(c.keys) <= n {
		return
	}
	order := c.rankOrder()[:n]
	// Rebuild in first-seen order so later ties keep resolving the same way.
	sort.Ints(order)

	keys := make([]string, 0, n)
	cnts := make([]int64, 0, n)
	idx := make(map[string]int, n)
	for _, i := range order {
		idx[c.keys[i]] = len(keys)
		keys = append(keys, c.keys[i])
		cnts = append(cnts, c.cnts[i])
	}
	c.keys, c.cnts, c.idx = keys, cnts, idx
}

// Entries returns every key with its count in first-seen order.
func (c *Counter) Entries() []CounterEntry {
	out := make([]CounterEntry, len(c.keys))
	for i := range c.keys {
		out[i] = CounterEntry{Key: c.keys[i], Count: c.cnts[i]}
	}
	return out
}

// SortedByCount returns every entry ordered by descending count.
func (c *Counter) SortedByCount() []CounterEntry {
	order := c.rankOrder()
	out := make([]CounterEntry, len(order))
	for j, i := range order {
		out[j] = CounterEntry{Key: c.keys[i], Count: c.cnts[i]}
	}
	return out
}

// rankOrder returns key positions sorted by count desc, then first-seen asc.
func (c *Counter) rankOrder() []int {
	order := make([]int, len(c.keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.cnts[order[a]] > c.cnts[order[b]]
	})
	return order
}
