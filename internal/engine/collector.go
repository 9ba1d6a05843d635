package engine

import (
	"container/heap"

	"GoRowSearch/internal/search"
)

// Collector keeps the first K hits in sort order that rank strictly after an
// optional search-after marker.
type Collector struct {
	k     int
	sort  search.Sort
	after *search.RankMarker
	h     hitHeap
}

// NewCollector creates a collector for the first k hits under s.
func NewCollector(k int, s search.Sort, after *search.RankMarker) *Collector {
	if k <= 0 {
		k = 10
	}
	return &Collector{
		k:     k,
		sort:  s,
		after: after,
		h:     hitHeap{sort: s, hits: make([]search.RankedHit, 0, k)},
	}
}

// Collect offers a hit. Hits at or before the search-after marker are
// dropped, which is what makes cursor pages disjoint.
func (c *Collector) Collect(hit search.RankedHit) {
	if c.after != nil && c.sort.Compare(hit.Marker, *c.after) <= 0 {
		return
	}
	if c.h.Len() < c.k {
		heap.Push(&c.h, hit)
		return
	}
	// The heap root is the worst hit kept so far.
	if c.sort.Compare(hit.Marker, c.h.hits[0].Marker) < 0 {
		c.h.hits[0] = hit
		heap.Fix(&c.h, 0)
	}
}

// Len returns the number of hits collected so far.
func (c *Collector) Len() int {
	return c.h.Len()
}

// Results returns the collected hits in sort order.
func (c *Collector) Results() []search.RankedHit {
	result := make([]search.RankedHit, c.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&c.h).(search.RankedHit)
	}
	return result
}

// hitHeap is a max-heap in sort order: the root ranks last.
type hitHeap struct {
	sort search.Sort
	hits []search.RankedHit
}

func (h hitHeap) Len() int           { return len(h.hits) }
func (h hitHeap) Less(i, j int) bool { return h.sort.Compare(h.hits[i].Marker, h.hits[j].Marker) > 0 }
func (h hitHeap) Swap(i, j int)      { h.hits[i], h.hits[j] = h.hits[j], h.hits[i] }
func (h *hitHeap) Push(x any)        { h.hits = append(h.hits, x.(search.RankedHit)) }
func (h *hitHeap) Pop() any {
	old := h.hits
	n := len(old)
	x := old[n-1]
	h.hits = old[:n-1]
	return x
}
