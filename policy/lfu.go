package policy

import (
	"container/heap"
	"sort"
)

// LFU evicts the least frequently used key. Ties go to the key touched longest ago.
type LFU[K comparable] struct {
	items map[K]*lfuItem[K]
	queue lfuQueue[K]
	tick  uint64
}

type lfuItem[K comparable] struct {
	key      K
	count    uint64
	lastTick uint64
	index    int
}

type lfuQueue[K comparable] []*lfuItem[K]

func (q lfuQueue[K]) Len() int { return len(q) }

func (q lfuQueue[K]) Less(i, j int) bool {
	if q[i].count == q[j].count {
		return q[i].lastTick < q[j].lastTick
	}
	return q[i].count < q[j].count
}

func (q lfuQueue[K]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *lfuQueue[K]) Push(x any) {
	item := x.(*lfuItem[K])
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *lfuQueue[K]) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// NewLFU creates a new LFU policy
func NewLFU[K comparable]() *LFU[K] {
	return &LFU[K]{items: make(map[K]*lfuItem[K])}
}

func (p *LFU[K]) touch(item *lfuItem[K]) {
	p.tick++
	item.count++
	item.lastTick = p.tick
	heap.Fix(&p.queue, item.index)
}

func (p *LFU[K]) OnGet(key K) {
	if item, exists := p.items[key]; exists {
		p.touch(item)
	}
}

func (p *LFU[K]) OnSet(key K) {
	if item, exists := p.items[key]; exists {
		p.touch(item)
		return
	}
	p.tick++
	item := &lfuItem[K]{key: key, count: 1, lastTick: p.tick}
	heap.Push(&p.queue, item)
	p.items[key] = item
}

func (p *LFU[K]) OnDelete(key K) {
	if item, exists := p.items[key]; exists {
		heap.Remove(&p.queue, item.index)
		delete(p.items, key)
	}
}

func (p *LFU[K]) OnClear() {
	p.items = make(map[K]*lfuItem[K])
	p.queue = nil
}

func (p *LFU[K]) Evict() (K, bool) {
	if len(p.queue) == 0 {
		var zero K
		return zero, false
	}
	item := heap.Pop(&p.queue).(*lfuItem[K])
	delete(p.items, item.key)
	return item.key, true
}

// Keys returns keys from most to least protected
func (p *LFU[K]) Keys() []K {
	sorted := make([]*lfuItem[K], len(p.queue))
	copy(sorted, p.queue)
	sort.Slice(sorted, func(i, j int) bool {
		return lfuQueue[K](sorted).Less(j, i)
	})
	keys := make([]K, len(sorted))
	for i, item := range sorted {
		keys[i] = item.key
	}
	return keys
}

func (p *LFU[K]) Size() int {
	return len(p.queue)
}
