package policy

import (
	"container/list"
)

// FIFO evicts keys in insertion order. Reads and overwrites do not change the order.
type FIFO[K comparable] struct {
	items map[K]*list.Element
	list  *list.List
}

// NewFIFO creates a new FIFO policy
func NewFIFO[K comparable]() *FIFO[K] {
	return &FIFO[K]{
		items: make(map[K]*list.Element),
		list:  list.New(),
	}
}

func (p *FIFO[K]) OnGet(K) {}

func (p *FIFO[K]) OnSet(key K) {
	if _, exists := p.items[key]; exists {
		return
	}
	p.items[key] = p.list.PushFront(key)
}

func (p *FIFO[K]) OnDelete(key K) {
	if element, exists := p.items[key]; exists {
		p.list.Remove(element)
		delete(p.items, key)
	}
}

func (p *FIFO[K]) OnClear() {
	p.list.Init()
	p.items = make(map[K]*list.Element)
}

// Evict removes and returns the oldest key
func (p *FIFO[K]) Evict() (K, bool) {
	element := p.list.Back()
	if element == nil {
		var zero K
		return zero, false
	}
	key := p.list.Remove(element).(K)
	delete(p.items, key)
	return key, true
}

// Keys returns keys from newest to oldest
func (p *FIFO[K]) Keys() []K {
	keys := make([]K, 0, p.list.Len())
	for e := p.list.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(K))
	}
	return keys
}

func (p *FIFO[K]) Size() int {
	return p.list.Len()
}
