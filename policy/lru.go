package policy

import (
	"container/list"
)

// LRU implements the Policy interface using Least Recently Used strategy.
// Both reads and writes count as use.
type LRU[K comparable] struct {
	items map[K]*list.Element
	list  *list.List
}

// NewLRU creates a new LRU policy
func NewLRU[K comparable]() *LRU[K] {
	return &LRU[K]{
		items: make(map[K]*list.Element),
		list:  list.New(),
	}
}

// OnGet moves key to the most recently used end
func (p *LRU[K]) OnGet(key K) {
	if element, exists := p.items[key]; exists {
		p.list.MoveToFront(element)
	}
}

// OnSet inserts key or moves it to the most recently used end
func (p *LRU[K]) OnSet(key K) {
	if element, exists := p.items[key]; exists {
		p.list.MoveToFront(element)
		return
	}
	p.items[key] = p.list.PushFront(key)
}

// OnDelete stops tracking key
func (p *LRU[K]) OnDelete(key K) {
	if element, exists := p.items[key]; exists {
		p.list.Remove(element)
		delete(p.items, key)
	}
}

// OnClear drops every tracked key
func (p *LRU[K]) OnClear() {
	p.list.Init()
	p.items = make(map[K]*list.Element)
}

// Evict removes and returns the least recently used key
func (p *LRU[K]) Evict() (K, bool) {
	element := p.list.Back()
	if element == nil {
		var zero K
		return zero, false
	}
	key := p.list.Remove(element).(K)
	delete(p.items, key)
	return key, true
}

// Keys returns keys from most to least recently used
func (p *LRU[K]) Keys() []K {
	keys := make([]K, 0, p.list.Len())
	for e := p.list.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(K))
	}
	return keys
}

// Size returns the number of tracked keys
func (p *LRU[K]) Size() int {
	return p.list.Len()
}
