package recency

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Slot identifies a node in the arena. The zero Slot is never handed out.
type Slot uint32

// Nil is the invalid slot.
const Nil Slot = 0

type node[T any] struct {
	prev, next Slot
	inUse      bool
	value      T
}

// List is an arena-backed doubly linked list ordered by recency.
type List[T any] struct {
	nodes []node[T]
	free  *roaring.Bitmap
	head  Slot // least recent
	tail  Slot // most recent
	n     int
}

// New creates a list with room for sizeHint values before growing.
func New[T any](sizeHint int) *List[T] {
	// Slot 0 is reserved as the null link.
	nodes := make([]node[T], 1, max(sizeHint, 0)+1)
	return &List[T]{
		nodes: nodes,
		free:  roaring.New(),
	}
}

// Len returns the number of values in the list.
func (l *List[T]) Len() int { return l.n }

// PushBack inserts v as the most recent value and returns its slot.
func (l *List[T]) PushBack(v T) Slot {
	s := l.alloc()
	nd := &l.nodes[s]
	nd.value = v
	nd.inUse = true
	nd.prev = l.tail
	nd.next = Nil

	if l.tail != Nil {
		l.nodes[l.tail].next = s
	} else {
		l.head = s
	}
	l.tail = s
	l.n++
	return s
}

// MoveToBack marks s as the most recent value.
func (l *List[T]) MoveToBack(s Slot) {
	l.mustUse(s)
	if l.tail == s {
		return
	}
	l.unlink(s)

	nd := &l.nodes[s]
	nd.prev = l.tail
	nd.next = Nil
	if l.tail != Nil {
		l.nodes[l.tail].next = s
	} else {
		l.head = s
	}
	l.tail = s
}

// Remove unlinks s, frees its slot and returns the value it held.
func (l *List[T]) Remove(s Slot) T {
	l.mustUse(s)
	l.unlink(s)

	nd := &l.nodes[s]
	v := nd.value
	var zero T
	nd.value = zero
	nd.inUse = false
	nd.prev, nd.next = Nil, Nil

	l.free.Add(uint32(s))
	l.n--
	return v
}

// Front returns the least recent slot, or Nil when empty.
func (l *List[T]) Front() Slot { return l.head }

// Back returns the most recent slot, or Nil when empty.
func (l *List[T]) Back() Slot { return l.tail }

// Next returns the slot following s towards the most recent end.
func (l *List[T]) Next(s Slot) Slot {
	l.mustUse(s)
	return l.nodes[s].next
}

// Value returns the value stored at s.
func (l *List[T]) Value(s Slot) T {
	l.mustUse(s)
	return l.nodes[s].value
}

// Set replaces the value stored at s without changing its position.
func (l *List[T]) Set(s Slot, v T) {
	l.mustUse(s)
	l.nodes[s].value = v
}

// Ascend calls fn from least to most recent until fn returns false.
// fn must not modify the list.
func (l *List[T]) Ascend(fn func(s Slot, v T) bool) {
	for s := l.head; s != Nil; s = l.nodes[s].next {
		if !fn(s, l.nodes[s].value) {
			return
		}
	}
}

// Free returns the number of reusable slots in the arena.
func (l *List[T]) Free() int { return int(l.free.GetCardinality()) }

func (l *List[T]) alloc() Slot {
	if !l.free.IsEmpty() {
		s := l.free.Minimum()
		l.free.Remove(s)
		return Slot(s)
	}
	l.nodes = append(l.nodes, node[T]{})
	return Slot(len(l.nodes) - 1)
}

func (l *List[T]) unlink(s Slot) {
	nd := &l.nodes[s]
	if nd.prev != Nil {
		l.nodes[nd.prev].next = nd.next
	} else {
		l.head = nd.next
	}
	if nd.next != Nil {
		l.nodes[nd.next].prev = nd.prev
	} else {
		l.tail = nd.prev
	}
}

func (l *List[T]) mustUse(s Slot) {
	if s == Nil || int(s) >= len(l.nodes) || !l.nodes[s].inUse {
		panic("recency: stale or invalid slot")
	}
}
