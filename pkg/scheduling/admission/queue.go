// Package admission orders queued work for slot admission.
//
// Entries leave the queue in non-decreasing priority order (lower number
// first); entries with equal priority leave in the order they were pushed.
// A Queue is not safe for concurrent use; owners guard it with their own lock.
package admission

import (
	"github.com/emirpasic/gods/trees/redblacktree"
)

// Entry is one queued unit of work.
type Entry struct {
	// Seq is the submission sequence number assigned by Push. It breaks
	// priority ties and identifies the entry for Remove.
	Seq      uint64
	Priority int
	Value    any
}

// Queue is a stable priority queue backed by a red-black tree.
type Queue struct {
	tree       *redblacktree.Tree
	priorities map[uint64]int
	next       uint64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		tree:       redblacktree.NewWith(compareKeys),
		priorities: make(map[uint64]int),
	}
}

// Push enqueues value and returns its sequence number.
func (q *Queue) Push(priority int, value any) uint64 {
	seq := q.next
	q.next++
	q.tree.Put(key{priority: priority, seq: seq}, value)
	q.priorities[seq] = priority
	return seq
}

// Peek returns the next entry to be admitted without removing it.
func (q *Queue) Peek() (Entry, bool) {
	node := q.tree.Left()
	if node == nil {
		return Entry{}, false
	}
	return entryOf(node), true
}

// Pop removes and returns the next entry to be admitted.
func (q *Queue) Pop() (Entry, bool) {
	node := q.tree.Left()
	if node == nil {
		return Entry{}, false
	}
	e := entryOf(node)
	q.tree.Remove(node.Key)
	delete(q.priorities, e.Seq)
	return e, true
}

// Remove drops the entry with the given sequence number if it is still queued.
func (q *Queue) Remove(seq uint64) (Entry, bool) {
	priority, ok := q.priorities[seq]
	if !ok {
		return Entry{}, false
	}
	k := key{priority: priority, seq: seq}
	value, _ := q.tree.Get(k)
	q.tree.Remove(k)
	delete(q.priorities, seq)
	return Entry{Seq: seq, Priority: priority, Value: value}, true
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return q.tree.Size()
}

// Entries returns the queued entries in admission order.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, q.tree.Size())
	it := q.tree.Iterator()
	for it.Next() {
		k := it.Key().(key)
		out = append(out, Entry{Seq: k.seq, Priority: k.priority, Value: it.Value()})
	}
	return out
}

// key orders the tree by priority, then submission sequence.
type key struct {
	priority int
	seq      uint64
}

func compareKeys(a, b any) int {
	ka, kb := a.(key), b.(key)
	switch {
	case ka.priority < kb.priority:
		return -1
	case ka.priority > kb.priority:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

func entryOf(node *redblacktree.Node) Entry {
	k := node.Key.(key)
	return Entry{Seq: k.seq, Priority: k.priority, Value: node.Value}
}
