package scheduler

import (
	"container/heap"
	"time"

	"github.com/NordCoder/pingerus-agent/internal/domain/monitor"
)

type item struct {
	next  time.Time
	def   *monitor.Definition
	index int
}

// fireQueue orders monitors by next fire time, ties by ascending id.
type fireQueue struct {
	items []*item
	byID  map[string]*item
}

func newFireQueue() *fireQueue {
	return &fireQueue{byID: make(map[string]*item)}
}

func (q *fireQueue) Len() int { return len(q.items) }

func (q *fireQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.next.Equal(b.next) {
		return a.next.Before(b.next)
	}
	return a.def.ID < b.def.ID
}

func (q *fireQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *fireQueue) Push(x any) {
	it := x.(*item)
	it.index = len(q.items)
	q.items = append(q.items, it)
	q.byID[it.def.ID] = it
}

func (q *fireQueue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	delete(q.byID, it.def.ID)
	it.index = -1
	return it
}

func (q *fireQueue) schedule(def *monitor.Definition, next time.Time) {
	heap.Push(q, &item{next: next, def: def})
}

func (q *fireQueue) peek() *item {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// popDue removes and returns the earliest item if it is due at now.
func (q *fireQueue) popDue(now time.Time) *item {
	if it := q.peek(); it != nil && !it.next.After(now) {
		return heap.Pop(q).(*item)
	}
	return nil
}
