// Package timer implements the relative-delta callout queue that ages
// every other subsystem in this repository. There is no wall-clock time
// here: the event loop measures elapsed seconds around each I/O wait and
// feeds the delta to Age.
package timer

import "container/list"

// A Func is invoked when a timer fires. arg is the opaque value passed
// to Set.
type Func func(arg interface{})

// entry is one active callout. time is a delta from the *previous*
// entry's expiry (or from "now" for the first entry), so that
// expiry(i) = sum(time(0..i)) — the invariant described in spec.md §4.1.
type entry struct {
	id   int
	fn   Func
	arg  interface{}
	time int
}

// A Queue is a callout queue. The zero value is not usable; use New.
type Queue struct {
	active *list.List
	byID   map[int]*list.Element
	nextID int
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		active: list.New(),
		byID:   make(map[int]*list.Element),
	}
}

// Set arms a new timer to fire in delaySec seconds and returns its id.
// Ids are never zero and are not reused while still referenced by a
// caller; clearing an id that has already fired, or that was never
// valid, is a no-op (Clear documents this).
func (q *Queue) Set(delaySec int, fn Func, arg interface{}) int {
	id := q.allocID()
	node := &entry{id: id, fn: fn, arg: arg, time: delaySec}

	if q.active.Len() == 0 {
		el := q.active.PushBack(node)
		q.byID[id] = el
		return id
	}

	remaining := delaySec
	for el := q.active.Front(); el != nil; el = el.Next() {
		cur := el.Value.(*entry)
		if remaining < cur.time {
			node.time = remaining
			cur.time -= remaining
			newEl := q.active.InsertBefore(node, el)
			q.byID[id] = newEl
			return id
		}
		remaining -= cur.time
	}

	node.time = remaining
	el := q.active.PushBack(node)
	q.byID[id] = el
	return id
}

// Clear cancels the timer with the given id. Clearing an id that has
// already fired (and so is no longer tracked) is a no-op, matching
// spec.md §4.1 and §5's cancellation semantics.
func (q *Queue) Clear(id int) {
	if id == 0 {
		return
	}
	el, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)

	cur := el.Value.(*entry)
	if next := el.Next(); next != nil {
		next.Value.(*entry).time += cur.time
	}
	q.active.Remove(el)
}

// Left returns the number of seconds remaining before the timer with
// the given id fires, or -1 if the id is not active.
func (q *Queue) Left(id int) int {
	if id == 0 {
		return -1
	}
	el, ok := q.byID[id]
	if !ok {
		return -1
	}

	left := 0
	for e := q.active.Front(); e != nil; e = e.Next() {
		left += e.Value.(*entry).time
		if e == el {
			return left
		}
	}
	return -1
}

// NextDelay returns how many seconds until Age should next be called,
// or -1 if the queue is empty.
func (q *Queue) NextDelay() int {
	el := q.active.Front()
	if el == nil {
		return -1
	}
	t := el.Value.(*entry).time
	if t < 0 {
		return 0
	}
	return t
}

// Age advances the queue by elapsed seconds, running and removing every
// callback whose cumulative delta has now expired. Callbacks run to
// completion in order and may themselves call Set or Clear (including
// clearing their own, already-fired, id — a no-op per Clear's contract).
func (q *Queue) Age(elapsed int) {
	for {
		el := q.active.Front()
		if el == nil {
			return
		}
		cur := el.Value.(*entry)
		if cur.time > elapsed {
			cur.time -= elapsed
			return
		}
		elapsed -= cur.time

		delete(q.byID, cur.id)
		q.active.Remove(el)

		if cur.fn != nil {
			cur.fn(cur.arg)
		}
	}
}

// allocID returns the next nonzero id, wrapping past zero.
func (q *Queue) allocID() int {
	q.nextID++
	if q.nextID <= 0 {
		q.nextID = 1
	}
	return q.nextID
}
