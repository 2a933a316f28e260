package assignment

import (
	"bytes"
	"container/heap"
	"time"

	"github.com/google/uuid"
)

// Candidate is a driver holding availability on the target date.
type Candidate struct {
	StaffID         uuid.UUID  `json:"staff_id"`
	Name            string     `json:"name"`
	LastAvailableAt *time.Time `json:"last_available_at,omitempty"`
	Busy            bool       `json:"busy"`
}

// key orders a driver that has never been assigned ahead of everyone else.
func (c Candidate) key() time.Time {
	if c.LastAvailableAt == nil {
		return time.Time{}
	}
	return *c.LastAvailableAt
}

func less(a, b Candidate) bool {
	ak, bk := a.key(), b.key()
	if !ak.Equal(bk) {
		return ak.Before(bk)
	}
	return bytes.Compare(a.StaffID[:], b.StaffID[:]) < 0
}

type candidateHeap []Candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(Candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// Queue is a priority queue of drivers keyed by the moment they last became
// available. The earliest key is served first; equal keys fall back to the
// staff id so the order is deterministic.
type Queue struct {
	h candidateHeap
}

func NewQueue(candidates ...Candidate) *Queue {
	q := &Queue{h: make(candidateHeap, 0, len(candidates))}
	q.h = append(q.h, candidates...)
	heap.Init(&q.h)
	return q
}

func (q *Queue) Push(c Candidate) {
	heap.Push(&q.h, c)
}

func (q *Queue) Pop() (Candidate, bool) {
	if len(q.h) == 0 {
		return Candidate{}, false
	}
	return heap.Pop(&q.h).(Candidate), true
}

func (q *Queue) Peek() (Candidate, bool) {
	if len(q.h) == 0 {
		return Candidate{}, false
	}
	return q.h[0], true
}

func (q *Queue) Len() int {
	return len(q.h)
}

// Drain empties the queue and returns its contents in service order.
func (q *Queue) Drain() []Candidate {
	out := make([]Candidate, 0, len(q.h))
	for {
		c, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

// Ordered returns candidates in service order without touching the input.
func Ordered(candidates []Candidate) []Candidate {
	cp := make([]Candidate, len(candidates))
	copy(cp, candidates)
	return NewQueue(cp...).Drain()
}
