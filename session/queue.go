package session

import (
	"container/heap"
	"sync"
	"time"
)

// Priority orders outbound requests; lower values drain first.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

// OutboundRequest waits in the queue until the channel can deliver it.
type OutboundRequest struct {
	ID         string
	Event      string
	Payload    any
	Priority   Priority
	EnqueuedAt time.Time
	seq        uint64
}

// requestQueue orders requests by priority, FIFO within a priority tier.
type requestQueue struct {
	mu      sync.Mutex
	items   requestHeap
	nextSeq uint64
}

func newRequestQueue() *requestQueue {
	return &requestQueue{}
}

func (q *requestQueue) push(r OutboundRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextSeq++
	r.seq = q.nextSeq
	heap.Push(&q.items, r)
}

// requeue reinserts a popped request with its original seq so a failed
// send keeps its FIFO position within its priority tier.
func (q *requestQueue) requeue(r OutboundRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.items, r)
}

func (q *requestQueue) pop() (OutboundRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return OutboundRequest{}, false
	}
	return heap.Pop(&q.items).(OutboundRequest), true
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type requestHeap []OutboundRequest

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(OutboundRequest)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}
