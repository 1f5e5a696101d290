/*
Priority work queue. Ordered by (priority descending, timestamp
ascending) - two items at the same priority drain FIFO.
*/
package routing

import (
	"container/heap"
	"errors"
	"sync"
)

// ErrQueueFull is returned by Enqueue when the queue is at its
// configured capacity.
var ErrQueueFull = errors.New("routing: work queue at capacity")

// ErrQueueShutdown is delivered to every pending item's callback when
// the queue is shut down with work still pending. Shutdown drains
// nothing: pending items are abandoned.
var ErrQueueShutdown = errors.New("routing: work queue shut down")

// Processor handles one dequeued RouteRequest and returns the response
// to deliver to its callback.
type Processor func(req *RouteRequest) *RouteResponse

// QueueItem is one unit of routing work.
type QueueItem struct {
	Request    *RouteRequest
	Respond    func(*RouteResponse)
	Priority   int
	enqueueSeq uint64 // monotonic tie-break standing in for a wall-clock timestamp
	index      int    // heap bookkeeping
}

type priorityHeap []*QueueItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // descending priority
	}
	return h[i].enqueueSeq < h[j].enqueueSeq // ascending timestamp / FIFO
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x interface{}) {
	item := x.(*QueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// WorkQueue is a priority queue drained by a configurable pool of
// worker goroutines.
type WorkQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     priorityHeap
	capacity int
	nextSeq  uint64
	closed   bool

	processor Processor
	workers   int
	wg        sync.WaitGroup
}

// NewWorkQueue constructs a WorkQueue with the given capacity (0 means
// unbounded) and worker count (defaults to 4).
func NewWorkQueue(capacity, workers int, processor Processor) *WorkQueue {
	if workers <= 0 {
		workers = 4
	}
	q := &WorkQueue{
		capacity:  capacity,
		processor: processor,
		workers:   workers,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *WorkQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.workerLoop()
	}
}

// Enqueue adds item to the queue. Returns ErrQueueFull if the queue is
// at capacity, ErrQueueShutdown if the queue has already been shut
// down.
func (q *WorkQueue) Enqueue(item *QueueItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	if q.capacity > 0 && len(q.heap) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	item.enqueueSeq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, item)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// workerLoop dequeues items in (priority, timestamp) order and hands
// each to the processor, invoking its response callback with the
// result.
func (q *WorkQueue) workerLoop() {
	defer q.wg.Done()
	for {
		item, ok := q.dequeue()
		if !ok {
			return
		}
		resp := q.processor(item.Request)
		item.Respond(resp)
	}
}

func (q *WorkQueue) dequeue() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed && len(q.heap) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.heap).(*QueueItem)
	return item, true
}

// Shutdown stops the queue: every pending item's callback is invoked
// synchronously with a shutdown error, and every worker goroutine
// exits once its current item (if any) completes.
func (q *WorkQueue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	pending := q.heap
	q.heap = nil
	q.mu.Unlock()
	q.cond.Broadcast()

	for _, item := range pending {
		item.Respond(&RouteResponse{
			MessageID:    item.Request.MessageID,
			ErrorCode:    ErrorCodeInternal,
			ErrorMessage: ErrQueueShutdown.Error(),
			Accepted:     false,
		})
	}
	q.wg.Wait()
}

// Len reports the current queue depth, used by CheckStatus.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
