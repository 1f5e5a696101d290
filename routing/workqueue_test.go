package routing

import (
	"sync"
	"testing"
	"time"
)

// TestWorkQueuePriorityOrder checks that dequeues occur in
// non-increasing priority order; within equal priority, FIFO.
func TestWorkQueuePriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	done := make(chan struct{})
	count := 0
	q := NewWorkQueue(0, 1, func(req *RouteRequest) *RouteResponse {
		mu.Lock()
		order = append(order, req.MessageID)
		mu.Unlock()
		return &RouteResponse{MessageID: req.MessageID, Accepted: true}
	})
	defer q.Shutdown()

	items := []struct {
		id       string
		priority int
	}{
		{"low-1", 1},
		{"high-1", 5},
		{"low-2", 1},
		{"high-2", 5},
	}
	// Enqueue everything before starting the worker pool so the whole
	// batch is sitting in the heap when draining begins - otherwise a
	// worker could race ahead and dequeue an early low-priority item
	// before a later high-priority one is even enqueued.
	for _, it := range items {
		err := q.Enqueue(&QueueItem{
			Request:  &RouteRequest{MessageID: it.id},
			Priority: it.priority,
			Respond: func(*RouteResponse) {
				mu.Lock()
				count++
				if count == len(items) {
					close(done)
				}
				mu.Unlock()
			},
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	q.Start()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high-1", "high-2", "low-1", "low-2"}
	if len(order) != len(want) {
		t.Fatalf("expected %d processed items, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestWorkQueueEnqueueFailsAtCapacity(t *testing.T) {
	block := make(chan struct{})
	q := NewWorkQueue(1, 1, func(req *RouteRequest) *RouteResponse {
		<-block
		return &RouteResponse{MessageID: req.MessageID, Accepted: true}
	})
	q.Start()
	defer func() {
		close(block)
		q.Shutdown()
	}()

	// First item occupies the sole worker; second fills capacity.
	if err := q.Enqueue(&QueueItem{Request: &RouteRequest{MessageID: "1"}, Respond: func(*RouteResponse) {}}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	// give the worker a chance to pop item 1 off the queue
	for q.Len() != 0 {
		time.Sleep(time.Millisecond)
	}
	if err := q.Enqueue(&QueueItem{Request: &RouteRequest{MessageID: "2"}, Respond: func(*RouteResponse) {}}); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if err := q.Enqueue(&QueueItem{Request: &RouteRequest{MessageID: "3"}, Respond: func(*RouteResponse) {}}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestWorkQueueShutdownAbandonsPending(t *testing.T) {
	block := make(chan struct{})
	q := NewWorkQueue(0, 1, func(req *RouteRequest) *RouteResponse {
		<-block
		return &RouteResponse{MessageID: req.MessageID, Accepted: true}
	})
	q.Start()

	results := make(chan *RouteResponse, 2)
	// occupies the worker
	if err := q.Enqueue(&QueueItem{Request: &RouteRequest{MessageID: "busy"}, Respond: func(r *RouteResponse) { results <- r }}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	// wait until the worker has popped "busy" and is blocked on it
	for q.Len() != 0 {
		time.Sleep(time.Millisecond)
	}
	// stays pending in the heap; Shutdown answers it while the worker is
	// still blocked, and that answer releases the worker
	if err := q.Enqueue(&QueueItem{Request: &RouteRequest{MessageID: "pending"}, Respond: func(r *RouteResponse) { results <- r; close(block) }}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	q.Shutdown()

	byID := map[string]*RouteResponse{}
	for i := 0; i < 2; i++ {
		r := <-results
		byID[r.MessageID] = r
	}

	busy := byID["busy"]
	if busy == nil || !busy.Accepted {
		t.Fatalf("expected the in-flight item to complete normally, got %+v", busy)
	}
	pending := byID["pending"]
	if pending == nil || pending.Accepted || pending.ErrorCode != ErrorCodeInternal {
		t.Fatalf("expected the pending item abandoned with a shutdown error, got %+v", pending)
	}
}
