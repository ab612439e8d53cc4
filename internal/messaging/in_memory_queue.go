package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type inMemoryTask struct {
	queue   string
	id      string
	payload []byte
	result  chan<- string
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Id() string {
	return t.id
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) report(outcome string) error {
	if t.result != nil {
		t.result <- outcome
	}
	return nil
}

func (t *inMemoryTask) Ack() error {
	return t.report("ack")
}

func (t *inMemoryTask) Nack() error {
	return t.report("nack")
}

func (t *inMemoryTask) Reject() error {
	return t.report("reject")
}

// InMemoryQueue is both a Publisher and a Receiver for a single process.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    chan Task
	closed   bool
	done     chan struct{}
	inflight sync.WaitGroup
	next     int
	results  chan string
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
		done:  make(chan struct{}),
	}
}

// Outcomes reports "ack", "nack" or "reject" for every task published after
// the call. Used by tests and local runs to observe the worker.
func (q *InMemoryQueue) Outcomes() <-chan string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.results == nil {
		q.results = make(chan string, 100)
	}
	return q.results
}

func (q *InMemoryQueue) publishTaskInternal(queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.PublishRaw(queue, data)
}

// PublishRaw enqueues an already encoded body. It blocks while the buffer is
// full and fails once the queue is closed.
func (q *InMemoryQueue) PublishRaw(queue string, data []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.next++
	task := &inMemoryTask{queue: queue, id: fmt.Sprintf("mem-%d", q.next), payload: data, result: q.results}
	q.inflight.Add(1)
	q.mu.Unlock()

	defer q.inflight.Done()
	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return fmt.Errorf("queue is closed")
	}
}

func (q *InMemoryQueue) PublishRetrainTask(ctx context.Context, payload RetrainTaskPayload) error {
	return q.publishTaskInternal(RetrainQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

// Close fails blocked publishers, then closes the task channel so receivers
// drain what is buffered and stop.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.inflight.Wait()
	close(q.tasks)
}
