package events

import (
	"encoding/json"
	"sync"
)

type queued struct {
	eventType string
	data      json.RawMessage
}

// Queue hands raw events to a Router on its own goroutine so the producer
// never waits on listeners. It is unbounded and preserves push order.
type Queue struct {
	router *Router

	mu     sync.Mutex
	cond   *sync.Cond
	items  []queued
	closed bool
	done   chan struct{}
}

// NewQueue starts a delivery goroutine for router
func NewQueue(router *Router) *Queue {
	q := &Queue{
		router: router,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Push enqueues an event. It returns false once the queue is closed.
func (q *Queue) Push(eventType string, data json.RawMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, queued{eventType: eventType, data: data})
	q.cond.Signal()
	return true
}

// Close stops accepting events, delivers what is already queued, and waits
// for the delivery goroutine to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, item := range batch {
			q.router.Dispatch(item.eventType, item.data)
		}
	}
}
