// Package events provides the non-blocking pub/sub bus carrying per-task and
// session lifecycle events to observability layers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventTaskDispatched is published when a task is handed to a worker.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted is published when a task finishes successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed is published when a task attempt fails terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetried is published when a failed task returns to ready.
	EventTaskRetried EventType = "task_retried"
	// EventSessionCheckpoint is published after a checkpoint is recorded.
	EventSessionCheckpoint EventType = "session_checkpoint"
	// EventSessionFinished is published when the session reaches a terminal
	// status.
	EventSessionFinished EventType = "session_finished"
)

// Event represents a system event.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus. Events are delivered asynchronously via
// buffered channels; if a subscriber's channel is full, the event is dropped
// silently for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a new event bus with the specified buffer size per
// subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for a specific event type. The subscriber
// function is called asynchronously in a goroutine. Returns an unsubscribe
// function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						// A panicking subscriber must not take down the bus.
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of the given type. Uses select
// with default so a slow subscriber never blocks the control loop.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Channel full, drop for this subscriber.
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
