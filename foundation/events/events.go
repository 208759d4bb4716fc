// Package events allows for the registering and receiving of events from the
// node, streamed out to websocket clients.
package events

import (
	"sync"
)

// Events maintains a mapping of unique ids and channels so goroutines can
// register and receive events.
type Events struct {
	mu  sync.RWMutex
	m   map[string]chan string
	off bool
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Acquire takes ownership of the specified unique id and returns the channel
// events are delivered on.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// A message is dropped if the websocket receiver is not ready to
	// receive, so this buffer gives a slow receiver time to catch up.
	const messageBuffer = 100

	evt.m[id] = make(chan string, messageBuffer)

	return evt.m[id]
}

// Release releases the unique id and closes its channel.
func (evt *Events) Release(id string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return
	}

	delete(evt.m, id)
	close(ch)
}

// Send signals a message to every registered channel. Send will not block
// on a channel that is already at capacity.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	if evt.off {
		return
	}

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}

// Shutdown releases every registered channel and stops accepting sends.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	evt.off = true

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}
