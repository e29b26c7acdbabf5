// Package events fans preview lifecycle notifications out to connected
// clients.
package events

import (
	"sync"

	"github.com/samiralibabic/previewd/internal/protocol"
)

// All subscribes to every project.
const All = ""

const (
	PreviewStarted = "preview.started"
	PreviewStopped = "preview.stopped"
	PreviewEvicted = "preview.evicted"
)

type Bus struct {
	mu          sync.RWMutex
	nextSubID   int
	subscribers map[string]map[int]chan protocol.Notification
}

func NewBus() *Bus {
	return &Bus{
		subscribers: map[string]map[int]chan protocol.Notification{},
	}
}

// Subscribe registers interest in project (or All). The returned func
// unsubscribes and closes the channel.
func (b *Bus) Subscribe(project string) (chan protocol.Notification, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	ch := make(chan protocol.Notification, 128)
	if _, ok := b.subscribers[project]; !ok {
		b.subscribers[project] = map[int]chan protocol.Notification{}
	}
	b.subscribers[project][id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[project]; ok {
			if c, ok := subs[id]; ok {
				close(c)
				delete(subs, id)
			}
			if len(subs) == 0 {
				delete(b.subscribers, project)
			}
		}
	}
}

// Publish never blocks; slow subscribers lose events.
func (b *Bus) Publish(project, method string, params any) {
	evt := protocol.Notification{
		JSONRPC: protocol.Version,
		Method:  method,
		Params:  params,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[project] {
		select {
		case ch <- evt:
		default:
		}
	}
	if project == All {
		return
	}
	for _, ch := range b.subscribers[All] {
		select {
		case ch <- evt:
		default:
		}
	}
}
