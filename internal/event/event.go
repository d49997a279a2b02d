// Package event carries commit notifications from the engine to external
// collaborators such as caches and rule evaluators. Delivery is
// fire-and-forget: subscribers run on their own goroutines and their
// failures never reach the committing caller.
package event

import (
	"log"
	"sync"

	"github.com/louisbranch/timeloom/internal/timeline"
)

// VersionCommitted announces one committed version: an ordinary write, a
// fork materialization, a merge commit, or a cherry-pick.
type VersionCommitted struct {
	EntityType string
	EntityID   string
	BranchID   string
	WorldTime  timeline.Time
}

// Bus fans committed-version events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []func(VersionCommitted)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every future publish. Subscribers must be
// registered before the engine starts committing; there is no unsubscribe.
func (b *Bus) Subscribe(fn func(VersionCommitted)) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers evt to every subscriber, each on its own goroutine. A
// panicking subscriber is logged and dropped for that event only.
func (b *Bus) Publish(evt VersionCommitted) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subscribers := b.subscribers
	b.mu.RUnlock()

	for _, fn := range subscribers {
		go func(fn func(VersionCommitted)) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("version committed subscriber panic: %v", r)
				}
			}()
			fn(evt)
		}(fn)
	}
}
