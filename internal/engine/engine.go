// Package engine is the operational core of the versioning system. It
// composes the branch registry, the version store, the snapshot codec, and
// the diff machinery into the operations external services call: append,
// resolve, fork, merge, and cherry-pick.
package engine

import (
	"fmt"
	"time"

	"github.com/louisbranch/timeloom/internal/branch"
	"github.com/louisbranch/timeloom/internal/event"
	"github.com/louisbranch/timeloom/internal/platform/id"
	"github.com/louisbranch/timeloom/internal/snapshot"
	"github.com/louisbranch/timeloom/internal/storage"
	"github.com/louisbranch/timeloom/internal/version"
)

// Engine exposes the versioning operations over one store.
type Engine struct {
	store    storage.Store
	codec    snapshot.Codec
	registry *branch.Registry
	events   *event.Bus
	now      func() time.Time
	newID    func() (string, error)
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithCodec replaces the default proto+zstd snapshot codec.
func WithCodec(codec snapshot.Codec) Option {
	return func(e *Engine) {
		e.codec = codec
	}
}

// WithEventBus sets the bus commit events are published on.
func WithEventBus(bus *event.Bus) Option {
	return func(e *Engine) {
		e.events = bus
	}
}

// New builds an engine over store.
func New(store storage.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	e := &Engine{
		store:    store,
		registry: branch.NewRegistry(store),
		events:   event.NewBus(),
		now:      time.Now,
		newID:    id.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.codec == nil {
		codec, err := snapshot.NewProtoCodec()
		if err != nil {
			return nil, fmt.Errorf("build snapshot codec: %w", err)
		}
		e.codec = codec
	}
	return e, nil
}

// Events returns the engine's commit event bus for subscriber registration.
func (e *Engine) Events() *event.Bus {
	return e.events
}

// publishCommits delivers one VersionCommitted per committed version. Called
// only after the surrounding transaction has committed.
func (e *Engine) publishCommits(versions []version.Version) {
	for _, v := range versions {
		e.events.Publish(event.VersionCommitted{
			EntityType: v.EntityType,
			EntityID:   v.EntityID,
			BranchID:   v.BranchID,
			WorldTime:  v.ValidFrom,
		})
	}
}
