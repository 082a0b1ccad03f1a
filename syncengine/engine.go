//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package syncengine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
)

var (
	// ErrNotConsumer reports a write attempt on a connector without the
	// Consumer capability.
	ErrNotConsumer = errors.New("connector is not a consumer")
	// ErrNotProvider reports a read attempt on a connector without the
	// Provider capability.
	ErrNotProvider = errors.New("connector is not a provider")
	// ErrPeerCapExceeded reports that syncing one more connector onto a
	// persistence id would exceed the configured peer cap.
	ErrPeerCapExceeded = errors.New("peer cap exceeded for persistence id")
)

// Engine tracks the synced connectors bound to each persistence id and
// coordinates reverse fan-out between them.
type Engine struct {
	mu      sync.RWMutex
	peers   map[connection.Key][]*SyncedConnector
	peerCap int
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithPeerCap bounds the number of synced connectors per persistence id.
// Zero means unbounded.
func WithPeerCap(cap int) Option {
	return func(e *Engine) { e.peerCap = cap }
}

// New creates a synchronization engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		peers:  make(map[connection.Key][]*SyncedConnector),
		tracer: otel.Tracer("trpc.group/trpc-go/trpc-datamesh-go/syncengine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// persistenceKey reduces a connection info to the persistence id its
// peers share: the data model and top-level model segments.
func persistenceKey(info connection.Info) connection.Key {
	return connection.Key{DataModel: info.DataModel, ModelID: info.ModelID}
}

// Sync wraps an external connector so that role and direction are enforced
// between it and the given persisted connector. The connector joins the
// peer set of its persistence id.
func (e *Engine) Sync(id string, conn any, info connection.Info, persisted *PersistedConnector, opts ...SyncOption) (*SyncedConnector, error) {
	s := &SyncedConnector{
		engine:    e,
		id:        id,
		conn:      conn,
		info:      info,
		persisted: persisted,
		role:      RoleReadWrite,
		direction: DirectionBidirectional,
	}
	for _, opt := range opts {
		opt(s)
	}
	key := persistenceKey(info)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peerCap > 0 && len(e.peers[key]) >= e.peerCap {
		return nil, fmt.Errorf("%s: %w", info, ErrPeerCapExceeded)
	}
	e.peers[key] = append(e.peers[key], s)
	return s, nil
}

// Unsync removes a synced connector from its peer set.
func (e *Engine) Unsync(s *SyncedConnector) {
	key := persistenceKey(s.info)
	e.mu.Lock()
	defer e.mu.Unlock()
	peers := e.peers[key]
	for i, peer := range peers {
		if peer == s {
			e.peers[key] = append(peers[:i], peers[i+1:]...)
			break
		}
	}
	if len(e.peers[key]) == 0 {
		delete(e.peers, key)
	}
}

// DropConnection removes every synced connector bound to the persistence id
// of info. The persistence registry calls this when a connection is
// removed.
func (e *Engine) DropConnection(info connection.Info) {
	key := persistenceKey(info)
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.peers, key)
}

// peersOf returns a snapshot of the peer set for a persistence id, sorted
// by ascending priority so that higher-priority writes land last.
func (e *Engine) peersOf(info connection.Info) []*SyncedConnector {
	key := persistenceKey(info)
	e.mu.RLock()
	defer e.mu.RUnlock()
	peers := make([]*SyncedConnector, len(e.peers[key]))
	copy(peers, e.peers[key])
	sort.SliceStable(peers, func(i, j int) bool { return peers[i].priority < peers[j].priority })
	return peers
}

// SyncedOf returns the synced connector registered under id, if any.
func (e *Engine) SyncedOf(id string) (*SyncedConnector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, peers := range e.peers {
		for _, peer := range peers {
			if peer.id == id {
				return peer, true
			}
		}
	}
	return nil, false
}
