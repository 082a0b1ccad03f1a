//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the reference in-memory persistence connector.
// Each registered connection holds one persisted value.
package inmemory

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
)

// ErrEmpty reports a read on a connection that holds no value.
var ErrEmpty = persistence.ErrNothingPersisted

// Connector persists one value in memory.
type Connector struct {
	mu     sync.RWMutex
	value  any
	exists bool
}

// New creates an empty in-memory persistence connector.
func New() *Connector {
	return &Connector{}
}

// Factory returns a persistence factory creating one in-memory connector
// per connection.
func Factory() persistence.Factory {
	return func(_ connection.Info) (any, error) {
		return New(), nil
	}
}

// Connect is a no-op. Idempotent.
func (c *Connector) Connect(_ context.Context) error { return nil }

// Disconnect is a no-op. Idempotent.
func (c *Connector) Disconnect(_ context.Context) error { return nil }

// Provide returns the persisted value.
func (c *Connector) Provide(_ context.Context) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.exists {
		return nil, ErrEmpty
	}
	return c.value, nil
}

// Consume stores the value. A nil value deletes the persisted state.
func (c *Connector) Consume(_ context.Context, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		c.value = nil
		c.exists = false
		return nil
	}
	c.value = value
	c.exists = true
	return nil
}
