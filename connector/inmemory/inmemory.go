//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a value connector holding its state in memory.
// It implements Provider, Consumer and Receiver and is the default
// connector used in tests and local setups.
package inmemory

import (
	"context"
	"sync"
)

// Connector is an in-memory value connector. The zero value is not usable;
// create instances with New.
type Connector struct {
	mu        sync.RWMutex
	value     any
	connected bool
	streams   []chan any
}

// Option configures a Connector.
type Option func(*Connector)

// WithValue seeds the connector with an initial value.
func WithValue(value any) Option {
	return func(c *Connector) { c.value = value }
}

// New creates an in-memory connector.
func New(opts ...Option) *Connector {
	c := &Connector{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect marks the connector connected. Idempotent.
func (c *Connector) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

// Disconnect closes all open streams. Idempotent.
func (c *Connector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	for _, stream := range c.streams {
		close(stream)
	}
	c.streams = nil
	return nil
}

// Provide returns the currently held value.
func (c *Connector) Provide(_ context.Context) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, nil
}

// Consume replaces the held value and fans it out to open streams. A nil
// value clears the connector.
func (c *Connector) Consume(_ context.Context, value any) error {
	c.mu.Lock()
	streams := make([]chan any, len(c.streams))
	copy(streams, c.streams)
	c.value = value
	c.mu.Unlock()
	for _, stream := range streams {
		select {
		case stream <- value:
		default:
			// Slow receivers drop values instead of blocking writers.
		}
	}
	return nil
}

// Receive streams every subsequently consumed value until the context is
// cancelled or the connector disconnects.
func (c *Connector) Receive(ctx context.Context) (<-chan any, error) {
	stream := make(chan any, 16)
	c.mu.Lock()
	c.streams = append(c.streams, stream)
	c.mu.Unlock()

	out := make(chan any)
	go func() {
		defer close(out)
		defer c.dropStream(stream)
		for {
			select {
			case <-ctx.Done():
				return
			case value, ok := <-stream:
				if !ok {
					return
				}
				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Connector) dropStream(stream chan any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.streams {
		if s == stream {
			c.streams = append(c.streams[:i], c.streams[i+1:]...)
			return
		}
	}
}
