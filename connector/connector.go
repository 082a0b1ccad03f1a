//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package connector defines the capability interfaces adapters may
// implement. A connector implements any subset of Provider, Consumer,
// Receiver, Publisher and Subscriber; Lifecycle brackets its resource
// lifetime.
package connector

import (
	"context"
	"errors"
)

// ErrConnection reports a read or write failure at the underlying adapter.
var ErrConnection = errors.New("connection error")

// Provider reads one value from the connected endpoint. It may block until
// the context is done.
type Provider interface {
	Provide(ctx context.Context) (any, error)
}

// Consumer writes one value to the connected endpoint. A nil value is
// interpreted as a delete by connectors that support it.
type Consumer interface {
	Consume(ctx context.Context, value any) error
}

// Receiver streams values from the connected endpoint until the context is
// cancelled. The returned channel is closed when the stream ends.
type Receiver interface {
	Receive(ctx context.Context) (<-chan any, error)
}

// Publisher is the topic-addressed variant of Consumer.
type Publisher interface {
	Publish(ctx context.Context, topic string, value any) error
}

// Subscriber is the topic-addressed variant of Receiver.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan any, error)
}

// Lifecycle brackets connector resource lifetime. Both calls are
// idempotent.
type Lifecycle interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// TypeName names the connector capabilities a value implements, for
// descriptions and endpoint generation.
func TypeName(c any) string {
	name := ""
	if _, ok := c.(Provider); ok {
		name += "Provider"
	}
	if _, ok := c.(Consumer); ok {
		name += "Consumer"
	}
	if _, ok := c.(Receiver); ok {
		name += "Receiver"
	}
	if _, ok := c.(Publisher); ok {
		name += "Publisher"
	}
	if _, ok := c.(Subscriber); ok {
		name += "Subscriber"
	}
	if name == "" {
		return "Connector"
	}
	return name
}
