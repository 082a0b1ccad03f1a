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
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
)

// PersistedConnector wraps a raw persistence connector so that every write
// notifies the synced peers bound to the same persistence id, and every
// read observes the latest ground truth first.
type PersistedConnector struct {
	engine *Engine
	info   connection.Info
	raw    any
}

// NewPersisted wraps a raw persistence connector registered at info.
func NewPersisted(engine *Engine, info connection.Info, raw any) *PersistedConnector {
	return &PersistedConnector{engine: engine, info: info, raw: raw}
}

// Info returns the connection info the connector was registered at.
func (p *PersistedConnector) Info() connection.Info { return p.info }

// Raw returns the wrapped persistence connector.
func (p *PersistedConnector) Raw() any { return p.raw }

// Connect forwards to the raw connector when it manages a lifecycle.
func (p *PersistedConnector) Connect(ctx context.Context) error {
	if lc, ok := p.raw.(connector.Lifecycle); ok {
		return lc.Connect(ctx)
	}
	return nil
}

// Disconnect forwards to the raw connector when it manages a lifecycle.
func (p *PersistedConnector) Disconnect(ctx context.Context) error {
	if lc, ok := p.raw.(connector.Lifecycle); ok {
		return lc.Disconnect(ctx)
	}
	return nil
}

// Provide pulls fresh values from every ground-truth peer into persistence
// first, then reads from the raw connector, so that persistence observes
// the latest truth before it is served.
func (p *PersistedConnector) Provide(ctx context.Context) (any, error) {
	provider, ok := p.raw.(connector.Provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.info, ErrNotProvider)
	}
	ctx, span := p.engine.tracer.Start(ctx, "persisted.provide")
	defer span.End()

	for _, peer := range p.engine.peersOf(p.info) {
		if peer.role != RoleGroundTruth || !peer.direction.AllowsWrite() {
			continue
		}
		if err := peer.pullIntoPersistence(ctx); err != nil {
			log.Warnf("sync: ground truth pull from %q failed: %v", peer.id, err)
		}
	}
	return provider.Provide(ctx)
}

// Consume writes the value through the raw connector, then fans it out to
// the synced peers.
func (p *PersistedConnector) Consume(ctx context.Context, value any) error {
	return p.consumeFrom(ctx, value, "")
}

// consumeFrom writes and fans out, skipping the originating peer. Fan-out
// failures are logged per peer and never abort the initiating call.
func (p *PersistedConnector) consumeFrom(ctx context.Context, value any, originID string) error {
	consumer, ok := p.raw.(connector.Consumer)
	if !ok {
		return fmt.Errorf("%s: %w", p.info, ErrNotConsumer)
	}
	ctx, span := p.engine.tracer.Start(ctx, "persisted.consume")
	defer span.End()

	if err := consumer.Consume(ctx, value); err != nil {
		return err
	}
	p.fanOut(ctx, p.info, value, originID)
	return nil
}

// writeGranular performs a granular write at the given info through the raw
// connector and fans the resulting value out to peers.
func (p *PersistedConnector) writeGranular(ctx context.Context, info connection.Info, value any, originID string) error {
	if err := writeThrough(ctx, p.raw, info, value); err != nil {
		return err
	}
	p.fanOut(ctx, info, value, originID)
	return nil
}

// fanOut notifies all eligible peers of a persisted write. Each peer
// receives the part of the value addressed by its own connection info,
// transformed through its own mapper and formatter. writeInfo is the
// granularity the write happened at; peers addressed elsewhere read their
// part from the freshly persisted object.
func (p *PersistedConnector) fanOut(ctx context.Context, writeInfo connection.Info, value any, originID string) {
	var whole any
	wholeFetched := false
	for _, peer := range p.engine.peersOf(p.info) {
		if peer.id == originID {
			continue
		}
		if peer.role == RoleGroundTruth {
			continue
		}
		if !peer.direction.AllowsRead() {
			continue
		}
		peerConsumer, ok := peer.conn.(connector.Consumer)
		if !ok {
			continue
		}
		part := value
		if !peer.info.Equal(writeInfo) {
			if !wholeFetched {
				wholeFetched = true
				if provider, ok := p.raw.(connector.Provider); ok {
					obj, err := provider.Provide(ctx)
					if err != nil {
						log.Warnf("sync: fan-out read-back at %s failed: %v", p.info, err)
					} else {
						whole = obj
					}
				}
			}
			if whole == nil {
				continue
			}
			extracted, err := extract(whole, peer.info)
			if err != nil {
				log.Warnf("sync: fan-out extract for %q failed: %v", peer.id, err)
				continue
			}
			part = extracted
		}
		transformed, err := transform.FromPersistence(part, peer.persistenceMapper, peer.formatter)
		if err != nil {
			log.Warnf("sync: fan-out transform for %q failed: %v", peer.id, err)
			continue
		}
		if err := peerConsumer.Consume(ctx, transformed); err != nil {
			log.Warnf("sync: fan-out to %q failed: %v", peer.id, err)
		}
	}
}
