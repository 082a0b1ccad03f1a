//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package persistence keeps the directory of persistence connectors keyed
// by connection info, with factory-based lazy instantiation and
// hierarchical fallback lookup.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
)

var (
	// ErrKeyNotFound reports that no connection matches a connection info
	// after the hierarchical fallback is exhausted.
	ErrKeyNotFound = errors.New("no persistence connection for key")
	// ErrNothingPersisted reports a read on a connection that holds no
	// value yet.
	ErrNothingPersisted = errors.New("nothing persisted")
)

// Factory lazily constructs a raw persistence connector for a connection
// info.
type Factory func(info connection.Info) (any, error)

// typeKey scopes a factory to all models of one type inside a data model.
type typeKey struct {
	dataModel string
	typeName  string
}

// Registry is the key-to-connector directory for persistence. Registered
// connectors are transparently wrapped as persisted connectors so that
// writes fan out to synced peers.
type Registry struct {
	mu             sync.RWMutex
	engine         *syncengine.Engine
	connections    map[connection.Key]*syncengine.PersistedConnector
	factories      map[connection.Key]Factory
	typeFactories  map[typeKey]Factory
	defaultFactory Factory
	byTypeName     map[string][]connection.Key
	typeOfKey      map[connection.Key]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaultFactory sets the factory used when no scoped factory matches.
func WithDefaultFactory(factory Factory) Option {
	return func(r *Registry) { r.defaultFactory = factory }
}

// New creates a Registry bound to a synchronization engine.
func New(engine *syncengine.Engine, opts ...Option) *Registry {
	r := &Registry{
		engine:        engine,
		connections:   make(map[connection.Key]*syncengine.PersistedConnector),
		factories:     make(map[connection.Key]Factory),
		typeFactories: make(map[typeKey]Factory),
		byTypeName:    make(map[string][]connection.Key),
		typeOfKey:     make(map[connection.Key]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the synchronization engine the registry notifies.
func (r *Registry) Engine() *syncengine.Engine { return r.engine }

// AddFactory attaches a lazy constructor scoped at the level of info. When
// the info carries a model type hint and addresses a whole data model, the
// factory is scoped to that (data model, model type) pair instead.
func (r *Registry) AddFactory(info connection.Info, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := info.ModelType(); t != nil && info.Kind() == connection.KindDataModel {
		r.typeFactories[typeKey{dataModel: info.DataModel, typeName: simpleName(t)}] = factory
		return
	}
	r.factories[info.Key()] = factory
}

// Add instantiates a persistence connector for info and registers it. The
// most specific factory wins: explicit argument, exact key, (data model,
// model type), data model level, default. When entity is non-nil the new
// connection is populated with it.
func (r *Registry) Add(ctx context.Context, info connection.Info, entity any, factory Factory) error {
	if factory == nil {
		factory = r.lookupFactory(info, entity)
	}
	if factory == nil {
		return fmt.Errorf("%s: no factory: %w", info, ErrKeyNotFound)
	}
	raw, err := factory(info)
	if err != nil {
		return fmt.Errorf("%s: factory failed: %w", info, err)
	}
	persisted := syncengine.NewPersisted(r.engine, info, raw)
	if err := persisted.Connect(ctx); err != nil {
		return fmt.Errorf("%s: connect failed: %w", info, err)
	}

	typeName := typeNameOf(info, entity)
	key := info.Key()
	r.mu.Lock()
	r.connections[key] = persisted
	if typeName != "" {
		r.byTypeName[typeName] = appendUniqueKey(r.byTypeName[typeName], key)
		r.typeOfKey[key] = typeName
	}
	r.mu.Unlock()

	if entity != nil {
		if err := persisted.Consume(ctx, entity); err != nil {
			return fmt.Errorf("%s: initial persist failed: %w", info, err)
		}
	}
	log.Debugf("persistence: registered %s (%s)", info, typeName)
	return nil
}

// lookupFactory resolves the most specific factory for info.
func (r *Registry) lookupFactory(info connection.Info, entity any) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if factory, ok := r.factories[info.Key()]; ok {
		return factory
	}
	if typeName := typeNameOf(info, entity); typeName != "" {
		if factory, ok := r.typeFactories[typeKey{dataModel: info.DataModel, typeName: typeName}]; ok {
			return factory
		}
	}
	if factory, ok := r.factories[connection.ForDataModel(info.DataModel).Key()]; ok {
		return factory
	}
	return r.defaultFactory
}

// Connection resolves the persisted connector for info, walking from the
// most specific level to the least specific one.
func (r *Registry) Connection(info connection.Info) (*syncengine.PersistedConnector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conn, ok := r.connections[info.Key()]; ok {
		return conn, nil
	}
	for _, parent := range info.Parents() {
		if conn, ok := r.connections[parent.Key()]; ok {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", info, ErrKeyNotFound)
}

// Remove drops the connection registered exactly at info, removes the
// derived indices and notifies the synchronization engine.
func (r *Registry) Remove(ctx context.Context, info connection.Info) error {
	key := info.Key()
	r.mu.Lock()
	persisted, ok := r.connections[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", info, ErrKeyNotFound)
	}
	delete(r.connections, key)
	if typeName, hasType := r.typeOfKey[key]; hasType {
		r.byTypeName[typeName] = removeKey(r.byTypeName[typeName], key)
		if len(r.byTypeName[typeName]) == 0 {
			delete(r.byTypeName, typeName)
		}
		delete(r.typeOfKey, key)
	}
	r.mu.Unlock()

	r.engine.DropConnection(info)
	if err := persisted.Disconnect(ctx); err != nil {
		log.Warnf("persistence: disconnect of %s failed: %v", info, err)
	}
	return nil
}

// ConnectionsOfType returns the persisted connectors registered for models
// of the given simple type name.
func (r *Registry) ConnectionsOfType(typeName string) []*syncengine.PersistedConnector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.byTypeName[typeName]
	conns := make([]*syncengine.PersistedConnector, 0, len(keys))
	for _, key := range keys {
		if conn, ok := r.connections[key]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Infos returns the connection infos of all registered connections.
func (r *Registry) Infos() []connection.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]connection.Info, 0, len(r.connections))
	for _, conn := range r.connections {
		infos = append(infos, conn.Info())
	}
	return infos
}

func typeNameOf(info connection.Info, entity any) string {
	if t := info.ModelType(); t != nil {
		return simpleName(t)
	}
	if entity != nil {
		return simpleName(reflect.TypeOf(entity))
	}
	return ""
}

func simpleName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func appendUniqueKey(keys []connection.Key, key connection.Key) []connection.Key {
	for _, existing := range keys {
		if existing == key {
			return keys
		}
	}
	return append(keys, key)
}

func removeKey(keys []connection.Key, key connection.Key) []connection.Key {
	kept := keys[:0]
	for _, existing := range keys {
		if existing != key {
			kept = append(kept, existing)
		}
	}
	return kept
}
