//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package middleware is the facade tying the framework together: data model
// registration, persistence population, connector syncing, workflow
// registration and the generated HTTP surface, behind one lifecycle.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/server"
	"trpc.group/trpc-go/trpc-datamesh-go/server/graphqlapi"
	"trpc.group/trpc-go/trpc-datamesh-go/server/rest"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/workflow"
)

// The facade errors wrap the shared sentinels so that the generated HTTP
// endpoints map them to client error statuses.
var (
	// ErrDataModelNotFound reports an operation on an unloaded data model.
	ErrDataModelNotFound = fmt.Errorf("data model not loaded: %w", persistence.ErrKeyNotFound)
	// ErrConnectorNotFound reports an operation on an unregistered connector.
	ErrConnectorNotFound = fmt.Errorf("connector not registered: %w", persistence.ErrKeyNotFound)
	// ErrDuplicateConnector reports two connectors registered under one id.
	ErrDuplicateConnector = fmt.Errorf("connector id already registered: %w", datamodel.ErrDuplicateID)
)

// connectorEntry tracks one registered external connector.
type connectorEntry struct {
	id        string
	conn      any
	modelType reflect.Type
	info      *connection.Info
	synced    *syncengine.SyncedConnector
}

// Middleware owns the engine, the persistence registry, the workflow
// registry and the HTTP server.
type Middleware struct {
	engine    *syncengine.Engine
	registry  *persistence.Registry
	workflows *workflow.Registry
	srv       *server.Server

	mu         sync.RWMutex
	dataModels map[string]*datamodel.DataModel
	connectors map[string]*connectorEntry
}

// Option configures the Middleware instance.
type Option func(*config)

type config struct {
	addr            string
	engineOpts      []syncengine.Option
	persistenceOpts []persistence.Option
	serverOpts      []server.Option
}

// WithAddr sets the HTTP listen address. Default is ":8080".
func WithAddr(addr string) Option {
	return func(c *config) { c.addr = addr }
}

// WithEngineOptions passes options to the synchronization engine.
func WithEngineOptions(opts ...syncengine.Option) Option {
	return func(c *config) { c.engineOpts = append(c.engineOpts, opts...) }
}

// WithPersistenceOptions passes options to the persistence registry.
func WithPersistenceOptions(opts ...persistence.Option) Option {
	return func(c *config) { c.persistenceOpts = append(c.persistenceOpts, opts...) }
}

// WithServerOptions passes options to the HTTP server shell.
func WithServerOptions(opts ...server.Option) Option {
	return func(c *config) { c.serverOpts = append(c.serverOpts, opts...) }
}

// New creates a middleware instance.
func New(opts ...Option) *Middleware {
	c := config{addr: ":8080"}
	for _, opt := range opts {
		opt(&c)
	}
	engine := syncengine.New(c.engineOpts...)
	return &Middleware{
		engine:     engine,
		registry:   persistence.New(engine, c.persistenceOpts...),
		workflows:  workflow.NewRegistry(),
		srv:        server.New(c.addr, c.serverOpts...),
		dataModels: make(map[string]*datamodel.DataModel),
		connectors: make(map[string]*connectorEntry),
	}
}

// Registry returns the persistence registry, for factory wiring.
func (m *Middleware) Registry() *persistence.Registry { return m.registry }

// Engine returns the synchronization engine.
func (m *Middleware) Engine() *syncengine.Engine { return m.engine }

// Server returns the HTTP server shell.
func (m *Middleware) Server() *server.Server { return m.srv }

// DataModel returns a loaded data model by name.
func (m *Middleware) DataModel(name string) (*datamodel.DataModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dm, ok := m.dataModels[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDataModelNotFound)
	}
	return dm, nil
}

// LoadDataModel registers a data model under name. When persistInstances is
// set, every top-level entity is immediately persisted through the
// registry's factories.
func (m *Middleware) LoadDataModel(ctx context.Context, name string, dm *datamodel.DataModel, persistInstances bool) error {
	m.mu.Lock()
	m.dataModels[name] = dm
	m.mu.Unlock()

	if !persistInstances {
		return nil
	}
	for _, entity := range dm.TopLevel() {
		id, err := datamodel.ID(entity)
		if err != nil {
			return fmt.Errorf("data model %q: %w", name, err)
		}
		info := connection.ForModel(name, id).WithModelType(reflect.TypeOf(entity))
		if err := m.registry.Add(ctx, info, entity, nil); err != nil {
			return fmt.Errorf("data model %q: persist %q: %w", name, id, err)
		}
	}
	log.Infof("middleware: loaded data model %q (%d top-level entities)", name, len(dm.TopLevel()))
	return nil
}

// AddConnector registers an external connector under id. When info is
// non-nil the connector is bound to that persistence location; a persistence
// connection is created through the factories if none exists yet.
func (m *Middleware) AddConnector(ctx context.Context, id string, conn any, modelType reflect.Type, info *connection.Info) error {
	m.mu.Lock()
	if _, dup := m.connectors[id]; dup {
		m.mu.Unlock()
		return fmt.Errorf("%q: %w", id, ErrDuplicateConnector)
	}
	entry := &connectorEntry{id: id, conn: conn, modelType: modelType, info: info}
	m.connectors[id] = entry
	m.mu.Unlock()

	if lifecycle, ok := conn.(connector.Lifecycle); ok {
		if err := lifecycle.Connect(ctx); err != nil {
			return fmt.Errorf("connector %q: %w", id, err)
		}
	}
	if info == nil {
		return nil
	}
	bound := *info
	if modelType != nil && bound.ModelType() == nil {
		bound = bound.WithModelType(modelType)
	}
	if _, err := m.registry.Connection(bound); err != nil {
		if !errors.Is(err, persistence.ErrKeyNotFound) {
			return err
		}
		if err := m.registry.Add(ctx, bound, nil, nil); err != nil {
			return fmt.Errorf("connector %q: %w", id, err)
		}
	}
	return nil
}

// SyncConnector binds a previously added connector to a persistence
// location under a role and direction.
func (m *Middleware) SyncConnector(_ context.Context, id string, info connection.Info, opts ...syncengine.SyncOption) error {
	m.mu.Lock()
	entry, ok := m.connectors[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrConnectorNotFound)
	}
	persisted, err := m.registry.Connection(info)
	if err != nil {
		return fmt.Errorf("connector %q: %w", id, err)
	}
	synced, err := m.engine.Sync(id, entry.conn, info, persisted, opts...)
	if err != nil {
		return fmt.Errorf("connector %q: %w", id, err)
	}
	m.mu.Lock()
	entry.synced = synced
	entry.info = &info
	m.mu.Unlock()
	return nil
}

// RegisterWorkflow adds a workflow to the registry.
func (m *Middleware) RegisterWorkflow(w workflow.Workflow) error {
	return m.workflows.Register(w)
}

// Workflows returns the workflow registry.
func (m *Middleware) Workflows() *workflow.Registry { return m.workflows }

// GenerateRESTAPI mounts the generated CRUD routes for a loaded data model.
func (m *Middleware) GenerateRESTAPI(name string, opts ...rest.Option) error {
	dm, err := m.DataModel(name)
	if err != nil {
		return err
	}
	return rest.New(name, dm, m.registry, opts...).Mount(m.srv.Router())
}

// GenerateGraphQLAPI mounts the query-only GraphQL endpoint for a loaded
// data model.
func (m *Middleware) GenerateGraphQLAPI(name string) error {
	dm, err := m.DataModel(name)
	if err != nil {
		return err
	}
	return graphqlapi.New(name, dm, m.registry).Mount(m.srv.Router())
}

// Start launches the onStartup workflows and serves HTTP until Shutdown.
func (m *Middleware) Start(ctx context.Context) error {
	for _, w := range m.workflows.All() {
		if !w.OnStartup() {
			continue
		}
		if _, err := w.ExecuteBackground(ctx, nil); err != nil {
			log.Errorf("middleware: startup workflow %q failed to launch: %v", w.Name(), err)
		}
	}
	return m.srv.Start()
}

// Shutdown runs the onShutdown workflows, interrupts in-flight runs,
// disconnects connectors and drains the HTTP server.
func (m *Middleware) Shutdown(ctx context.Context) error {
	for _, w := range m.workflows.All() {
		if !w.OnShutdown() {
			continue
		}
		if _, err := w.Execute(ctx, nil); err != nil {
			log.Errorf("middleware: shutdown workflow %q failed: %v", w.Name(), err)
		}
	}
	for _, w := range m.workflows.All() {
		if w.Describe().Running {
			if err := w.Interrupt(); err != nil && !errors.Is(err, workflow.ErrNotRunning) {
				log.Warnf("middleware: interrupt of %q failed: %v", w.Name(), err)
			}
		}
	}
	m.mu.RLock()
	entries := make([]*connectorEntry, 0, len(m.connectors))
	for _, entry := range m.connectors {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()
	for _, entry := range entries {
		if lifecycle, ok := entry.conn.(connector.Lifecycle); ok {
			if err := lifecycle.Disconnect(ctx); err != nil {
				log.Warnf("middleware: disconnect of %q failed: %v", entry.id, err)
			}
		}
	}
	return m.srv.Shutdown(ctx)
}

// connectorByID resolves a registered connector entry.
func (m *Middleware) connectorByID(id string) (*connectorEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.connectors[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrConnectorNotFound)
	}
	return entry, nil
}
