//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package rest generates CRUD routers from a data model's type graph. Each
// top-level type gets collection and entity routes, nested identifiable
// attributes get sub-routes, and File/Blob fields get raw content routes.
package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/gorilla/mux"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/server"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
)

// Generator mounts generated CRUD routes for one data model.
type Generator struct {
	name      string
	dataModel *datamodel.DataModel
	registry  *persistence.Registry
	client    *http.Client
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient replaces the client used to proxy File contents.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) { g.client = client }
}

// New creates a generator for the named data model.
func New(name string, dataModel *datamodel.DataModel, registry *persistence.Registry, opts ...Option) *Generator {
	g := &Generator{
		name:      name,
		dataModel: dataModel,
		registry:  registry,
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mount registers the generated routes for every top-level type on router.
func (g *Generator) Mount(router *mux.Router) error {
	for _, typeName := range g.dataModel.TopLevelTypeNames() {
		t, err := g.dataModel.TypeByName(typeName)
		if err != nil {
			return err
		}
		g.mountType(router, typeName, t)
	}
	return nil
}

func (g *Generator) mountType(router *mux.Router, typeName string, t reflect.Type) {
	base := "/" + typeName
	router.HandleFunc(base+"/", g.handleList(typeName)).Methods(http.MethodGet)
	router.HandleFunc(base+"/", g.handleCreate(t)).Methods(http.MethodPost)
	router.HandleFunc(base+"/{id}", g.handleGet()).Methods(http.MethodGet)
	router.HandleFunc(base+"/{id}", g.handleUpdate(t)).Methods(http.MethodPut)
	router.HandleFunc(base+"/{id}", g.handleDelete()).Methods(http.MethodDelete)

	for _, field := range datamodel.Fields(t) {
		if field.Container {
			continue
		}
		variants := g.variantsOf(field)
		if len(variants) == 0 {
			continue
		}
		attrBase := base + "/{id}/" + field.JSONName
		router.HandleFunc(attrBase, g.handleAttrGet(field)).Methods(http.MethodGet)
		router.HandleFunc(attrBase, g.handleAttrPut(field, variants)).Methods(http.MethodPut)
		if field.Optional {
			router.HandleFunc(attrBase, g.handleAttrPost(field, variants)).Methods(http.MethodPost)
			router.HandleFunc(attrBase, g.handleAttrDelete(field)).Methods(http.MethodDelete)
		}
		g.mountContentRoutes(router, attrBase, field, variants)
	}
}

// variantsOf resolves an attribute field to its concrete entity types: the
// field type itself when it is identifiable, or the registered
// implementations when the field is interface-typed.
func (g *Generator) variantsOf(field datamodel.FieldInfo) []reflect.Type {
	if field.Identifiable {
		return []reflect.Type{field.Type}
	}
	if field.Type.Kind() == reflect.Interface {
		return g.dataModel.TypesImplementing(field.Type)
	}
	return nil
}

// mountContentRoutes emits a raw GET route for every File or Blob reachable
// under the attribute's variant types. Paths crossing containers get no
// route since raw content is addressed by field names only.
func (g *Generator) mountContentRoutes(router *mux.Router, attrBase string,
	field datamodel.FieldInfo, variants []reflect.Type) {
	seen := make(map[string]struct{})
	for _, variant := range variants {
		for _, path := range datamodel.ContentPaths(variant) {
			jsonSegments, ok := jsonPath(variant, path.Segments)
			if !ok {
				continue
			}
			route := attrBase
			for _, segment := range jsonSegments {
				route += "/" + segment
			}
			if _, dup := seen[route]; dup {
				continue
			}
			seen[route] = struct{}{}
			segments := append([]string{field.Name}, path.Segments...)
			router.HandleFunc(route, g.handleContent(segments)).Methods(http.MethodGet)
		}
	}
}

// jsonPath maps a path of Go field names to JSON names along the type.
// Paths through container fields are rejected: Navigate resolves fields by
// name and cannot cross slices or maps.
func jsonPath(t reflect.Type, segments []string) ([]string, bool) {
	jsonSegments := make([]string, 0, len(segments))
	current := t
	for _, segment := range segments {
		found := false
		for _, field := range datamodel.Fields(current) {
			if field.Name == segment {
				if field.Container {
					return nil, false
				}
				jsonSegments = append(jsonSegments, field.JSONName)
				current = field.Type
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return jsonSegments, true
}

func (g *Generator) handleList(typeName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities := []any{}
		for _, conn := range g.registry.ConnectionsOfType(typeName) {
			value, err := conn.Provide(r.Context())
			if err != nil {
				log.Warnf("rest: list read of %s failed: %v", conn.Info(), err)
				continue
			}
			stripped, err := datamodel.StripBlobContent(value)
			if err != nil {
				server.WriteError(w, err)
				return
			}
			entities = append(entities, stripped)
		}
		server.WriteJSON(w, entities)
	}
}

func (g *Generator) handleCreate(t reflect.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := decodeInto(t, r.Body)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		id, err := datamodel.ID(entity)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		info := connection.ForModel(g.name, id).WithModelType(t)
		if g.persistedExists(r, info) {
			server.WriteError(w, fmt.Errorf("entity %q already exists: %w", id, datamodel.ErrDuplicateID))
			return
		}
		if err := g.dataModel.Add(entity); err != nil {
			server.WriteError(w, err)
			return
		}
		if err := g.registry.Add(r.Context(), info, entity, nil); err != nil {
			server.WriteError(w, err)
			return
		}
		g.writeStripped(w, entity)
	}
}

// persistedExists reports whether a value is already persisted exactly at
// info.
func (g *Generator) persistedExists(r *http.Request, info connection.Info) bool {
	conn, err := g.registry.Connection(info)
	if err != nil || !conn.Info().Equal(info) {
		return false
	}
	_, err = conn.Provide(r.Context())
	return err == nil
}

func (g *Generator) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.connection(mux.Vars(r)["id"])
		if err != nil {
			server.WriteError(w, err)
			return
		}
		value, err := conn.Provide(r.Context())
		if err != nil {
			server.WriteError(w, err)
			return
		}
		g.writeStripped(w, value)
	}
}

func (g *Generator) handleUpdate(t reflect.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		oldID := mux.Vars(r)["id"]
		entity, err := decodeInto(t, r.Body)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		newID, err := datamodel.ID(entity)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		conn, err := g.connection(oldID)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if current, err := conn.Provide(r.Context()); err == nil && jsonEqual(current, entity) {
			server.WriteMessage(w, fmt.Sprintf("entity %q is already up to date", oldID))
			return
		}
		if g.dataModel.Contains(oldID) {
			if err := g.dataModel.Remove(oldID, true); err != nil {
				server.WriteError(w, err)
				return
			}
		}
		if err := g.dataModel.Add(entity); err != nil {
			server.WriteError(w, err)
			return
		}
		if newID == oldID {
			if err := conn.Consume(r.Context(), entity); err != nil {
				server.WriteError(w, err)
				return
			}
			g.writeStripped(w, entity)
			return
		}
		// The id changed: persist under the new id, then delete the old
		// persisted value and its connection.
		newInfo := connection.ForModel(g.name, newID).WithModelType(t)
		if err := g.registry.Add(r.Context(), newInfo, entity, nil); err != nil {
			server.WriteError(w, err)
			return
		}
		if err := conn.Consume(r.Context(), nil); err != nil {
			log.Warnf("rest: delete of replaced %s failed: %v", conn.Info(), err)
		}
		if err := g.registry.Remove(r.Context(), connection.ForModel(g.name, oldID)); err != nil {
			log.Warnf("rest: removal of replaced %s failed: %v", conn.Info(), err)
		}
		g.writeStripped(w, entity)
	}
}

func (g *Generator) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		conn, err := g.connection(id)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if err := conn.Consume(r.Context(), nil); err != nil {
			server.WriteError(w, err)
			return
		}
		if err := g.registry.Remove(r.Context(), connection.ForModel(g.name, id)); err != nil {
			server.WriteError(w, err)
			return
		}
		if g.dataModel.Contains(id) {
			if err := g.dataModel.Remove(id, true); err != nil {
				log.Warnf("rest: data model removal of %q failed: %v", id, err)
			}
		}
		server.WriteMessage(w, fmt.Sprintf("deleted entity %q", id))
	}
}

func (g *Generator) handleAttrGet(field datamodel.FieldInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, value, err := g.attribute(r, field)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if isNil(value) {
			server.WriteError(w, fmt.Errorf("attribute %q is not set: %w", field.JSONName, datamodel.ErrFieldNotFound))
			return
		}
		g.writeStripped(w, value)
	}
}

func (g *Generator) handleAttrPut(field datamodel.FieldInfo, variants []reflect.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, entity, current, err := g.attribute(r, field)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		value, err := decodeIntoOneOf(variants, r.Body)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if !isNil(current) && jsonEqual(current, value) {
			server.WriteMessage(w, fmt.Sprintf("attribute %q is already up to date", field.JSONName))
			return
		}
		if err := g.setAndPersist(r, conn, entity, field, value); err != nil {
			server.WriteError(w, err)
			return
		}
		g.writeStripped(w, value)
	}
}

func (g *Generator) handleAttrPost(field datamodel.FieldInfo, variants []reflect.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, entity, current, err := g.attribute(r, field)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if !isNil(current) {
			server.WriteError(w, fmt.Errorf("attribute %q already set: %w", field.JSONName, datamodel.ErrDuplicateID))
			return
		}
		value, err := decodeIntoOneOf(variants, r.Body)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if err := g.setAndPersist(r, conn, entity, field, value); err != nil {
			server.WriteError(w, err)
			return
		}
		g.writeStripped(w, value)
	}
}

func (g *Generator) handleAttrDelete(field datamodel.FieldInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, entity, _, err := g.attribute(r, field)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		if err := g.setAndPersist(r, conn, entity, field, nil); err != nil {
			server.WriteError(w, err)
			return
		}
		server.WriteMessage(w, fmt.Sprintf("deleted attribute %q", field.JSONName))
	}
}

func (g *Generator) handleContent(segments []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.connection(mux.Vars(r)["id"])
		if err != nil {
			server.WriteError(w, err)
			return
		}
		entity, err := conn.Provide(r.Context())
		if err != nil {
			server.WriteError(w, err)
			return
		}
		value, err := datamodel.Navigate(entity, segments)
		if err != nil {
			server.WriteError(w, err)
			return
		}
		g.serveContent(w, r, value)
	}
}

// serveContent streams a File target or a Blob payload with its media type.
func (g *Generator) serveContent(w http.ResponseWriter, r *http.Request, value any) {
	switch content := deref(value).(type) {
	case datamodel.File:
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, content.Path, nil)
		if err != nil {
			server.WriteError(w, fmt.Errorf("file %q: %w", content.Path, err))
			return
		}
		resp, err := g.client.Do(req)
		if err != nil {
			server.WriteError(w, fmt.Errorf("file %q: %w: %v", content.Path, connector.ErrConnection, err))
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", content.MediaType)
		_, _ = io.Copy(w, resp.Body)
	case datamodel.Blob:
		w.Header().Set("Content-Type", content.MediaType)
		_, _ = w.Write(content.Content)
	default:
		server.WriteError(w, fmt.Errorf("path does not end in file or blob content: %w", datamodel.ErrFieldNotFound))
	}
}

// connection resolves the persisted connection for one top-level entity.
func (g *Generator) connection(id string) (*syncengine.PersistedConnector, error) {
	return g.registry.Connection(connection.ForModel(g.name, id))
}

// attribute loads the parent entity and the current attribute value.
func (g *Generator) attribute(r *http.Request, field datamodel.FieldInfo) (*syncengine.PersistedConnector, any, any, error) {
	conn, err := g.connection(mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, nil, err
	}
	entity, err := conn.Provide(r.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	current, err := datamodel.GetField(entity, field.Name)
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, entity, current, nil
}

// setAndPersist updates the attribute on the shared entity instance and
// re-persists the parent, fanning the change out to synced peers.
func (g *Generator) setAndPersist(r *http.Request, conn *syncengine.PersistedConnector,
	entity any, field datamodel.FieldInfo, value any) error {
	if err := datamodel.SetField(entity, field.Name, value); err != nil {
		return err
	}
	return conn.Consume(r.Context(), entity)
}

func (g *Generator) writeStripped(w http.ResponseWriter, value any) {
	stripped, err := datamodel.StripBlobContent(value)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, stripped)
}

// decodeInto decodes a JSON body onto a fresh instance of t. Decode
// failures are user input errors.
func decodeInto(t reflect.Type, body io.Reader) (any, error) {
	p := reflect.New(t)
	if err := json.NewDecoder(body).Decode(p.Interface()); err != nil {
		return nil, fmt.Errorf("body does not fit %s: %v: %w", t.Name(), err, transform.ErrMapping)
	}
	return p.Interface(), nil
}

// decodeIntoOneOf decodes a JSON body onto the first variant type it fits.
// A single variant decodes leniently like decodeInto; with several,
// unknown fields disambiguate between them.
func decodeIntoOneOf(variants []reflect.Type, body io.Reader) (any, error) {
	if len(variants) == 1 {
		return decodeInto(variants[0], body)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %v: %w", err, transform.ErrMapping)
	}
	for _, t := range variants {
		p := reflect.New(t)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p.Interface()); err == nil {
			return p.Interface(), nil
		}
	}
	return nil, fmt.Errorf("body fits none of %d admissible types: %w", len(variants), transform.ErrMapping)
}

func jsonEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(rawA, rawB)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}
