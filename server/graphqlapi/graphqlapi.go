//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package graphqlapi generates a query-only GraphQL schema from a data
// model's type graph. Each top-level type becomes a list field backed by the
// persistence connections registered under that type name.
package graphqlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/mux"
	"github.com/graphql-go/graphql"

	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/server"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
)

// Generator builds the GraphQL schema for one data model.
type Generator struct {
	name      string
	dataModel *datamodel.DataModel
	registry  *persistence.Registry
	objects   map[string]*graphql.Object
	unions    map[string]*graphql.Union
}

// New creates a generator for the named data model.
func New(name string, dataModel *datamodel.DataModel, registry *persistence.Registry) *Generator {
	return &Generator{
		name:      name,
		dataModel: dataModel,
		registry:  registry,
		objects:   make(map[string]*graphql.Object),
		unions:    make(map[string]*graphql.Union),
	}
}

// Mount registers the /graphql endpoint on router.
func (g *Generator) Mount(router *mux.Router) error {
	schema, err := g.Schema()
	if err != nil {
		return err
	}
	handler := g.handler(schema)
	router.HandleFunc("/graphql", handler).Methods(http.MethodGet, http.MethodPost)
	return nil
}

// Schema builds the query-only schema: one list field per top-level type.
func (g *Generator) Schema() (graphql.Schema, error) {
	queryFields := graphql.Fields{}
	for _, typeName := range g.dataModel.TopLevelTypeNames() {
		t, err := g.dataModel.TypeByName(typeName)
		if err != nil {
			return graphql.Schema{}, err
		}
		object := g.objectType(t)
		if object == nil {
			continue
		}
		queryFields[typeName] = &graphql.Field{
			Type:    graphql.NewList(object),
			Resolve: g.listResolver(typeName),
		}
	}
	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

// listResolver enumerates the persistence connections registered under the
// type name and reads each. Unreadable connections are skipped with a log.
func (g *Generator) listResolver(typeName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		values := []any{}
		for _, conn := range g.registry.ConnectionsOfType(typeName) {
			value, err := conn.Provide(p.Context)
			if err != nil {
				log.Warnf("graphql: read of %s failed: %v", conn.Info(), err)
				continue
			}
			values = append(values, value)
		}
		return values, nil
	}
}

// objectType maps an identifiable struct type to a GraphQL object type.
// Cycles in the type graph are broken with a fields thunk.
func (g *Generator) objectType(t reflect.Type) *graphql.Object {
	if object, ok := g.objects[t.Name()]; ok {
		return object
	}
	object := graphql.NewObject(graphql.ObjectConfig{
		Name: t.Name(),
		Fields: (graphql.FieldsThunk)(func() graphql.Fields {
			return g.fieldsOf(t)
		}),
	})
	g.objects[t.Name()] = object
	return object
}

func (g *Generator) fieldsOf(t reflect.Type) graphql.Fields {
	fields := graphql.Fields{}
	for _, field := range datamodel.Fields(t) {
		output := g.outputType(field)
		if output == nil {
			continue
		}
		fields[field.JSONName] = &graphql.Field{Type: output}
	}
	if len(fields) == 0 {
		// GraphQL objects must carry at least one field.
		fields["id"] = &graphql.Field{Type: graphql.String}
	}
	return fields
}

// outputType maps one entity field to its GraphQL output type. Optionals
// are flattened to the non-null variant; containers become lists;
// interface fields become the union of their registered implementations;
// unsupported shapes (maps, channels, functions) are dropped.
func (g *Generator) outputType(field datamodel.FieldInfo) graphql.Output {
	var inner graphql.Output
	switch {
	case field.Identifiable:
		inner = g.objectType(field.Type)
	case field.Type.Kind() == reflect.Interface:
		inner = g.unionType(field.Type)
	default:
		inner = scalarOf(field.Type)
	}
	if inner == nil {
		return nil
	}
	if field.Container {
		return graphql.NewList(inner)
	}
	return inner
}

// unionType maps an interface type to the union of the registered types
// implementing it. A single implementation collapses to its object type;
// anonymous interfaces and interfaces without registered implementations
// are dropped.
func (g *Generator) unionType(t reflect.Type) graphql.Output {
	variants := g.dataModel.TypesImplementing(t)
	if len(variants) == 0 {
		return nil
	}
	if len(variants) == 1 {
		return g.objectType(variants[0])
	}
	if t.Name() == "" {
		return nil
	}
	if union, ok := g.unions[t.Name()]; ok {
		return union
	}
	objects := make([]*graphql.Object, 0, len(variants))
	for _, variant := range variants {
		objects = append(objects, g.objectType(variant))
	}
	union := graphql.NewUnion(graphql.UnionConfig{
		Name:  t.Name(),
		Types: objects,
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			rt := reflect.TypeOf(p.Value)
			for rt != nil && rt.Kind() == reflect.Pointer {
				rt = rt.Elem()
			}
			if rt == nil {
				return nil
			}
			return g.objects[rt.Name()]
		},
	})
	g.unions[t.Name()] = union
	return union
}

func scalarOf(t reflect.Type) graphql.Output {
	if t == reflect.TypeOf(time.Time{}) {
		return graphql.DateTime
	}
	switch t.Kind() {
	case reflect.String:
		return graphql.String
	case reflect.Bool:
		return graphql.Boolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return graphql.Int
	case reflect.Float32, reflect.Float64:
		return graphql.Float
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return graphql.String
		}
	case reflect.Struct:
		// Non-identifiable structs like File are exposed by their fields.
		if t == reflect.TypeOf(datamodel.File{}) || t == reflect.TypeOf(datamodel.Blob{}) {
			return contentObject(t)
		}
	}
	return nil
}

var contentObjects = map[string]*graphql.Object{}

// contentObject exposes File and Blob values without the blob payload.
func contentObject(t reflect.Type) *graphql.Object {
	if object, ok := contentObjects[t.Name()]; ok {
		return object
	}
	fields := graphql.Fields{"media_type": &graphql.Field{Type: graphql.String}}
	if t == reflect.TypeOf(datamodel.File{}) {
		fields["path"] = &graphql.Field{Type: graphql.String}
	}
	object := graphql.NewObject(graphql.ObjectConfig{Name: t.Name(), Fields: fields})
	contentObjects[t.Name()] = object
	return object
}

// request is the standard GraphQL HTTP request body.
type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (g *Generator) handler(schema graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		switch r.Method {
		case http.MethodGet:
			req.Query = r.URL.Query().Get("query")
		default:
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				server.WriteError(w, fmt.Errorf("invalid graphql request: %v: %w", err, transform.ErrMapping))
				return
			}
		}
		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			OperationName:  req.OperationName,
			VariableValues: req.Variables,
			Context:        r.Context(),
		})
		server.WriteJSON(w, result)
	}
}
