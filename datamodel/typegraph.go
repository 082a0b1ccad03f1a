//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package datamodel

import (
	"fmt"
	"reflect"
	"sort"
)

// typeRegistry indexes the registered entity types by their simple name and
// holds the type graph: ATTRIBUTE edges between a type and its identifiable
// member types. Interface fields act as unions; their edges point at the
// registered types implementing the interface and are completed as
// implementations register, in either order. Two distinct types sharing a
// simple name are rejected.
type typeRegistry struct {
	byName   map[string]reflect.Type
	topLevel map[string]struct{}
	edges    map[ReferenceInfo]struct{}
	edgeList []ReferenceInfo
	// interface field types seen so far, with the names of the types
	// holding them.
	interfaces map[reflect.Type][]string
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{
		byName:     make(map[string]reflect.Type),
		topLevel:   make(map[string]struct{}),
		edges:      make(map[ReferenceInfo]struct{}),
		interfaces: make(map[reflect.Type][]string),
	}
}

// registerValue registers the dynamic type of v, optionally as a top-level
// type.
func (tr *typeRegistry) registerValue(v any, topLevel bool) error {
	t := derefType(reflect.TypeOf(v))
	if t.Kind() != reflect.Struct || !isIdentifiableType(t) {
		return nil
	}
	return tr.register(t, topLevel)
}

// register adds a type, its ATTRIBUTE edges and, transitively, its
// identifiable member types.
func (tr *typeRegistry) register(t reflect.Type, topLevel bool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("anonymous struct types cannot be registered: %w", ErrNotIdentifiable)
	}
	if existing, ok := tr.byName[name]; ok {
		if existing != t {
			return fmt.Errorf("type name %q held by %v and %v: %w", name, existing, t, ErrDuplicateTypeName)
		}
		if topLevel {
			tr.topLevel[name] = struct{}{}
		}
		return nil
	}
	tr.byName[name] = t
	if topLevel {
		tr.topLevel[name] = struct{}{}
	}
	// The new type may implement interface fields seen earlier; complete
	// their variant edges.
	for iface, owners := range tr.interfaces {
		if !implementsInterface(t, iface) {
			continue
		}
		for _, owner := range owners {
			tr.addEdge(owner, name)
		}
	}
	for _, member := range identifiableMemberTypes(t) {
		tr.addEdge(name, member.Name())
		if err := tr.register(member, false); err != nil {
			return err
		}
	}
	for _, iface := range interfaceFieldTypes(t) {
		tr.interfaces[iface] = appendUniqueString(tr.interfaces[iface], name)
		for _, variant := range tr.implementationsOf(iface) {
			tr.addEdge(name, variant.Name())
		}
	}
	return nil
}

// addEdge records one ATTRIBUTE edge, deduplicated.
func (tr *typeRegistry) addEdge(from, to string) {
	edge := ReferenceInfo{FromID: from, ToID: to, Kind: Attribute}
	if _, dup := tr.edges[edge]; dup {
		return
	}
	tr.edges[edge] = struct{}{}
	tr.edgeList = append(tr.edgeList, edge)
}

// implementationsOf returns the registered types implementing iface,
// sorted by name. The empty interface matches nothing.
func (tr *typeRegistry) implementationsOf(iface reflect.Type) []reflect.Type {
	if iface == nil || iface.Kind() != reflect.Interface || iface.NumMethod() == 0 {
		return nil
	}
	var names []string
	for name, t := range tr.byName {
		if implementsInterface(t, iface) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	types := make([]reflect.Type, 0, len(names))
	for _, name := range names {
		types = append(types, tr.byName[name])
	}
	return types
}

// implementsInterface reports whether t or *t satisfies iface.
func implementsInterface(t, iface reflect.Type) bool {
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}

// interfaceFieldTypes returns the non-empty interface types reachable
// through one field of t, with optionals and containers flattened.
func interfaceFieldTypes(t reflect.Type) []reflect.Type {
	var ifaces []reflect.Type
	seen := make(map[reflect.Type]struct{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		ft := derefType(field.Type)
		for ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array || ft.Kind() == reflect.Map {
			ft = derefType(ft.Elem())
		}
		if ft.Kind() != reflect.Interface || ft.NumMethod() == 0 {
			continue
		}
		if _, dup := seen[ft]; dup {
			continue
		}
		seen[ft] = struct{}{}
		ifaces = append(ifaces, ft)
	}
	return ifaces
}

func appendUniqueString(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// identifiableMemberTypes returns the identifiable struct types reachable
// through one field of t, with optionals and containers flattened.
func identifiableMemberTypes(t reflect.Type) []reflect.Type {
	var members []reflect.Type
	seen := make(map[reflect.Type]struct{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		for _, member := range flattenFieldType(field.Type) {
			if _, dup := seen[member]; dup {
				continue
			}
			seen[member] = struct{}{}
			members = append(members, member)
		}
	}
	return members
}

// flattenFieldType strips optionals (pointers) and containers from a field
// type and returns the identifiable struct types behind it.
func flattenFieldType(t reflect.Type) []reflect.Type {
	t = derefType(t)
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return flattenFieldType(t.Elem())
	case reflect.Struct:
		if isIdentifiableType(t) {
			return []reflect.Type{t}
		}
	}
	return nil
}

// RegisterTypes registers prototypes as top-level type descriptors without
// ingesting them as instances.
func (dm *DataModel) RegisterTypes(prototypes ...any) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, prototype := range prototypes {
		t := derefType(reflect.TypeOf(prototype))
		if t.Kind() != reflect.Struct || !isIdentifiableType(t) {
			return fmt.Errorf("%T: %w", prototype, ErrNotIdentifiable)
		}
		if err := dm.types.register(t, true); err != nil {
			return err
		}
	}
	return nil
}

// TypeByName resolves a registered type by its simple name.
func (dm *DataModel) TypeByName(name string) (reflect.Type, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	t, ok := dm.types.byName[name]
	if !ok {
		return nil, fmt.Errorf("type %q: %w", name, ErrTypeNotFound)
	}
	return t, nil
}

// TypesImplementing returns the registered types whose value or pointer
// form satisfies the given interface type, sorted by name. This is how
// union-shaped fields resolve to their concrete variants.
func (dm *DataModel) TypesImplementing(iface reflect.Type) []reflect.Type {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.types.implementationsOf(iface)
}

// TypeNames returns the simple names of all registered types, sorted.
func (dm *DataModel) TypeNames() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	names := make([]string, 0, len(dm.types.byName))
	for name := range dm.types.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopLevelTypeNames returns the simple names of the top-level types,
// sorted. Top-level types are the types of explicitly ingested models plus
// explicitly registered prototypes.
func (dm *DataModel) TopLevelTypeNames() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	names := make([]string, 0, len(dm.types.topLevel))
	for name := range dm.types.topLevel {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeEdges returns a copy of the type graph.
func (dm *DataModel) TypeEdges() []ReferenceInfo {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	edges := make([]ReferenceInfo, len(dm.types.edgeList))
	copy(edges, dm.types.edgeList)
	return edges
}

// TypesReferencing returns the names of types holding an ATTRIBUTE edge
// towards the named type.
func (dm *DataModel) TypesReferencing(name string) []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	var froms []string
	for _, edge := range dm.types.edgeList {
		if edge.ToID == name {
			froms = append(froms, edge.FromID)
		}
	}
	return froms
}

// TypesReferenced returns the names of types the named type holds an
// ATTRIBUTE edge towards.
func (dm *DataModel) TypesReferenced(name string) []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	var tos []string
	for _, edge := range dm.types.edgeList {
		if edge.FromID == name {
			tos = append(tos, edge.ToID)
		}
	}
	return tos
}
