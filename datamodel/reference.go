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
	"reflect"
	"strings"
)

// ReferenceKind classifies an edge between two entities.
type ReferenceKind string

const (
	// Association marks an edge where the source directly holds the target
	// as a field value.
	Association ReferenceKind = "ASSOCIATION"
	// ReferenceByID marks an edge where the source holds the string
	// identifier of the target. These edges may dangle.
	ReferenceByID ReferenceKind = "REFERENCE"
	// Attribute marks a type-level edge between a type and a member type.
	Attribute ReferenceKind = "ATTRIBUTE"
)

// ReferenceInfo is one edge of the instance or type graph.
type ReferenceInfo struct {
	FromID string        `json:"from_id"`
	ToID   string        `json:"to_id"`
	Kind   ReferenceKind `json:"kind"`
}

// defaultReferenceSuffixes are the field-name suffixes that mark a string
// field as a reference-by-id. The set is configurable per Finder.
var defaultReferenceSuffixes = []string{
	"ID", "IDs", "Id", "Ids", "Identifier", "Identifiers", "Identity", "Identities",
}

// defaultMetadataFields are standard descriptive fields excluded from
// reference detection.
var defaultMetadataFields = []string{"ID", "Id", "IDShort", "IdShort", "Description", "SemanticID"}

// Finder walks an entity tree depth-first and reports every contained
// identifiable entity together with the reference edges between them.
type Finder struct {
	suffixes       []string
	metadataFields map[string]struct{}
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithReferenceSuffixes replaces the field-name suffix set used to detect
// reference-by-id fields.
func WithReferenceSuffixes(suffixes ...string) FinderOption {
	return func(f *Finder) { f.suffixes = suffixes }
}

// WithMetadataFields replaces the set of field names excluded from
// reference detection.
func WithMetadataFields(fields ...string) FinderOption {
	return func(f *Finder) {
		f.metadataFields = make(map[string]struct{}, len(fields))
		for _, name := range fields {
			f.metadataFields[name] = struct{}{}
		}
	}
}

// NewFinder creates a Finder with the default suffix and metadata sets.
func NewFinder(opts ...FinderOption) *Finder {
	f := &Finder{suffixes: defaultReferenceSuffixes}
	WithMetadataFields(defaultMetadataFields...)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find walks root and returns the identifiable entities contained in it
// (excluding root itself) and the deduplicated reference edges discovered
// along the way. Cycles are cut by a visited-id set; self-loops are
// excluded; REFERENCE edges may point at ids outside the tree.
func (f *Finder) Find(root any) ([]any, []ReferenceInfo) {
	_, contained, edges := f.FindFrom(IDOrSynthetic(root), root)
	return contained, edges
}

// FindFrom is Find with the root id supplied by the caller, so that a
// synthetic root id stays consistent with the caller's own index. It
// additionally returns the id each contained entity was discovered under,
// aligned with the entities: synthetic ids are stable per pointer only, so
// recomputing them for entities held by value would yield fresh ids and
// dangling edges.
func (f *Finder) FindFrom(rootID string, root any) ([]string, []any, []ReferenceInfo) {
	w := &walk{
		finder:    f,
		visited:   make(map[string]struct{}),
		seenEdges: make(map[ReferenceInfo]struct{}),
		seenIDs:   make(map[string]struct{}),
	}
	w.visited[rootID] = struct{}{}
	w.walkEntity(rootID, root)
	return w.containedIDs, w.contained, w.edges
}

type walk struct {
	finder       *Finder
	visited      map[string]struct{}
	seenEdges    map[ReferenceInfo]struct{}
	seenIDs      map[string]struct{}
	containedIDs []string
	contained    []any
	edges        []ReferenceInfo
}

func (w *walk) emit(edge ReferenceInfo) {
	if edge.FromID == edge.ToID {
		return
	}
	if _, ok := w.seenEdges[edge]; ok {
		return
	}
	w.seenEdges[edge] = struct{}{}
	w.edges = append(w.edges, edge)
}

func (w *walk) addContained(id string, v any) {
	if _, ok := w.seenIDs[id]; ok {
		return
	}
	w.seenIDs[id] = struct{}{}
	w.containedIDs = append(w.containedIDs, id)
	w.contained = append(w.contained, v)
}

// walkEntity visits the exported fields of one identifiable entity.
func (w *walk) walkEntity(fromID string, v any) {
	rv := derefValue(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		if w.isReferenceField(field) {
			w.emitReferenceIDs(fromID, fv)
			continue
		}
		if _, meta := w.finder.metadataFields[field.Name]; meta {
			continue
		}
		w.walkValue(fromID, fv)
	}
}

// walkValue handles one field value: identifiable entities become
// ASSOCIATION edges and are recursed into, containers are flattened.
func (w *walk) walkValue(fromID string, fv reflect.Value) {
	for fv.IsValid() && fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return
		}
		fv = fv.Elem()
	}
	if !fv.IsValid() || !fv.CanInterface() {
		return
	}
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return
	}
	if entity, ok := entityValue(fv); ok {
		id := IDOrSynthetic(entity)
		w.emit(ReferenceInfo{FromID: fromID, ToID: id, Kind: Association})
		if _, seen := w.visited[id]; seen {
			return
		}
		w.visited[id] = struct{}{}
		w.addContained(id, entity)
		w.walkEntity(id, entity)
		return
	}
	elem := derefValue(fv)
	if !elem.IsValid() {
		return
	}
	switch elem.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < elem.Len(); i++ {
			w.walkValue(fromID, elem.Index(i))
		}
	case reflect.Map:
		iter := elem.MapRange()
		for iter.Next() {
			w.walkValue(fromID, iter.Value())
		}
	}
}

// emitReferenceIDs coerces a reference-by-id field to its identifier
// strings and emits a REFERENCE edge per non-empty value. Containers emit
// one edge per element.
func (w *walk) emitReferenceIDs(fromID string, fv reflect.Value) {
	fv = derefValue(fv)
	if !fv.IsValid() {
		return
	}
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			w.emitReferenceIDs(fromID, fv.Index(i))
		}
	case reflect.Map:
		iter := fv.MapRange()
		for iter.Next() {
			w.emitReferenceIDs(fromID, iter.Value())
		}
	default:
		if id := stringValue(fv); id != "" {
			w.emit(ReferenceInfo{FromID: fromID, ToID: id, Kind: ReferenceByID})
		}
	}
}

// isReferenceField reports whether a struct field declares a
// reference-by-id, either by the Reference type or by a suffix of its name.
// Metadata fields never count.
func (w *walk) isReferenceField(field reflect.StructField) bool {
	t := derefType(field.Type)
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map {
		t = derefType(t.Elem())
	}
	if t == referenceType {
		return true
	}
	if _, meta := w.finder.metadataFields[field.Name]; meta {
		return false
	}
	for _, suffix := range w.finder.suffixes {
		if strings.HasSuffix(field.Name, suffix) {
			return true
		}
	}
	return false
}

// entityValue returns the entity behind rv in a form that preserves pointer
// identity across the walk: pointers pass through unchanged, addressable
// structs are returned as pointers. The second result is false when rv is
// not an identifiable entity.
func entityValue(rv reflect.Value) (any, bool) {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.Elem().Kind() != reflect.Struct || !isIdentifiableType(rv.Elem().Type()) {
			return nil, false
		}
		return rv.Interface(), true
	case reflect.Struct:
		if !isIdentifiableType(rv.Type()) {
			return nil, false
		}
		if rv.CanAddr() {
			return rv.Addr().Interface(), true
		}
		return rv.Interface(), true
	default:
		return nil, false
	}
}
