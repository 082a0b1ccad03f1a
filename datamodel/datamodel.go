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
	"sync"
)

// DataModel is an indexed container of entities plus the reference graph
// between them. Entities are mutable references shared with callers;
// mutations are visible through the indices. Identifier mutations must be
// followed by Reindex.
type DataModel struct {
	mu     sync.RWMutex
	finder *Finder
	types  *typeRegistry

	byID         map[string]any
	byTypeName   map[string][]string
	topLevel     map[string]struct{}
	edges        map[ReferenceInfo]struct{}
	edgeList     []ReferenceInfo
	referencedBy map[string][]string
	referringTo  map[string][]string
}

// Option configures a DataModel.
type Option func(*DataModel)

// WithFinder replaces the reference finder used during ingestion.
func WithFinder(f *Finder) Option {
	return func(dm *DataModel) { dm.finder = f }
}

// New creates an empty DataModel.
func New(opts ...Option) *DataModel {
	dm := &DataModel{
		finder:       NewFinder(),
		types:        newTypeRegistry(),
		byID:         make(map[string]any),
		byTypeName:   make(map[string][]string),
		topLevel:     make(map[string]struct{}),
		edges:        make(map[ReferenceInfo]struct{}),
		referencedBy: make(map[string][]string),
		referringTo:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// FromModels creates a DataModel and ingests the given top-level models.
func FromModels(models ...any) (*DataModel, error) {
	dm := New()
	if err := dm.Load(models...); err != nil {
		return nil, err
	}
	return dm, nil
}

// FromModelTypes creates a DataModel holding only type descriptors. The
// prototypes are not ingested as instances.
func FromModelTypes(prototypes ...any) (*DataModel, error) {
	dm := New()
	if err := dm.RegisterTypes(prototypes...); err != nil {
		return nil, err
	}
	return dm, nil
}

// Load ingests top-level models: each model and every identifiable entity
// discovered inside it is indexed, the reference edges are recorded and
// equal-value duplicates are unified onto one canonical instance.
func (dm *DataModel) Load(models ...any) error {
	for _, model := range models {
		if err := dm.Add(model); err != nil {
			return err
		}
	}
	return nil
}

// Add ingests one top-level model. The walk reuses the root id computed
// here, so a synthetic id stays consistent between the indices and the
// emitted edges.
func (dm *DataModel) Add(model any) error {
	if !IsIdentifiable(model) {
		return fmt.Errorf("%T: %w", model, ErrNotIdentifiable)
	}
	id := IDOrSynthetic(model)
	ids, contained, edges := dm.finder.FindFrom(id, model)

	dm.mu.Lock()
	defer dm.mu.Unlock()

	// Validate the whole batch before touching any index so that a
	// conflicting duplicate rejects the model without partial state.
	if err := dm.checkConflict(id, model); err != nil {
		return err
	}
	for i, entity := range contained {
		if err := dm.checkConflict(ids[i], entity); err != nil {
			return err
		}
	}
	if err := dm.types.registerValue(model, true); err != nil {
		return err
	}
	for _, entity := range contained {
		if err := dm.types.registerValue(entity, false); err != nil {
			return err
		}
	}

	if err := dm.register(id, model); err != nil {
		return err
	}
	dm.topLevel[id] = struct{}{}
	for i, entity := range contained {
		if err := dm.register(ids[i], entity); err != nil {
			return err
		}
	}
	for _, edge := range edges {
		dm.addEdge(edge)
	}
	return nil
}

// checkConflict reports ErrDuplicateID when id is already held by a
// different value. Must hold dm.mu.
func (dm *DataModel) checkConflict(id string, entity any) error {
	existing, ok := dm.byID[id]
	if !ok || sameEntity(existing, entity) || reflect.DeepEqual(existing, entity) {
		return nil
	}
	return fmt.Errorf("id %q: %w", id, ErrDuplicateID)
}

// register stores an entity under its id, unifying equal-value duplicates
// and rejecting conflicting ones. Must hold dm.mu.
func (dm *DataModel) register(id string, entity any) error {
	existing, ok := dm.byID[id]
	if !ok {
		dm.byID[id] = entity
		name := simpleTypeName(entity)
		dm.byTypeName[name] = append(dm.byTypeName[name], id)
		return nil
	}
	if sameEntity(existing, entity) {
		return nil
	}
	if reflect.DeepEqual(existing, entity) {
		// Normalization: redirect every stored pointer at the duplicate to
		// the canonical instance.
		dm.redirect(entity, existing)
		return nil
	}
	return fmt.Errorf("id %q: %w", id, ErrDuplicateID)
}

// redirect rewrites, in place, every field of every stored entity whose
// value is the duplicate pointer so that it points at the canonical
// instance. Must hold dm.mu.
func (dm *DataModel) redirect(dup, canonical any) {
	for _, entity := range dm.byID {
		rv := derefValue(reflect.ValueOf(entity))
		if !rv.IsValid() || rv.Kind() != reflect.Struct {
			continue
		}
		redirectInValue(rv, dup, canonical)
	}
}

// redirectInValue replaces occurrences of dup with canonical inside the
// exported fields of rv, descending into slices and maps.
func redirectInValue(rv reflect.Value, dup, canonical any) {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		if !field.CanSet() || !field.CanInterface() {
			continue
		}
		replaceValue(field, dup, canonical)
	}
}

func replaceValue(field reflect.Value, dup, canonical any) {
	switch field.Kind() {
	case reflect.Pointer, reflect.Interface:
		if field.IsNil() {
			return
		}
		if field.CanInterface() && field.Interface() == dup {
			cv := reflect.ValueOf(canonical)
			if cv.Type().AssignableTo(field.Type()) && field.CanSet() {
				field.Set(cv)
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < field.Len(); i++ {
			replaceValue(field.Index(i), dup, canonical)
		}
	case reflect.Map:
		iter := field.MapRange()
		for iter.Next() {
			v := iter.Value()
			if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) &&
				!v.IsNil() && v.CanInterface() && v.Interface() == dup {
				cv := reflect.ValueOf(canonical)
				if cv.Type().AssignableTo(field.Type().Elem()) {
					field.SetMapIndex(iter.Key(), cv)
				}
			}
		}
	}
}

// addEdge records an edge and updates the back-reference indices. Dangling
// REFERENCE edges are retained. Must hold dm.mu.
func (dm *DataModel) addEdge(edge ReferenceInfo) {
	if _, ok := dm.edges[edge]; ok {
		return
	}
	dm.edges[edge] = struct{}{}
	dm.edgeList = append(dm.edgeList, edge)
	dm.referringTo[edge.FromID] = append(dm.referringTo[edge.FromID], edge.ToID)
	dm.referencedBy[edge.ToID] = append(dm.referencedBy[edge.ToID], edge.FromID)
}

// Get returns the entity stored under id.
func (dm *DataModel) Get(id string) (any, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	entity, ok := dm.byID[id]
	if !ok {
		return nil, fmt.Errorf("id %q: %w", id, ErrModelNotFound)
	}
	return entity, nil
}

// Contains reports whether an entity is stored under id.
func (dm *DataModel) Contains(id string) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	_, ok := dm.byID[id]
	return ok
}

// ModelsOfType returns all entities whose type matches the prototype's
// type.
func (dm *DataModel) ModelsOfType(prototype any) []any {
	return dm.ModelsOfTypeName(simpleTypeName(prototype))
}

// ModelsOfTypeName returns all entities stored under the given simple type
// name.
func (dm *DataModel) ModelsOfTypeName(name string) []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := dm.byTypeName[name]
	models := make([]any, 0, len(ids))
	for _, id := range ids {
		if entity, ok := dm.byID[id]; ok {
			models = append(models, entity)
		}
	}
	return models
}

// TopLevel returns the entities that were explicitly ingested, not merely
// discovered during traversal.
func (dm *DataModel) TopLevel() []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	models := make([]any, 0, len(dm.topLevel))
	for id := range dm.topLevel {
		if entity, ok := dm.byID[id]; ok {
			models = append(models, entity)
		}
	}
	return models
}

// Contained returns the entities discovered during traversal that are not
// top-level.
func (dm *DataModel) Contained() []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	models := make([]any, 0, len(dm.byID)-len(dm.topLevel))
	for id, entity := range dm.byID {
		if _, top := dm.topLevel[id]; !top {
			models = append(models, entity)
		}
	}
	return models
}

// Referencing returns the entities holding an edge towards the entity with
// the given id. Referrers of dangling references resolve too.
func (dm *DataModel) Referencing(id string) []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.resolveIDs(dm.referencedBy[id])
}

// Referenced returns the entities the entity with the given id refers to.
// Dangling REFERENCE targets are skipped.
func (dm *DataModel) Referenced(id string) []any {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.resolveIDs(dm.referringTo[id])
}

// resolveIDs maps ids onto stored entities, skipping unresolved ones and
// duplicates. Must hold dm.mu for reading.
func (dm *DataModel) resolveIDs(ids []string) []any {
	models := make([]any, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if entity, ok := dm.byID[id]; ok {
			models = append(models, entity)
		}
	}
	return models
}

// Edges returns a copy of the instance graph.
func (dm *DataModel) Edges() []ReferenceInfo {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	edges := make([]ReferenceInfo, len(dm.edgeList))
	copy(edges, dm.edgeList)
	return edges
}

// Remove deletes the entity stored under id. It refuses when the entity is
// the target of an ASSOCIATION edge from a still-present entity unless
// cascade is set. Descendants that become unreferenced are cleaned up,
// except top-level entities.
func (dm *DataModel) Remove(id string, cascade bool) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if _, ok := dm.byID[id]; !ok {
		return fmt.Errorf("id %q: %w", id, ErrModelNotFound)
	}
	if !cascade {
		for _, from := range dm.referencedBy[id] {
			if _, present := dm.byID[from]; !present {
				continue
			}
			if _, ok := dm.edges[ReferenceInfo{FromID: from, ToID: id, Kind: Association}]; ok {
				return fmt.Errorf("id %q referenced by %q: %w", id, from, ErrStillReferenced)
			}
		}
	}
	dm.removeLocked(id)
	return nil
}

// removeLocked removes one entity and recursively cleans up association
// descendants that became unreferenced. Must hold dm.mu.
func (dm *DataModel) removeLocked(id string) {
	entity, ok := dm.byID[id]
	if !ok {
		return
	}
	delete(dm.byID, id)
	delete(dm.topLevel, id)
	name := simpleTypeName(entity)
	dm.byTypeName[name] = removeString(dm.byTypeName[name], id)
	if len(dm.byTypeName[name]) == 0 {
		delete(dm.byTypeName, name)
	}

	var orphanCandidates []string
	kept := dm.edgeList[:0]
	for _, edge := range dm.edgeList {
		if edge.FromID != id && edge.ToID != id {
			kept = append(kept, edge)
			continue
		}
		delete(dm.edges, edge)
		dm.referringTo[edge.FromID] = removeString(dm.referringTo[edge.FromID], edge.ToID)
		dm.referencedBy[edge.ToID] = removeString(dm.referencedBy[edge.ToID], edge.FromID)
		if edge.FromID == id && edge.Kind == Association {
			orphanCandidates = append(orphanCandidates, edge.ToID)
		}
	}
	dm.edgeList = kept

	for _, candidate := range orphanCandidates {
		if _, top := dm.topLevel[candidate]; top {
			continue
		}
		if dm.hasAssociationReferrer(candidate) {
			continue
		}
		dm.removeLocked(candidate)
	}
}

// hasAssociationReferrer reports whether a present entity still holds the
// candidate as an ASSOCIATION. Must hold dm.mu.
func (dm *DataModel) hasAssociationReferrer(id string) bool {
	for _, from := range dm.referencedBy[id] {
		if _, present := dm.byID[from]; !present {
			continue
		}
		if _, ok := dm.edges[ReferenceInfo{FromID: from, ToID: id, Kind: Association}]; ok {
			return true
		}
	}
	return false
}

// Reindex moves an entity from oldID to newID after its identifier field
// was reassigned. Edges and back-reference indices follow.
func (dm *DataModel) Reindex(oldID, newID string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	entity, ok := dm.byID[oldID]
	if !ok {
		return fmt.Errorf("id %q: %w", oldID, ErrModelNotFound)
	}
	if _, taken := dm.byID[newID]; taken {
		return fmt.Errorf("id %q: %w", newID, ErrDuplicateID)
	}
	delete(dm.byID, oldID)
	dm.byID[newID] = entity
	name := simpleTypeName(entity)
	dm.byTypeName[name] = removeString(dm.byTypeName[name], oldID)
	dm.byTypeName[name] = append(dm.byTypeName[name], newID)
	if _, top := dm.topLevel[oldID]; top {
		delete(dm.topLevel, oldID)
		dm.topLevel[newID] = struct{}{}
	}

	rewritten := make([]ReferenceInfo, 0, len(dm.edgeList))
	dm.edges = make(map[ReferenceInfo]struct{}, len(dm.edgeList))
	for _, edge := range dm.edgeList {
		if edge.FromID == oldID {
			edge.FromID = newID
		}
		if edge.ToID == oldID {
			edge.ToID = newID
		}
		if _, dup := dm.edges[edge]; dup {
			continue
		}
		dm.edges[edge] = struct{}{}
		rewritten = append(rewritten, edge)
	}
	dm.edgeList = rewritten
	dm.rebuildBackReferences()
	return nil
}

// rebuildBackReferences recomputes referencedBy and referringTo from the
// edge list. Must hold dm.mu.
func (dm *DataModel) rebuildBackReferences() {
	dm.referencedBy = make(map[string][]string)
	dm.referringTo = make(map[string][]string)
	for _, edge := range dm.edgeList {
		dm.referringTo[edge.FromID] = append(dm.referringTo[edge.FromID], edge.ToID)
		dm.referencedBy[edge.ToID] = append(dm.referencedBy[edge.ToID], edge.FromID)
	}
}

func removeString(list []string, s string) []string {
	kept := list[:0]
	for _, item := range list {
		if item != s {
			kept = append(kept, item)
		}
	}
	return kept
}

// sameEntity reports pointer identity without panicking on values of
// uncomparable types.
func sameEntity(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

func simpleTypeName(v any) string {
	t := derefType(reflect.TypeOf(v))
	return t.Name()
}
