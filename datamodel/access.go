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
	"encoding/json"
	"fmt"
	"reflect"
)

// FindContained locates the identifiable entity with the given id inside
// root, root included.
func FindContained(root any, id string) (any, bool) {
	rootID := IDOrSynthetic(root)
	if rootID == id {
		return root, true
	}
	ids, contained, _ := NewFinder().FindFrom(rootID, root)
	for i, entity := range contained {
		if ids[i] == id {
			return entity, true
		}
	}
	return nil, false
}

// ReplaceContained replaces the nested identifiable entity with the given
// id by newValue, rewriting every field of every entity under root that
// pointed at the old instance so that sharing is preserved.
func ReplaceContained(root any, id string, newValue any) error {
	old, ok := FindContained(root, id)
	if !ok {
		return fmt.Errorf("id %q: %w", id, ErrModelNotFound)
	}
	if sameEntity(old, newValue) {
		return nil
	}
	rv := derefValue(reflect.ValueOf(root))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return fmt.Errorf("%T: %w", root, ErrNotIdentifiable)
	}
	replaceEverywhere(rv, old, newValue, make(map[any]struct{}))
	return nil
}

// replaceEverywhere rewrites occurrences of old with newValue in rv and in
// every identifiable entity reachable from it. Both pointer fields and
// by-value struct fields carrying the same id are rewritten.
func replaceEverywhere(rv reflect.Value, old, newValue any, visited map[any]struct{}) {
	oldID := IDOrSynthetic(old)
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		if !field.CanInterface() {
			continue
		}
		switch field.Kind() {
		case reflect.Pointer:
			if field.IsNil() {
				continue
			}
			if sameEntity(field.Interface(), old) {
				assignValue(field, newValue)
				continue
			}
			elem := field.Elem()
			if elem.Kind() == reflect.Struct && isIdentifiableType(elem.Type()) {
				key := field.Interface()
				if _, seen := visited[key]; seen {
					continue
				}
				visited[key] = struct{}{}
				replaceEverywhere(elem, old, newValue, visited)
			}
		case reflect.Struct:
			if !isIdentifiableType(field.Type()) {
				continue
			}
			if field.CanAddr() && IDOrSynthetic(field.Addr().Interface()) == oldID {
				assignValue(field, newValue)
				continue
			}
			replaceEverywhere(field, old, newValue, visited)
		case reflect.Slice, reflect.Array:
			for j := 0; j < field.Len(); j++ {
				item := field.Index(j)
				switch item.Kind() {
				case reflect.Pointer:
					if !item.IsNil() && sameEntity(item.Interface(), old) {
						assignValue(item, newValue)
					} else if !item.IsNil() && item.Elem().Kind() == reflect.Struct &&
						isIdentifiableType(item.Elem().Type()) {
						key := item.Interface()
						if _, seen := visited[key]; seen {
							continue
						}
						visited[key] = struct{}{}
						replaceEverywhere(item.Elem(), old, newValue, visited)
					}
				case reflect.Struct:
					if !isIdentifiableType(item.Type()) {
						continue
					}
					if item.CanAddr() && IDOrSynthetic(item.Addr().Interface()) == oldID {
						assignValue(item, newValue)
					} else {
						replaceEverywhere(item, old, newValue, visited)
					}
				}
			}
		}
	}
}

// assignValue sets target to v, adapting between pointer and value forms.
func assignValue(target reflect.Value, v any) {
	if !target.CanSet() {
		return
	}
	vv := reflect.ValueOf(v)
	switch {
	case vv.Type().AssignableTo(target.Type()):
		target.Set(vv)
	case vv.Kind() == reflect.Pointer && vv.Elem().Type().AssignableTo(target.Type()):
		target.Set(vv.Elem())
	case target.Kind() == reflect.Pointer && vv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(vv)
		target.Set(p)
	}
}

// fieldByName resolves fieldName against the exported Go field names of rv
// and, failing that, against their json tag names.
func fieldByName(rv reflect.Value, fieldName string) reflect.Value {
	if fv := rv.FieldByName(fieldName); fv.IsValid() {
		return fv
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if jsonFieldName(field) == fieldName {
			return rv.Field(i)
		}
	}
	return reflect.Value{}
}

// GetField returns the value of the named exported field of entity. The
// field may be addressed by its Go name or its json name.
func GetField(entity any, fieldName string) (any, error) {
	rv := derefValue(reflect.ValueOf(entity))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T: %w", entity, ErrNotIdentifiable)
	}
	fv := fieldByName(rv, fieldName)
	if !fv.IsValid() {
		return nil, fmt.Errorf("field %q on %s: %w", fieldName, rv.Type().Name(), ErrFieldNotFound)
	}
	return fv.Interface(), nil
}

// SetField sets the named exported field of entity, addressed by its Go
// name or its json name. JSON-decoded values (float64 numbers,
// map[string]any objects) are coerced onto the declared field type.
func SetField(entity any, fieldName string, value any) error {
	rv := derefValue(reflect.ValueOf(entity))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return fmt.Errorf("%T: %w", entity, ErrNotIdentifiable)
	}
	fv := fieldByName(rv, fieldName)
	if !fv.IsValid() {
		return fmt.Errorf("field %q on %s: %w", fieldName, rv.Type().Name(), ErrFieldNotFound)
	}
	if !fv.CanSet() {
		return fmt.Errorf("field %q on %s is not settable: %w", fieldName, rv.Type().Name(), ErrFieldNotFound)
	}
	return setCoerced(fv, value)
}

// setCoerced assigns value to fv, converting where the types allow it and
// falling back to a JSON round-trip for structured values.
func setCoerced(fv reflect.Value, value any) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(fv.Type()) {
		fv.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(fv.Type()) && convertible(vv.Kind(), fv.Kind()) {
		fv.Set(vv.Convert(fv.Type()))
		return nil
	}
	if fv.Kind() == reflect.Pointer {
		p := reflect.New(fv.Type().Elem())
		if err := setCoerced(p.Elem(), value); err != nil {
			return err
		}
		fv.Set(p)
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("field value %T: %w", value, err)
	}
	p := reflect.New(fv.Type())
	if err := json.Unmarshal(raw, p.Interface()); err != nil {
		return fmt.Errorf("field value %T does not fit %s: %w", value, fv.Type(), err)
	}
	fv.Set(p.Elem())
	return nil
}

// convertible restricts reflect conversions to the numeric and string
// families so that e.g. int does not silently convert to string.
func convertible(from, to reflect.Kind) bool {
	return numericKind(from) && numericKind(to) ||
		from == reflect.String && to == reflect.String
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// FieldInfo describes one exported field of an entity type as seen by the
// API generators.
type FieldInfo struct {
	Name         string
	JSONName     string
	Type         reflect.Type
	Optional     bool
	Container    bool
	Identifiable bool
}

// Fields lists the exported fields of an entity type. Pointer and
// interface fields are optional; slice, array and map fields are
// containers; the Identifiable flag reports whether the flattened field
// type is an identifiable struct. Interface fields keep their interface
// type; generators resolve them to concrete variants against the data
// model's registered implementations.
func Fields(t reflect.Type) []FieldInfo {
	t = derefType(t)
	if t.Kind() != reflect.Struct {
		return nil
	}
	var fields []FieldInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		ft := field.Type
		info := FieldInfo{
			Name:     field.Name,
			JSONName: jsonFieldName(field),
			Optional: ft.Kind() == reflect.Pointer || ft.Kind() == reflect.Interface,
		}
		ft = derefType(ft)
		switch ft.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			info.Container = true
			elem := derefType(ft.Elem())
			info.Type = elem
			info.Identifiable = elem.Kind() == reflect.Struct && isIdentifiableType(elem)
		default:
			info.Type = ft
			info.Identifiable = ft.Kind() == reflect.Struct && isIdentifiableType(ft)
		}
		fields = append(fields, info)
	}
	return fields
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			if i == 0 {
				return field.Name
			}
			return tag[:i]
		}
	}
	return tag
}

// ContentPath is a field path from an entity type to a File or Blob field.
type ContentPath struct {
	Segments []string
	IsBlob   bool
}

// ContentPaths returns every path through t that reaches a File or Blob
// field, including paths through nested identifiable structs and
// containers.
func ContentPaths(t reflect.Type) []ContentPath {
	return contentPaths(derefType(t), nil, make(map[reflect.Type]struct{}))
}

func contentPaths(t reflect.Type, prefix []string, visited map[reflect.Type]struct{}) []ContentPath {
	if t.Kind() != reflect.Struct {
		return nil
	}
	if _, seen := visited[t]; seen {
		return nil
	}
	visited[t] = struct{}{}
	defer delete(visited, t)

	var paths []ContentPath
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		ft := derefType(field.Type)
		for ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array || ft.Kind() == reflect.Map {
			ft = derefType(ft.Elem())
		}
		segments := append(append([]string{}, prefix...), field.Name)
		switch ft {
		case fileType:
			paths = append(paths, ContentPath{Segments: segments})
		case blobType:
			paths = append(paths, ContentPath{Segments: segments, IsBlob: true})
		default:
			if ft.Kind() == reflect.Struct && isIdentifiableType(ft) {
				paths = append(paths, contentPaths(ft, segments, visited)...)
			}
		}
	}
	return paths
}

// Navigate walks the named field segments from root and returns the value
// at the end of the path. Containers cannot be traversed by name.
func Navigate(root any, segments []string) (any, error) {
	current := root
	for _, segment := range segments {
		value, err := GetField(current, segment)
		if err != nil {
			return nil, err
		}
		current = value
	}
	return current, nil
}

// StripBlobContent returns a JSON-shaped copy of v (maps and slices) with
// every Blob content removed, bounding response payload size.
func StripBlobContent(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var shaped any
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return nil, err
	}
	stripBlobNodes(shaped)
	return shaped, nil
}

// stripBlobNodes removes "content" keys from objects that look like
// serialized blobs: a media_type next to a content payload.
func stripBlobNodes(v any) {
	switch node := v.(type) {
	case map[string]any:
		if _, hasMedia := node["media_type"]; hasMedia {
			delete(node, "content")
		}
		for _, child := range node {
			stripBlobNodes(child)
		}
	case []any:
		for _, child := range node {
			stripBlobNodes(child)
		}
	}
}
