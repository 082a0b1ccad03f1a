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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// identifierTag marks a struct field as the designated identifier of its
// type: `datamesh:"id"`.
const identifierTag = "datamesh"

// conventionalIDFields are the field names probed, in order, when no
// designated identifier field exists.
var conventionalIDFields = []string{"ID", "Id", "IDShort", "IdShort", "Identifier", "Identity"}

var (
	timeType      = reflect.TypeOf(time.Time{})
	fileType      = reflect.TypeOf(File{})
	blobType      = reflect.TypeOf(Blob{})
	referenceType = reflect.TypeOf(Reference(""))
)

// syntheticIDs maps entity pointers to their synthetic identifier so that
// IDOrSynthetic stays stable for the lifetime of a value.
var syntheticIDs sync.Map

// ID extracts the stable identifier of v. Precedence: the Identified
// interface, then the `datamesh:"id"` tag, then conventional field names.
// It returns ErrNoIdentifier when none of them yields a non-empty string.
func ID(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("nil value: %w", ErrNoIdentifier)
	}
	if identified, ok := v.(Identified); ok {
		if id := identified.GetID(); id != "" {
			return id, nil
		}
	}
	rv := derefValue(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return "", fmt.Errorf("%T: %w", v, ErrNoIdentifier)
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Tag.Get(identifierTag) != "id" {
			continue
		}
		if id := stringValue(rv.Field(i)); id != "" {
			return id, nil
		}
	}
	for _, name := range conventionalIDFields {
		fv := rv.FieldByName(name)
		if !fv.IsValid() {
			continue
		}
		if id := stringValue(fv); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%T: %w", v, ErrNoIdentifier)
}

// IDOrSynthetic extracts the identifier of v, falling back to an "id_"
// prefixed synthetic identifier that stays stable per pointer. Synthetic
// identifiers are only assigned to pointer values; other values receive a
// fresh identifier on every call.
func IDOrSynthetic(v any) string {
	if id, err := ID(v); err == nil {
		return id
	}
	if reflect.ValueOf(v).Kind() == reflect.Pointer {
		if id, ok := syntheticIDs.Load(v); ok {
			return id.(string)
		}
		id := syntheticID()
		actual, _ := syntheticIDs.LoadOrStore(v, id)
		return actual.(string)
	}
	return syntheticID()
}

func syntheticID() string {
	return "id_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsIdentifiable reports whether v is an entity the data model tracks:
// a struct (or pointer to one) that is not a primitive, timestamp, file,
// blob or plain mapping.
func IsIdentifiable(v any) bool {
	if v == nil {
		return false
	}
	rv := derefValue(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return false
	}
	return isIdentifiableType(rv.Type())
}

func isIdentifiableType(t reflect.Type) bool {
	switch t {
	case timeType, fileType, blobType:
		return false
	}
	return t.Kind() == reflect.Struct
}

// IsIdentifiableContainer reports whether v is a slice, array or map whose
// elements are all identifiable (or identifiable containers themselves).
// Empty containers are judged by their static element type.
func IsIdentifiableContainer(v any) bool {
	if v == nil {
		return false
	}
	rv := derefValue(reflect.ValueOf(v))
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return staticElemIdentifiable(rv.Type().Elem())
		}
		for i := 0; i < rv.Len(); i++ {
			if !elementIdentifiable(rv.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if rv.Len() == 0 {
			return staticElemIdentifiable(rv.Type().Elem())
		}
		iter := rv.MapRange()
		for iter.Next() {
			if !elementIdentifiable(iter.Value()) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func elementIdentifiable(rv reflect.Value) bool {
	if !rv.IsValid() || !rv.CanInterface() {
		return false
	}
	elem := rv.Interface()
	return IsIdentifiable(elem) || IsIdentifiableContainer(elem)
}

func staticElemIdentifiable(t reflect.Type) bool {
	t = derefType(t)
	return t.Kind() == reflect.Struct && isIdentifiableType(t)
}

// derefValue unwraps pointers and interfaces until a concrete value remains.
func derefValue(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

// derefType unwraps pointer types.
func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// stringValue coerces a field value to its identifier string form. Empty
// strings and zero values coerce to "".
func stringValue(rv reflect.Value) string {
	rv = derefValue(rv)
	if !rv.IsValid() {
		return ""
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.IsZero() {
			return ""
		}
		return fmt.Sprint(rv.Interface())
	default:
		return ""
	}
}
