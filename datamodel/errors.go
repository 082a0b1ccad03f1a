//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package datamodel

import "errors"

var (
	// ErrNoIdentifier reports that a value does not yield an identifier.
	ErrNoIdentifier = errors.New("value yields no identifier")
	// ErrDuplicateID reports two ingested values sharing an identifier while
	// differing by equality.
	ErrDuplicateID = errors.New("duplicate id with conflicting values")
	// ErrModelNotFound reports a lookup for an unknown entity id.
	ErrModelNotFound = errors.New("model not found")
	// ErrStillReferenced reports a removal refused because the entity is the
	// target of an ASSOCIATION edge from a still-present entity.
	ErrStillReferenced = errors.New("model is still referenced")
	// ErrDuplicateTypeName reports two distinct types sharing a simple name
	// inside one data model.
	ErrDuplicateTypeName = errors.New("duplicate simple type name")
	// ErrTypeNotFound reports a lookup for an unregistered type name.
	ErrTypeNotFound = errors.New("type not found")
	// ErrFieldNotFound reports a field access on an entity that has no such
	// field.
	ErrFieldNotFound = errors.New("field not found")
	// ErrNotIdentifiable reports that a value passed as an entity is not
	// identifiable.
	ErrNotIdentifiable = errors.New("value is not identifiable")
)
