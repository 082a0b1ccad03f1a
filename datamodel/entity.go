//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package datamodel provides the typed entity model of trpc-datamesh-go: it
// extracts stable identifiers from heterogeneous values, discovers every
// identifiable entity inside a tree of user-defined types, records the
// references between them and answers reachability queries over the result.
package datamodel

// Reference is a string that holds the identifier of another entity. Fields
// declared with this type always produce REFERENCE edges regardless of their
// name.
type Reference string

// File is a handle to externally stored content. Files are never
// identifiable; routers expose their content through dedicated raw routes.
type File struct {
	Path      string `json:"path"`
	MediaType string `json:"media_type"`
}

// Blob carries inline binary content. Blob content is stripped from JSON
// responses of parent endpoints and only served through raw routes.
type Blob struct {
	Content   []byte `json:"content,omitempty"`
	MediaType string `json:"media_type"`
}

// Identified is implemented by entities that manage their own identifier.
// It takes precedence over tag- and name-based identifier discovery.
type Identified interface {
	GetID() string
}
