//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package connection defines the immutable addressing tuple that binds
// connectors to a data model, an entity, a contained entity or a single
// field.
package connection

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind is the derived granularity of an Info.
type Kind string

// Connection kinds, most general first.
const (
	KindDataModel      Kind = "data_model"
	KindModel          Kind = "model"
	KindContainedModel Kind = "contained_model"
	KindField          Kind = "field"
)

// Info addresses a node or sub-node under a data model. The optional model
// type hint is excluded from equality and keys.
type Info struct {
	DataModel        string `json:"data_model"`
	ModelID          string `json:"model_id,omitempty"`
	ContainedModelID string `json:"contained_model_id,omitempty"`
	FieldID          string `json:"field_id,omitempty"`

	modelType reflect.Type
}

// New creates an Info. Empty segments narrow the granularity: only the
// data model name is required.
func New(dataModel, modelID, containedModelID, fieldID string) Info {
	return Info{
		DataModel:        dataModel,
		ModelID:          modelID,
		ContainedModelID: containedModelID,
		FieldID:          fieldID,
	}
}

// ForDataModel addresses a whole data model.
func ForDataModel(dataModel string) Info {
	return Info{DataModel: dataModel}
}

// ForModel addresses one top-level entity.
func ForModel(dataModel, modelID string) Info {
	return Info{DataModel: dataModel, ModelID: modelID}
}

// WithModelType attaches a model type hint. The hint does not participate
// in equality.
func (i Info) WithModelType(t reflect.Type) Info {
	i.modelType = t
	return i
}

// ModelType returns the attached model type hint, if any.
func (i Info) ModelType() reflect.Type {
	return i.modelType
}

// Kind derives the granularity of the tuple from its most specific set
// segment.
func (i Info) Kind() Kind {
	switch {
	case i.FieldID != "":
		return KindField
	case i.ContainedModelID != "":
		return KindContainedModel
	case i.ModelID != "":
		return KindModel
	default:
		return KindDataModel
	}
}

// Key is the comparable identity of an Info, hint excluded.
type Key struct {
	DataModel        string
	ModelID          string
	ContainedModelID string
	FieldID          string
}

// Key returns the comparable identity of the tuple.
func (i Info) Key() Key {
	return Key{
		DataModel:        i.DataModel,
		ModelID:          i.ModelID,
		ContainedModelID: i.ContainedModelID,
		FieldID:          i.FieldID,
	}
}

// Equal reports tuple equality, type hints ignored.
func (i Info) Equal(other Info) bool {
	return i.Key() == other.Key()
}

// Parents returns the fallback chain from the next-less-specific tuple down
// to the data model level. A data-model tuple has no parents.
func (i Info) Parents() []Info {
	var parents []Info
	current := i
	for {
		switch current.Kind() {
		case KindField:
			current.FieldID = ""
		case KindContainedModel:
			current.ContainedModelID = ""
		case KindModel:
			current.ModelID = ""
		default:
			return parents
		}
		parents = append(parents, current)
	}
}

// String renders the tuple for logs and error messages.
func (i Info) String() string {
	segments := []string{i.DataModel}
	if i.ModelID != "" {
		segments = append(segments, i.ModelID)
	}
	if i.ContainedModelID != "" {
		segments = append(segments, i.ContainedModelID)
	}
	if i.FieldID != "" {
		segments = append(segments, i.FieldID)
	}
	return fmt.Sprintf("connection(%s)", strings.Join(segments, "/"))
}
