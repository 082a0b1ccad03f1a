//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package syncengine

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
)

// writeThrough writes value into the persisted object at the granularity of
// info: whole-object replace, nested identifiable replace, field set, or
// field set on a nested identifiable. Granularities below the whole object
// read-modify-write the persisted value.
func writeThrough(ctx context.Context, raw any, info connection.Info, value any) error {
	consumer, ok := raw.(connector.Consumer)
	if !ok {
		return fmt.Errorf("%s: %w", info, ErrNotConsumer)
	}
	if info.Kind() == connection.KindModel || info.Kind() == connection.KindDataModel {
		return consumer.Consume(ctx, value)
	}
	provider, ok := raw.(connector.Provider)
	if !ok {
		return fmt.Errorf("%s: %w", info, ErrNotProvider)
	}
	obj, err := provider.Provide(ctx)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("%s: %w", info, datamodel.ErrModelNotFound)
	}
	switch info.Kind() {
	case connection.KindContainedModel:
		if err := setNested(obj, info.ContainedModelID, info.FieldID, value); err != nil {
			return err
		}
	case connection.KindField:
		if info.ContainedModelID != "" {
			if err := setNested(obj, info.ContainedModelID, info.FieldID, value); err != nil {
				return err
			}
		} else if err := setField(obj, info.FieldID, value); err != nil {
			return err
		}
	}
	return consumer.Consume(ctx, obj)
}

// setNested replaces the nested identifiable with containedID inside obj,
// or one of its fields when fieldID is set.
func setNested(obj any, containedID, fieldID string, value any) error {
	if m, ok := obj.(map[string]any); ok {
		nested, found := findNestedMap(m, containedID)
		if !found {
			return fmt.Errorf("contained id %q: %w", containedID, datamodel.ErrModelNotFound)
		}
		if fieldID == "" {
			replacement, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("cannot replace %q with %T: %w", containedID, value, datamodel.ErrNotIdentifiable)
			}
			for key := range nested {
				delete(nested, key)
			}
			for key, v := range replacement {
				nested[key] = v
			}
			return nil
		}
		nested[mapFieldKey(nested, fieldID)] = value
		return nil
	}
	if fieldID == "" {
		return datamodel.ReplaceContained(obj, containedID, value)
	}
	nested, found := datamodel.FindContained(obj, containedID)
	if !found {
		return fmt.Errorf("contained id %q: %w", containedID, datamodel.ErrModelNotFound)
	}
	return datamodel.SetField(nested, fieldID, value)
}

func setField(obj any, fieldID string, value any) error {
	if m, ok := obj.(map[string]any); ok {
		m[mapFieldKey(m, fieldID)] = value
		return nil
	}
	return datamodel.SetField(obj, fieldID, value)
}

// extract pulls the part of obj addressed by info.
func extract(obj any, info connection.Info) (any, error) {
	if obj == nil {
		return nil, nil
	}
	target := obj
	if info.ContainedModelID != "" {
		if m, ok := obj.(map[string]any); ok {
			nested, found := findNestedMap(m, info.ContainedModelID)
			if !found {
				return nil, fmt.Errorf("contained id %q: %w", info.ContainedModelID, datamodel.ErrModelNotFound)
			}
			target = nested
		} else {
			nested, found := datamodel.FindContained(obj, info.ContainedModelID)
			if !found {
				return nil, fmt.Errorf("contained id %q: %w", info.ContainedModelID, datamodel.ErrModelNotFound)
			}
			target = nested
		}
	}
	if info.FieldID == "" {
		return target, nil
	}
	if m, ok := target.(map[string]any); ok {
		return m[mapFieldKey(m, info.FieldID)], nil
	}
	return datamodel.GetField(target, info.FieldID)
}

// findNestedMap locates the object carrying id inside a JSON-shaped value.
func findNestedMap(node map[string]any, id string) (map[string]any, bool) {
	for _, key := range []string{"id", "id_short"} {
		if node[key] == id {
			return node, true
		}
	}
	for _, child := range node {
		if found, ok := findNestedAny(child, id); ok {
			return found, true
		}
	}
	return nil, false
}

func findNestedAny(node any, id string) (map[string]any, bool) {
	switch child := node.(type) {
	case map[string]any:
		return findNestedMap(child, id)
	case []any:
		for _, item := range child {
			if found, ok := findNestedAny(item, id); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// mapFieldKey resolves a field id onto the key actually present in a
// JSON-shaped object, tolerating snake_case keys for Go field names.
func mapFieldKey(m map[string]any, fieldID string) string {
	if _, ok := m[fieldID]; ok {
		return fieldID
	}
	snake := toSnake(fieldID)
	if _, ok := m[snake]; ok {
		return snake
	}
	return fieldID
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && name[i-1] >= 'a' && name[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
