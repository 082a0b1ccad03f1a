//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package transform provides the value transformations applied between
// external connectors and persistence: schema mappers and wire formatters.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMapping reports a failed schema mapping or wire (de)serialization.
var ErrMapping = errors.New("mapping error")

// Mapper is a pure transformation between two schemas.
type Mapper interface {
	Map(v any) (any, error)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(v any) (any, error)

// Map calls the wrapped function.
func (f MapperFunc) Map(v any) (any, error) { return f(v) }

// Formatter is a wire (de)serializer between domain values and bytes.
// Implementations must round-trip on supported inputs.
type Formatter interface {
	Serialize(domain any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// JSON is the default Formatter, backed by encoding/json.
type JSON struct{}

// Serialize marshals the domain value to JSON.
func (JSON) Serialize(domain any) ([]byte, error) {
	data, err := json.Marshal(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	return data, nil
}

// Deserialize unmarshals JSON into a generic value.
func (JSON) Deserialize(data []byte) (any, error) {
	var domain any
	if err := json.Unmarshal(data, &domain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	return domain, nil
}

// ToPersistence shapes an external value for persistence: the formatter
// deserializes wire payloads first, then the external mapper translates the
// schema. Both steps are optional.
func ToPersistence(v any, external Mapper, formatter Formatter) (any, error) {
	if formatter != nil {
		if data, ok := wireBytes(v); ok {
			deserialized, err := formatter.Deserialize(data)
			if err != nil {
				return nil, err
			}
			v = deserialized
		}
	}
	if external == nil {
		return v, nil
	}
	mapped, err := external.Map(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	return mapped, nil
}

// FromPersistence shapes a persisted value for an external connector: the
// persistence mapper translates the schema first, then the formatter
// serializes to the wire. Both steps are optional.
func FromPersistence(v any, persistence Mapper, formatter Formatter) (any, error) {
	if persistence != nil {
		mapped, err := persistence.Map(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMapping, err)
		}
		v = mapped
	}
	if formatter == nil {
		return v, nil
	}
	data, err := formatter.Serialize(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// wireBytes extracts a raw payload from wire-shaped values.
func wireBytes(v any) ([]byte, bool) {
	switch data := v.(type) {
	case []byte:
		return data, true
	case json.RawMessage:
		return data, true
	case string:
		return []byte(data), true
	default:
		return nil, false
	}
}
