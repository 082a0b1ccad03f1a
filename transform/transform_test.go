//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package transform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	formatter := JSON{}
	domain := map[string]any{"id": "m1", "value": 7.5}

	data, err := formatter.Serialize(domain)
	require.NoError(t, err)
	back, err := formatter.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, domain, back)
}

func TestJSONDeserializeError(t *testing.T) {
	_, err := JSON{}.Deserialize([]byte("{not json"))
	require.ErrorIs(t, err, ErrMapping)
}

func TestToPersistenceDeserializesThenMaps(t *testing.T) {
	double := MapperFunc(func(v any) (any, error) {
		m := v.(map[string]any)
		m["value"] = m["value"].(float64) * 2
		return m, nil
	})

	out, err := ToPersistence([]byte(`{"value": 2}`), double, JSON{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": 4.0}, out)
}

func TestFromPersistenceMapsThenSerializes(t *testing.T) {
	rename := MapperFunc(func(v any) (any, error) {
		return map[string]any{"renamed": v}, nil
	})

	out, err := FromPersistence("x", rename, JSON{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"renamed": "x"}`, string(out.([]byte)))
}

func TestOptionalSteps(t *testing.T) {
	out, err := ToPersistence(42, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	out, err = FromPersistence(42, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	// Non-wire values pass the formatter untouched on the way in.
	out, err = ToPersistence(map[string]any{"id": "m1"}, nil, JSON{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "m1"}, out)
}

func TestMapperFailureWrapped(t *testing.T) {
	failing := MapperFunc(func(any) (any, error) {
		return nil, fmt.Errorf("schema mismatch")
	})

	_, err := ToPersistence("x", failing, nil)
	require.ErrorIs(t, err, ErrMapping)

	_, err = FromPersistence("x", failing, nil)
	assert.True(t, errors.Is(err, ErrMapping))
}
