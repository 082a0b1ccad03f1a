//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
)

const sample = `
dataModelName: test
aasHost: aas-env
aasPort: 8081
submodelHost: submodel-env
submodelPort: 8082
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "test", c.DataModelName)
	assert.Equal(t, "http://aas-env:8081", c.AASBaseURL())
	assert.Equal(t, "http://submodel-env:8082", c.SubmodelBaseURL())
}

func TestParseRequiresDataModelName(t *testing.T) {
	_, err := Parse([]byte(`aasHost: aas-env`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataModelName")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte(`dataModelName: [`))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.DataModelName)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

type trackedSubmodel struct {
	IDShort string `json:"id_short"`
}

func TestApplyRegistersFactory(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	registry := persistence.New(syncengine.New())
	c.Apply(registry)

	// The factory covers the whole configured data model, so registering a
	// connection without an explicit factory succeeds.
	info := connection.ForModel("test", "sm-1").
		WithModelType(reflect.TypeOf(&trackedSubmodel{}))
	require.NoError(t, registry.Add(context.Background(), info, nil, nil))
	_, err = registry.Connection(info)
	require.NoError(t, err)

	// Other data models stay uncovered.
	err = registry.Add(context.Background(), connection.ForModel("other", "x"), nil, nil)
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)
}
