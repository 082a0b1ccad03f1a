//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	connmem "trpc.group/trpc-go/trpc-datamesh-go/connector/inmemory"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	persistmem "trpc.group/trpc-go/trpc-datamesh-go/persistence/inmemory"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/workflow"
)

type gauge struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
}

func newMiddleware(t *testing.T) *Middleware {
	t.Helper()
	m := New(WithPersistenceOptions(
		persistence.WithDefaultFactory(persistmem.Factory())))
	dm, err := datamodel.FromModels(&gauge{ID: "g1", Value: 5})
	require.NoError(t, err)
	require.NoError(t, m.LoadDataModel(context.Background(), "test", dm, true))
	return m
}

func do(m *Middleware, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	m.Server().Handler().ServeHTTP(w, req)
	return w
}

func TestLoadDataModelPersistsInstances(t *testing.T) {
	m := newMiddleware(t)

	conn, err := m.Registry().Connection(connection.ForModel("test", "g1"))
	require.NoError(t, err)
	value, err := conn.Provide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, value.(*gauge).Value)

	_, err = m.DataModel("unknown")
	require.ErrorIs(t, err, ErrDataModelNotFound)
}

func TestAddConnectorRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	m := newMiddleware(t)

	require.NoError(t, m.AddConnector(ctx, "sensor", connmem.New(), nil, nil))
	err := m.AddConnector(ctx, "sensor", connmem.New(), nil, nil)
	require.ErrorIs(t, err, ErrDuplicateConnector)
}

func TestSyncConnectorRequiresRegistration(t *testing.T) {
	err := newMiddleware(t).SyncConnector(context.Background(), "ghost",
		connection.ForModel("test", "g1"))
	require.ErrorIs(t, err, ErrConnectorNotFound)
}

func TestConnectorEndpoints(t *testing.T) {
	ctx := context.Background()
	m := newMiddleware(t)
	m.GenerateConnectorEndpoints()

	external := connmem.New(connmem.WithValue(7.5))
	info := connection.New("test", "g1", "", "value")
	require.NoError(t, m.AddConnector(ctx, "temperature", external, reflect.TypeOf(0.0), &info))
	require.NoError(t, m.SyncConnector(ctx, "temperature", info,
		syncengine.WithRole(syncengine.RoleGroundTruth)))

	// Reading a ground-truth connector pushes its value into persistence.
	w := do(m, http.MethodGet, "/connectors/temperature/value", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `7.5`, w.Body.String())

	conn, err := m.Registry().Connection(connection.ForModel("test", "g1"))
	require.NoError(t, err)
	entity, err := conn.Provide(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.5, entity.(*gauge).Value)

	w = do(m, http.MethodGet, "/connectors/temperature/description", "")
	require.Equal(t, http.StatusOK, w.Code)
	var description ConnectorDescription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &description))
	assert.Equal(t, "temperature", description.ConnectorID)
	assert.Equal(t, string(syncengine.RoleGroundTruth), description.SyncRole)
	assert.Equal(t, string(syncengine.DirectionBidirectional), description.SyncDirection)

	// Writing through the endpoint updates persistence too.
	w = do(m, http.MethodPost, "/connectors/temperature/value", `8.5`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "value consumed")
	assert.Equal(t, 8.5, entity.(*gauge).Value)

	// A null body refreshes the connector from persistence.
	w = do(m, http.MethodPost, "/connectors/temperature/value", `null`)
	require.Equal(t, http.StatusOK, w.Code)
	value, err := external.Provide(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8.5, value)

	w = do(m, http.MethodGet, "/connectors/unknown/value", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnectorWriteValidation(t *testing.T) {
	ctx := context.Background()
	m := newMiddleware(t)
	m.GenerateConnectorEndpoints()

	external := connmem.New()
	info := connection.New("test", "g1", "", "value")
	require.NoError(t, m.AddConnector(ctx, "exporter", external, reflect.TypeOf(0.0), &info))
	require.NoError(t, m.SyncConnector(ctx, "exporter", info,
		syncengine.WithRole(syncengine.RoleWriteOnly),
		syncengine.WithDirection(syncengine.DirectionToPersistence)))

	// The body must fit the declared model type.
	w := do(m, http.MethodPost, "/connectors/exporter/value", `"not a number"`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// A null body cannot be resolved without a read direction.
	w = do(m, http.MethodPost, "/connectors/exporter/value", `null`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowEndpoints(t *testing.T) {
	m := newMiddleware(t)
	m.GenerateWorkflowEndpoints()

	double, err := workflow.New("double", func(_ context.Context, in map[string]any) (map[string]any, error) {
		out := map[string]any{}
		for key, value := range in {
			out[key] = value.(float64) * 2
		}
		return out, nil
	})
	require.NoError(t, err)
	require.NoError(t, m.RegisterWorkflow(double))

	w := do(m, http.MethodPost, "/workflows/double/execute", `{"x": 2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"x": 4}`, w.Body.String())

	w = do(m, http.MethodGet, "/workflows/double/description", "")
	require.Equal(t, http.StatusOK, w.Code)
	var description workflow.Description
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &description))
	assert.Equal(t, "double", description.Name)

	w = do(m, http.MethodPost, "/workflows/missing/execute", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Interrupting an idle workflow is a client error.
	w = do(m, http.MethodGet, "/workflows/double/interrupt", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowEndpointRejectsConcurrentRun(t *testing.T) {
	m := newMiddleware(t)
	m.GenerateWorkflowEndpoints()

	release := make(chan struct{})
	var once sync.Once
	slow, err := workflow.New("slow", func(ctx context.Context, _ map[string]any) (string, error) {
		<-release
		return "done", nil
	})
	require.NoError(t, err)
	require.NoError(t, m.RegisterWorkflow(slow))
	defer once.Do(func() { close(release) })

	w := do(m, http.MethodPost, "/workflows/slow/execute_background", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	// The default mode admits a single execution at a time.
	require.Eventually(t, func() bool {
		return slow.Describe().Running
	}, time.Second, 5*time.Millisecond)
	w = do(m, http.MethodPost, "/workflows/slow/execute_background", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	once.Do(func() { close(release) })
}

func TestIntervalWorkflowOverHTTP(t *testing.T) {
	m := newMiddleware(t)
	m.GenerateWorkflowEndpoints()

	var mu sync.Mutex
	runs := 0
	tick, err := workflow.New("tick", func(_ context.Context, _ map[string]any) (string, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return "ok", nil
	}, workflow.WithInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, m.RegisterWorkflow(tick))

	w := do(m, http.MethodPost, "/workflows/tick/execute", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "started interval execution")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, time.Second, 5*time.Millisecond)

	w = do(m, http.MethodGet, "/workflows/tick/interrupt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `interrupted workflow \"tick\"`)
}

func TestShutdownDisconnectsConnectors(t *testing.T) {
	ctx := context.Background()
	m := newMiddleware(t)

	external := connmem.New()
	require.NoError(t, external.Connect(ctx))
	require.NoError(t, m.AddConnector(ctx, "sensor", external, nil, nil))

	stream, err := external.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(ctx))

	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("connector was not disconnected")
	}
}
