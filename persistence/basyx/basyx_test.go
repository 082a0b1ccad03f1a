//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package basyx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
)

func encodedID(id string) string {
	return base64.URLEncoding.EncodeToString([]byte(id))
}

func TestProvideGetsEncodedResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shells/"+encodedID("aas-1"), r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "aas-1"})
	}))
	defer srv.Close()

	conn := New(srv.URL, RepositoryShells, "aas-1")
	value, err := conn.Provide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "aas-1"}, value)
}

func TestProvideNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	conn := New(srv.URL, RepositoryShells, "missing", WithBackoffInterval(time.Millisecond))
	_, err := conn.Provide(context.Background())
	require.ErrorIs(t, err, connector.ErrConnection)
}

func TestConsumePutFallsBackToPost(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	conn := New(srv.URL, RepositorySubmodels, "sm-1")
	require.NoError(t, conn.Consume(context.Background(), map[string]any{"id": "sm-1"}))
	assert.Equal(t, []string{
		"PUT /submodels/" + encodedID("sm-1"),
		"POST /submodels",
	}, methods)
}

func TestConsumeNilDeletes(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	conn := New(srv.URL, RepositoryShells, "aas-1")
	require.NoError(t, conn.Consume(context.Background(), nil))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

type exampleSubmodel struct {
	IDShort string `json:"id_short"`
}

type validAAS struct {
	ID string `json:"id"`
}

func TestFactoryRoutesByTypeName(t *testing.T) {
	factory := Factory("http://aas:8081", "http://submodels:8082")

	conn, err := factory(connection.ForModel("test", "sm-1").
		WithModelType(reflect.TypeOf(&exampleSubmodel{})))
	require.NoError(t, err)
	assert.Equal(t, RepositorySubmodels, conn.(*Connector).repository)
	assert.Equal(t, "http://submodels:8082", conn.(*Connector).baseURL)

	conn, err = factory(connection.ForModel("test", "aas-1").
		WithModelType(reflect.TypeOf(&validAAS{})))
	require.NoError(t, err)
	assert.Equal(t, RepositoryShells, conn.(*Connector).repository)

	_, err = factory(connection.ForDataModel("test"))
	require.Error(t, err)
}
