//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
	"trpc.group/trpc-go/trpc-datamesh-go/workflow"
)

func TestStatusOf(t *testing.T) {
	badRequest := []error{
		datamodel.ErrDuplicateID,
		datamodel.ErrModelNotFound,
		datamodel.ErrFieldNotFound,
		datamodel.ErrNoIdentifier,
		datamodel.ErrStillReferenced,
		persistence.ErrKeyNotFound,
		persistence.ErrNothingPersisted,
		transform.ErrMapping,
		syncengine.ErrNotProvider,
		syncengine.ErrNotConsumer,
		syncengine.ErrPeerCapExceeded,
		workflow.ErrAlreadyRunning,
		workflow.ErrNotRunning,
		workflow.ErrNotFound,
	}
	for _, err := range badRequest {
		assert.Equal(t, http.StatusBadRequest, StatusOf(err), err.Error())
		// Wrapped errors map the same way.
		assert.Equal(t, http.StatusBadRequest, StatusOf(fmt.Errorf("op: %w", err)))
	}

	assert.Equal(t, http.StatusInternalServerError, StatusOf(connector.ErrConnection))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("unexpected")))
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("entity %q: %w", "m1", datamodel.ErrDuplicateID))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"detail"`)
	assert.Contains(t, w.Body.String(), "m1")
}

func TestWriteMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMessage(w, "done")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "done"}`, w.Body.String())
}

func TestRouterAppliesCORS(t *testing.T) {
	s := New(":0")
	s.Router().HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		WriteMessage(w, "pong")
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
