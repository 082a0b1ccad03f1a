//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package httpconn

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-datamesh-go/connector"
)

func TestProvide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"value": 7.5})
	}))
	defer srv.Close()

	conn := New(srv.URL, WithHeader("Authorization", "token"))
	value, err := conn.Provide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": 7.5}, value)
}

func TestConsumePut(t *testing.T) {
	var gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	conn := New(srv.URL)
	require.NoError(t, conn.Consume(context.Background(), map[string]any{"value": 8.0}))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.JSONEq(t, `{"value": 8}`, string(gotBody))
}

func TestConsumeNilDeletes(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	conn := New(srv.URL)
	require.NoError(t, conn.Consume(context.Background(), nil))
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestTransientFailuresRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode("ok")
	}))
	defer srv.Close()

	conn := New(srv.URL, WithRetries(5), WithBackoffInterval(time.Millisecond))
	value, err := conn.Provide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	conn := New(srv.URL, WithRetries(5), WithBackoffInterval(time.Millisecond))
	_, err := conn.Provide(context.Background())
	require.ErrorIs(t, err, connector.ErrConnection)
	assert.Equal(t, int32(1), calls.Load())
}
