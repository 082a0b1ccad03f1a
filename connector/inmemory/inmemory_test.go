//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideConsume(t *testing.T) {
	ctx := context.Background()
	conn := New(WithValue(7.5))

	value, err := conn.Provide(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7.5, value)

	require.NoError(t, conn.Consume(ctx, 8.0))
	value, err = conn.Provide(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8.0, value)

	require.NoError(t, conn.Consume(ctx, nil))
	value, err = conn.Provide(ctx)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestReceiveStreamsConsumedValues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := New()
	require.NoError(t, conn.Connect(ctx))

	stream, err := conn.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.Consume(ctx, "first"))
	select {
	case value := <-stream:
		assert.Equal(t, "first", value)
	case <-time.After(time.Second):
		t.Fatal("no value received")
	}

	cancel()
	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
}

func TestDisconnectClosesStreams(t *testing.T) {
	ctx := context.Background()
	conn := New()
	require.NoError(t, conn.Connect(ctx))

	stream, err := conn.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Disconnect(ctx))

	select {
	case _, open := <-stream:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
}
