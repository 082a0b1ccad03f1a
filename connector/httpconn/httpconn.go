//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package httpconn provides an HTTP connector: Provide issues a GET against
// the configured URL, Consume issues a PUT (or DELETE for nil values).
// Transient failures are retried with exponential backoff.
package httpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trpc.group/trpc-go/trpc-datamesh-go/connector"
)

// Connector reads and writes JSON values over HTTP.
type Connector struct {
	url     string
	client  *http.Client
	headers map[string]string
	retries uint64
	backoff time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Connector) { c.headers[key] = value }
}

// WithRetries sets the maximum number of retries for transient failures.
func WithRetries(retries uint64) Option {
	return func(c *Connector) { c.retries = retries }
}

// WithBackoffInterval sets the initial backoff interval between retries.
func WithBackoffInterval(interval time.Duration) Option {
	return func(c *Connector) { c.backoff = interval }
}

// New creates an HTTP connector targeting url.
func New(url string, opts ...Option) *Connector {
	c := &Connector{
		url:     url,
		client:  http.DefaultClient,
		headers: make(map[string]string),
		retries: 3,
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect is a no-op: HTTP connections are pooled by the client.
func (c *Connector) Connect(_ context.Context) error { return nil }

// Disconnect closes idle connections held by the client.
func (c *Connector) Disconnect(_ context.Context) error {
	c.client.CloseIdleConnections()
	return nil
}

// Provide fetches the value with a GET request.
func (c *Connector) Provide(ctx context.Context) (any, error) {
	var value any
	operation := func() error {
		body, err := c.do(ctx, http.MethodGet, nil)
		if err != nil {
			return err
		}
		if len(body) == 0 {
			value = nil
			return nil
		}
		return json.Unmarshal(body, &value)
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("GET %s: %w: %v", c.url, connector.ErrConnection, err)
	}
	return value, nil
}

// Consume writes the value with a PUT request; nil issues a DELETE.
func (c *Connector) Consume(ctx context.Context, value any) error {
	operation := func() error {
		if value == nil {
			_, err := c.do(ctx, http.MethodDelete, nil)
			return err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return backoff.Permanent(err)
		}
		_, err = c.do(ctx, http.MethodPut, payload)
		return err
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return fmt.Errorf("PUT %s: %w: %v", c.url, connector.ErrConnection, err)
	}
	return nil
}

func (c *Connector) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	return backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
}

func (c *Connector) do(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	return body, nil
}
