//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package basyx provides a persistence connector against an AAS-style REST
// back-end exposing /shells/{base64(id)} and /submodels/{base64(id)} with
// JSON bodies.
package basyx

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
)

// Repository selects the back-end collection a connector talks to.
type Repository string

// Back-end collections.
const (
	RepositoryShells    Repository = "shells"
	RepositorySubmodels Repository = "submodels"
)

// Connector reads and writes one identifiable against an AAS repository.
type Connector struct {
	baseURL    string
	repository Repository
	id         string
	client     *http.Client
	retries    uint64
	interval   time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithClient replaces the HTTP client.
func WithClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithRetries sets the maximum number of retries for transient failures.
func WithRetries(retries uint64) Option {
	return func(c *Connector) { c.retries = retries }
}

// WithBackoffInterval sets the initial retry backoff interval.
func WithBackoffInterval(interval time.Duration) Option {
	return func(c *Connector) { c.interval = interval }
}

// New creates a connector for one identifiable id in the given repository.
func New(baseURL string, repository Repository, id string, opts ...Option) *Connector {
	c := &Connector{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		repository: repository,
		id:         id,
		client:     http.DefaultClient,
		retries:    3,
		interval:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory returns a persistence factory that routes shell types to the AAS
// host and submodel types to the submodel host. The repository is chosen by
// the model type name: names containing "Submodel" go to the submodel
// repository, everything else to shells.
func Factory(aasBaseURL, submodelBaseURL string, opts ...Option) persistence.Factory {
	return func(info connection.Info) (any, error) {
		if info.ModelID == "" {
			return nil, fmt.Errorf("basyx persistence needs a model id, got %s", info)
		}
		repository := RepositoryShells
		baseURL := aasBaseURL
		if t := info.ModelType(); t != nil && strings.Contains(t.Name(), "Submodel") {
			repository = RepositorySubmodels
			baseURL = submodelBaseURL
		}
		return New(baseURL, repository, info.ModelID, opts...), nil
	}
}

// Connect is a no-op: HTTP connections are pooled by the client.
func (c *Connector) Connect(_ context.Context) error { return nil }

// Disconnect closes idle connections held by the client.
func (c *Connector) Disconnect(_ context.Context) error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Connector) url() string {
	encoded := base64.URLEncoding.EncodeToString([]byte(c.id))
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.repository, encoded)
}

func (c *Connector) collectionURL() string {
	return fmt.Sprintf("%s/%s", c.baseURL, c.repository)
}

// Provide fetches the persisted identifiable.
func (c *Connector) Provide(ctx context.Context) (any, error) {
	var value any
	operation := func() error {
		body, status, err := c.do(ctx, http.MethodGet, c.url(), nil)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("id %q not found", c.id))
		}
		return json.Unmarshal(body, &value)
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("basyx GET %s: %w: %v", c.url(), connector.ErrConnection, err)
	}
	return value, nil
}

// Consume persists the identifiable: PUT on the resource, falling back to
// POST on the collection when the resource does not exist yet. A nil value
// deletes it.
func (c *Connector) Consume(ctx context.Context, value any) error {
	operation := func() error {
		if value == nil {
			_, _, err := c.do(ctx, http.MethodDelete, c.url(), nil)
			return err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return backoff.Permanent(err)
		}
		_, status, err := c.do(ctx, http.MethodPut, c.url(), payload)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			_, _, err = c.do(ctx, http.MethodPost, c.collectionURL(), payload)
			return err
		}
		return nil
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return fmt.Errorf("basyx PUT %s: %w: %v", c.url(), connector.ErrConnection, err)
	}
	return nil
}

func (c *Connector) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	return backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
}

func (c *Connector) do(ctx context.Context, method, url string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return nil, resp.StatusCode, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	return body, resp.StatusCode, nil
}
