//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package server provides the HTTP shell shared by the generated REST,
// GraphQL, connector and workflow endpoints: a mux router behind CORS, JSON
// response helpers and the domain error to status code mapping.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/datamodel"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/persistence"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
	"trpc.group/trpc-go/trpc-datamesh-go/workflow"
)

// Server hosts the generated routers on one HTTP listener.
type Server struct {
	router          *mux.Router
	srv             *http.Server
	shutdownTimeout time.Duration
}

// Option configures the Server instance.
type Option func(*Server)

// WithShutdownTimeout bounds the graceful shutdown drain.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = timeout }
}

// New creates a server listening on addr once started.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		router:          mux.NewRouter(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Router exposes the mux router for generators to mount routes on.
func (s *Server) Router() *mux.Router { return s.router }

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Infof("server: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(drainCtx)
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes a `{"message": ...}` JSON body.
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, map[string]string{"message": message})
}

// WriteError maps a domain error to its HTTP status and writes a JSON body
// with a human readable detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("server: request failed: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}

// StatusOf maps domain errors to HTTP status codes. Validation failures,
// duplicates, missing keys and saturated workflow pools are 400; downstream
// connection and workflow run failures are 500.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, datamodel.ErrDuplicateID),
		errors.Is(err, datamodel.ErrModelNotFound),
		errors.Is(err, datamodel.ErrTypeNotFound),
		errors.Is(err, datamodel.ErrFieldNotFound),
		errors.Is(err, datamodel.ErrNoIdentifier),
		errors.Is(err, datamodel.ErrNotIdentifiable),
		errors.Is(err, datamodel.ErrStillReferenced),
		errors.Is(err, persistence.ErrKeyNotFound),
		errors.Is(err, persistence.ErrNothingPersisted),
		errors.Is(err, transform.ErrMapping),
		errors.Is(err, syncengine.ErrNotProvider),
		errors.Is(err, syncengine.ErrNotConsumer),
		errors.Is(err, syncengine.ErrPeerCapExceeded),
		errors.Is(err, workflow.ErrAlreadyRunning),
		errors.Is(err, workflow.ErrNotRunning),
		errors.Is(err, workflow.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, connector.ErrConnection):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
