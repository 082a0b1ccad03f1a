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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"

	"github.com/gorilla/mux"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/server"
	"trpc.group/trpc-go/trpc-datamesh-go/syncengine"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
)

// ConnectorDescription is the JSON shape of a connector description.
type ConnectorDescription struct {
	ConnectorID           string           `json:"connector_id"`
	ConnectorType         string           `json:"connector_type"`
	PersistenceConnection *connection.Info `json:"persistence_connection,omitempty"`
	SyncRole              string           `json:"sync_role,omitempty"`
	SyncDirection         string           `json:"sync_direction,omitempty"`
	ModelType             string           `json:"model_type,omitempty"`
}

// GenerateConnectorEndpoints mounts the description and value routes for
// registered connectors. Connectors added after mounting are served too:
// resolution happens per request.
func (m *Middleware) GenerateConnectorEndpoints() {
	router := m.srv.Router()
	router.HandleFunc("/connectors/{id}/description", m.handleConnectorDescription).Methods(http.MethodGet)
	router.HandleFunc("/connectors/{id}/value", m.handleConnectorRead).Methods(http.MethodGet)
	router.HandleFunc("/connectors/{id}/value", m.handleConnectorWrite).Methods(http.MethodPost)
}

func (m *Middleware) handleConnectorDescription(w http.ResponseWriter, r *http.Request) {
	entry, err := m.connectorByID(mux.Vars(r)["id"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	description := ConnectorDescription{
		ConnectorID:           entry.id,
		ConnectorType:         connector.TypeName(entry.conn),
		PersistenceConnection: entry.info,
	}
	if entry.modelType != nil {
		description.ModelType = entry.modelType.Name()
	}
	if entry.synced != nil {
		description.SyncRole = string(entry.synced.Role())
		description.SyncDirection = string(entry.synced.Direction())
	}
	server.WriteJSON(w, description)
}

func (m *Middleware) handleConnectorRead(w http.ResponseWriter, r *http.Request) {
	entry, err := m.connectorByID(mux.Vars(r)["id"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	var value any
	if entry.synced != nil {
		value, err = entry.synced.Provide(r.Context())
	} else if provider, ok := entry.conn.(connector.Provider); ok {
		value, err = provider.Provide(r.Context())
	} else {
		err = fmt.Errorf("connector %q: %w", entry.id, syncengine.ErrNotProvider)
	}
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, value)
}

func (m *Middleware) handleConnectorWrite(w http.ResponseWriter, r *http.Request) {
	entry, err := m.connectorByID(mux.Vars(r)["id"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	value, err := entry.decodeBody(body)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	if value == nil {
		// A null body asks the connector to refresh from persistence; that
		// needs a synced connector whose direction reads persistence.
		if entry.synced == nil || !entry.synced.Direction().AllowsRead() {
			server.WriteError(w, fmt.Errorf(
				"connector %q: null body needs a synced FROM_PERSISTENCE direction: %w",
				entry.id, transform.ErrMapping))
			return
		}
	}
	if entry.synced != nil {
		err = entry.synced.Consume(r.Context(), value)
	} else if consumer, ok := entry.conn.(connector.Consumer); ok {
		err = consumer.Consume(r.Context(), value)
	} else {
		err = fmt.Errorf("connector %q: %w", entry.id, syncengine.ErrNotConsumer)
	}
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteMessage(w, fmt.Sprintf("value consumed by connector %q", entry.id))
}

// decodeBody turns the request payload into the connector's model type when
// one is declared. Empty and JSON null bodies decode to nil.
func (e *connectorEntry) decodeBody(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if e.modelType == nil {
		var value any
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, fmt.Errorf("connector %q body: %v: %w", e.id, err, transform.ErrMapping)
		}
		return value, nil
	}
	p := reflect.New(e.modelType)
	if err := json.Unmarshal(trimmed, p.Interface()); err != nil {
		return nil, fmt.Errorf("connector %q body does not fit %s: %v: %w",
			e.id, e.modelType.Name(), err, transform.ErrMapping)
	}
	// Scalars travel by value, structs by pointer.
	if e.modelType.Kind() == reflect.Struct {
		return p.Interface(), nil
	}
	return p.Elem().Interface(), nil
}

// GenerateWorkflowEndpoints mounts the execute, background, description and
// interrupt routes for registered workflows.
func (m *Middleware) GenerateWorkflowEndpoints() {
	router := m.srv.Router()
	router.HandleFunc("/workflows/{name}/execute", m.handleWorkflowExecute).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{name}/execute_background", m.handleWorkflowBackground).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{name}/description", m.handleWorkflowDescription).Methods(http.MethodGet)
	router.HandleFunc("/workflows/{name}/interrupt", m.handleWorkflowInterrupt).Methods(http.MethodGet)
}

func (m *Middleware) handleWorkflowExecute(w http.ResponseWriter, r *http.Request) {
	wf, err := m.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	result, err := wf.Execute(r.Context(), json.RawMessage(body))
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, result)
}

func (m *Middleware) handleWorkflowBackground(w http.ResponseWriter, r *http.Request) {
	wf, err := m.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		server.WriteError(w, err)
		return
	}
	message, err := wf.ExecuteBackground(r.Context(), json.RawMessage(body))
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteMessage(w, message)
}

func (m *Middleware) handleWorkflowDescription(w http.ResponseWriter, r *http.Request) {
	wf, err := m.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteJSON(w, wf.Describe())
}

func (m *Middleware) handleWorkflowInterrupt(w http.ResponseWriter, r *http.Request) {
	wf, err := m.workflows.Get(mux.Vars(r)["name"])
	if err != nil {
		server.WriteError(w, err)
		return
	}
	if err := wf.Interrupt(); err != nil {
		server.WriteError(w, err)
		return
	}
	server.WriteMessage(w, fmt.Sprintf("interrupted workflow %q", wf.Name()))
}
