//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package syncengine

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-datamesh-go/connection"
	"trpc.group/trpc-go/trpc-datamesh-go/connector"
	"trpc.group/trpc-go/trpc-datamesh-go/log"
	"trpc.group/trpc-go/trpc-datamesh-go/transform"
)

// SyncedConnector enforces a role and direction between one external
// connector and persistence. The configuration is immutable after Sync.
type SyncedConnector struct {
	engine    *Engine
	id        string
	conn      any
	info      connection.Info
	persisted *PersistedConnector

	role              Role
	direction         Direction
	priority          int
	externalMapper    transform.Mapper
	persistenceMapper transform.Mapper
	formatter         transform.Formatter
}

// SyncOption configures a SyncedConnector at Sync time.
type SyncOption func(*SyncedConnector)

// WithRole sets the connector role. Default is READ_WRITE.
func WithRole(role Role) SyncOption {
	return func(s *SyncedConnector) { s.role = role }
}

// WithDirection sets the flow direction. Default is BIDIRECTIONAL.
func WithDirection(direction Direction) SyncOption {
	return func(s *SyncedConnector) { s.direction = direction }
}

// WithPriority disambiguates between multiple ground-truth connectors
// targeting the same persistence id; higher wins.
func WithPriority(priority int) SyncOption {
	return func(s *SyncedConnector) { s.priority = priority }
}

// WithExternalMapper sets the mapper applied external-to-persistence.
func WithExternalMapper(m transform.Mapper) SyncOption {
	return func(s *SyncedConnector) { s.externalMapper = m }
}

// WithPersistenceMapper sets the mapper applied persistence-to-external.
func WithPersistenceMapper(m transform.Mapper) SyncOption {
	return func(s *SyncedConnector) { s.persistenceMapper = m }
}

// WithFormatter sets the wire formatter between the external connector and
// persistence.
func WithFormatter(f transform.Formatter) SyncOption {
	return func(s *SyncedConnector) { s.formatter = f }
}

// ID returns the connector id.
func (s *SyncedConnector) ID() string { return s.id }

// Info returns the connection info the connector is bound to.
func (s *SyncedConnector) Info() connection.Info { return s.info }

// Role returns the immutable role.
func (s *SyncedConnector) Role() Role { return s.role }

// Direction returns the immutable direction.
func (s *SyncedConnector) Direction() Direction { return s.direction }

// Priority returns the ground-truth priority.
func (s *SyncedConnector) Priority() int { return s.priority }

// Raw returns the wrapped external connector.
func (s *SyncedConnector) Raw() any { return s.conn }

// Provide reads a value under the role/direction contract:
//
//   - GROUND_TRUTH reads the underlying connector and, if the direction
//     permits, pushes the transformed value into persistence. The fresh
//     value is returned.
//   - READ_ONLY tries persistence when the direction allows, falls back to
//     the connector, and never writes.
//   - READ_WRITE and WRITE_ONLY try persistence first when the direction
//     allows reading, otherwise read the connector and, when the direction
//     allows, push the value to persistence.
func (s *SyncedConnector) Provide(ctx context.Context) (any, error) {
	switch s.role {
	case RoleGroundTruth:
		value, err := s.provideRaw(ctx)
		if err != nil {
			return nil, err
		}
		if s.direction.AllowsWrite() {
			if err := s.push(ctx, value); err != nil {
				return nil, err
			}
		}
		return value, nil
	case RoleReadOnly:
		if s.direction.AllowsRead() {
			if value, err := s.readPersistence(ctx); err == nil {
				return value, nil
			} else {
				log.Debugf("sync: %q persistence read failed, falling back to connector: %v", s.id, err)
			}
		}
		return s.provideRaw(ctx)
	default:
		if s.direction.AllowsRead() {
			if value, err := s.readPersistence(ctx); err == nil {
				return value, nil
			} else {
				log.Debugf("sync: %q persistence read failed, falling back to connector: %v", s.id, err)
			}
		}
		value, err := s.provideRaw(ctx)
		if err != nil {
			return nil, err
		}
		if s.direction.AllowsWrite() {
			if err := s.push(ctx, value); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}

// Consume writes a value under the role/direction contract. A nil body is
// resolved from persistence when the direction allows reading; otherwise
// the call is a no-op apart from forwarding. The final body is always
// forwarded to the underlying connector last.
func (s *SyncedConnector) Consume(ctx context.Context, body any) error {
	if body == nil {
		if s.direction.AllowsRead() {
			value, err := s.readPersistence(ctx)
			if err != nil {
				return err
			}
			body = value
		} else {
			// Delete-vs-noop is ambiguous for write-only connectors without
			// a persistence read path; treat as no-op and keep forwarding.
			log.Warnf("sync: %q received nil body without FROM_PERSISTENCE direction", s.id)
		}
	} else if s.role != RoleReadOnly && s.direction.AllowsWrite() {
		if err := s.push(ctx, body); err != nil {
			return err
		}
	}
	if consumer, ok := s.conn.(connector.Consumer); ok {
		return consumer.Consume(ctx, body)
	}
	return nil
}

// provideRaw reads the underlying external connector.
func (s *SyncedConnector) provideRaw(ctx context.Context) (any, error) {
	provider, ok := s.conn.(connector.Provider)
	if !ok {
		return nil, fmt.Errorf("%q: %w", s.id, ErrNotProvider)
	}
	return provider.Provide(ctx)
}

// push transforms an external value and writes it into persistence at the
// connector's granularity.
func (s *SyncedConnector) push(ctx context.Context, value any) error {
	transformed, err := transform.ToPersistence(value, s.externalMapper, s.formatter)
	if err != nil {
		return err
	}
	return s.persisted.writeGranular(ctx, s.info, transformed, s.id)
}

// pullIntoPersistence reads the underlying connector and writes the
// transformed value into persistence without notifying this connector
// again. The persisted connector calls this before serving reads.
func (s *SyncedConnector) pullIntoPersistence(ctx context.Context) error {
	value, err := s.provideRaw(ctx)
	if err != nil {
		return err
	}
	transformed, err := transform.ToPersistence(value, s.externalMapper, s.formatter)
	if err != nil {
		return err
	}
	return writeThrough(ctx, s.persisted.Raw(), s.info, transformed)
}

// readPersistence reads the part of the persisted object addressed by the
// connector's info and maps it onto the external schema.
func (s *SyncedConnector) readPersistence(ctx context.Context) (any, error) {
	provider, ok := s.persisted.Raw().(connector.Provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.info, ErrNotProvider)
	}
	obj, err := provider.Provide(ctx)
	if err != nil {
		return nil, err
	}
	part, err := extract(obj, s.info)
	if err != nil {
		return nil, err
	}
	if s.persistenceMapper == nil {
		return part, nil
	}
	mapped, err := s.persistenceMapper.Map(part)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transform.ErrMapping, err)
	}
	return mapped, nil
}
