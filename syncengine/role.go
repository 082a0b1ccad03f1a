//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package syncengine propagates changes between external connectors and
// persistence. Every synced connector carries an immutable role and
// direction; the persisted connector wrapper fans writes out to all peers
// bound to the same persistence id.
package syncengine

// Role states how a synced connector relates to the persisted truth.
type Role string

// Connector roles.
const (
	RoleGroundTruth Role = "GROUND_TRUTH"
	RoleReadOnly    Role = "READ_ONLY"
	RoleReadWrite   Role = "READ_WRITE"
	RoleWriteOnly   Role = "WRITE_ONLY"
)

// Direction states which way values flow between the connector and
// persistence.
type Direction string

// Flow directions.
const (
	DirectionToPersistence   Direction = "TO_PERSISTENCE"
	DirectionFromPersistence Direction = "FROM_PERSISTENCE"
	DirectionBidirectional   Direction = "BIDIRECTIONAL"
)

// AllowsWrite reports whether values may flow into persistence.
func (d Direction) AllowsWrite() bool {
	return d == DirectionToPersistence || d == DirectionBidirectional
}

// AllowsRead reports whether values may flow out of persistence.
func (d Direction) AllowsRead() bool {
	return d == DirectionFromPersistence || d == DirectionBidirectional
}
