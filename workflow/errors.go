//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning reports an execution rejected because the pool is
	// saturated.
	ErrAlreadyRunning = errors.New("workflow is already running")
	// ErrNotRunning reports an interrupt on a workflow with no active run.
	ErrNotRunning = errors.New("workflow is not running")
	// ErrNotFound reports a lookup for an unregistered workflow.
	ErrNotFound = errors.New("workflow not found")
	// ErrDuplicateName reports two workflows registered under one name.
	ErrDuplicateName = errors.New("workflow name already registered")
)

// Error wraps a failure raised inside a workflow run.
type Error struct {
	Workflow    string
	ExecutionID string
	Cause       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("workflow %q (execution %s): %v", e.Workflow, e.ExecutionID, e.Cause)
}

// Unwrap exposes the original failure.
func (e *Error) Unwrap() error { return e.Cause }
