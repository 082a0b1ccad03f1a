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
	"fmt"
	"sort"
	"sync"
)

// Registry keeps registered workflows by name.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]Workflow
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]Workflow)}
}

// Register adds a workflow under its name.
func (r *Registry) Register(w Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[w.Name()]; ok {
		return fmt.Errorf("%q: %w", w.Name(), ErrDuplicateName)
	}
	r.workflows[w.Name()] = w
	return nil
}

// Get returns the workflow registered under name.
func (r *Registry) Get(name string) (Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return w, nil
}

// All returns the registered workflows sorted by name.
func (r *Registry) All() []Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}
