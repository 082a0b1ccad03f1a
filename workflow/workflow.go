//
// Tencent is pleased to support the open source community by making trpc-datamesh-go available.
//
// Copyright (C) 2026 Tencent.  All rights reserved.
//
// trpc-datamesh-go is licensed under the Apache License Version 2.0.
//
//

// Package workflow defines, schedules, cancels and describes user
// workflows. A workflow binds a typed function to an execution policy:
// one-shot, blocking pool, queueing pool or periodic.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-datamesh-go/log"
)

// Description reports the static policy and live state of a workflow.
type Description struct {
	Name            string   `json:"name"`
	Running         bool     `json:"running"`
	IntervalSeconds float64  `json:"interval_seconds,omitempty"`
	OnStartup       bool     `json:"on_startup"`
	OnShutdown      bool     `json:"on_shutdown"`
	Blocking        bool     `json:"blocking"`
	Queueing        bool     `json:"queueing"`
	PoolSize        int      `json:"pool_size"`
	Providers       []string `json:"providers,omitempty"`
	Consumers       []string `json:"consumers,omitempty"`
}

// Workflow is the untyped face of a registered workflow, used by the
// registry and the generated HTTP endpoints.
type Workflow interface {
	Name() string
	// Execute runs the workflow with a JSON input body and returns its
	// result. Periodic workflows start their schedule instead and return a
	// start message.
	Execute(ctx context.Context, input json.RawMessage) (any, error)
	// ExecuteBackground schedules a run without waiting for its result.
	ExecuteBackground(ctx context.Context, input json.RawMessage) (string, error)
	// Interrupt cancels every active run.
	Interrupt() error
	Describe() Description
	OnStartup() bool
	OnShutdown() bool
}

// options holds the execution policy shared by all workflow instantiations.
type options struct {
	interval     time.Duration
	onStartup    bool
	onShutdown   bool
	blocking     bool
	queueing     bool
	poolSize     int
	defaultInput any
	providers    []string
	consumers    []string
}

// Option configures a workflow at definition time.
type Option func(*options)

// WithInterval makes the workflow periodic: it re-runs every interval
// until cancelled.
func WithInterval(interval time.Duration) Option {
	return func(o *options) { o.interval = interval }
}

// WithOnStartup launches the workflow when the middleware starts.
func WithOnStartup() Option {
	return func(o *options) { o.onStartup = true }
}

// WithOnShutdown runs the workflow when the middleware shuts down.
func WithOnShutdown() Option {
	return func(o *options) { o.onShutdown = true }
}

// WithBlocking allows poolSize concurrent runs, rejecting when saturated.
func WithBlocking() Option {
	return func(o *options) { o.blocking = true }
}

// WithQueueing allows poolSize concurrent runs and queues the rest FIFO.
func WithQueueing() Option {
	return func(o *options) { o.queueing = true }
}

// WithPoolSize bounds the number of concurrent runs. Default is 1.
func WithPoolSize(size int) Option {
	return func(o *options) { o.poolSize = size }
}

// WithDefaultInput pre-binds input fields merged under the request body at
// execution time.
func WithDefaultInput(input any) Option {
	return func(o *options) { o.defaultInput = input }
}

// WithProviders names the provider connectors available to the workflow,
// for descriptions.
func WithProviders(ids ...string) Option {
	return func(o *options) { o.providers = ids }
}

// WithConsumers names the consumer connectors available to the workflow,
// for descriptions.
func WithConsumers(ids ...string) Option {
	return func(o *options) { o.consumers = ids }
}

// Typed is a workflow bound to a function from I to O. Input bodies are
// type-checked by unmarshalling onto I, merged over the pre-bound default
// input.
type Typed[I, O any] struct {
	name string
	fn   func(context.Context, I) (O, error)
	opts options

	pool *ants.Pool

	mu         sync.Mutex
	executions map[string]context.CancelFunc
}

// New defines a workflow binding fn to the given execution policy.
// Blocking, queueing and interval modes are mutually exclusive; the
// default mode allows a single run and rejects concurrent calls.
func New[I, O any](name string, fn func(context.Context, I) (O, error), opts ...Option) (*Typed[I, O], error) {
	o := options{poolSize: 1}
	for _, opt := range opts {
		opt(&o)
	}
	modes := 0
	for _, enabled := range []bool{o.blocking, o.queueing, o.interval > 0} {
		if enabled {
			modes++
		}
	}
	if modes > 1 {
		return nil, fmt.Errorf("workflow %q: blocking, queueing and interval modes are mutually exclusive", name)
	}
	if o.poolSize < 1 {
		return nil, fmt.Errorf("workflow %q: pool size must be at least 1", name)
	}

	w := &Typed[I, O]{
		name:       name,
		fn:         fn,
		opts:       o,
		executions: make(map[string]context.CancelFunc),
	}
	// Queueing pools block the submitter until a slot frees up; all other
	// modes reject on saturation.
	pool, err := ants.NewPool(o.poolSize, ants.WithNonblocking(!o.queueing))
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	w.pool = pool
	return w, nil
}

// Name returns the workflow name.
func (w *Typed[I, O]) Name() string { return w.name }

// OnStartup reports whether the workflow launches at middleware startup.
func (w *Typed[I, O]) OnStartup() bool { return w.opts.onStartup }

// OnShutdown reports whether the workflow runs at middleware shutdown.
func (w *Typed[I, O]) OnShutdown() bool { return w.opts.onShutdown }

// Describe reports the policy and whether any run is active.
func (w *Typed[I, O]) Describe() Description {
	w.mu.Lock()
	running := len(w.executions) > 0
	w.mu.Unlock()
	return Description{
		Name:            w.name,
		Running:         running,
		IntervalSeconds: w.opts.interval.Seconds(),
		OnStartup:       w.opts.onStartup,
		OnShutdown:      w.opts.onShutdown,
		Blocking:        w.opts.blocking,
		Queueing:        w.opts.queueing,
		PoolSize:        w.opts.poolSize,
		Providers:       w.opts.providers,
		Consumers:       w.opts.consumers,
	}
}

// Execute runs the workflow synchronously and returns its result. Periodic
// workflows start their schedule and return a start message instead.
func (w *Typed[I, O]) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := w.decodeInput(input)
	if err != nil {
		return nil, err
	}
	if w.opts.interval > 0 {
		if err := w.startInterval(in); err != nil {
			return nil, err
		}
		return map[string]string{"message": fmt.Sprintf("started interval execution of workflow %s", w.name)}, nil
	}

	type outcome struct {
		result O
		err    error
	}
	done := make(chan outcome, 1)
	execID, runCtx, err := w.beginExecution()
	if err != nil {
		return nil, err
	}
	submitErr := w.pool.Submit(func() {
		result, err := w.run(runCtx, execID, in)
		done <- outcome{result: result, err: err}
	})
	if submitErr != nil {
		w.endExecution(execID)
		return nil, w.submitError(submitErr)
	}
	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		// The caller gave up; the run keeps its own lifecycle and is only
		// stopped through Interrupt.
		return nil, ctx.Err()
	}
}

// ExecuteBackground schedules a run and returns immediately.
func (w *Typed[I, O]) ExecuteBackground(_ context.Context, input json.RawMessage) (string, error) {
	in, err := w.decodeInput(input)
	if err != nil {
		return "", err
	}
	if w.opts.interval > 0 {
		if err := w.startInterval(in); err != nil {
			return "", err
		}
		return fmt.Sprintf("started interval execution of workflow %s", w.name), nil
	}
	execID, runCtx, err := w.beginExecution()
	if err != nil {
		return "", err
	}
	submitErr := w.pool.Submit(func() {
		if _, err := w.run(runCtx, execID, in); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("workflow %q background run failed: %v", w.name, err)
		}
	})
	if submitErr != nil {
		w.endExecution(execID)
		return "", w.submitError(submitErr)
	}
	return fmt.Sprintf("started background execution of workflow %s", w.name), nil
}

// Interrupt cancels every active run.
func (w *Typed[I, O]) Interrupt() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.executions) == 0 {
		return fmt.Errorf("workflow %q: %w", w.name, ErrNotRunning)
	}
	for _, cancel := range w.executions {
		cancel()
	}
	return nil
}

// startInterval launches the periodic schedule. Only one schedule may be
// active at a time.
func (w *Typed[I, O]) startInterval(in I) error {
	w.mu.Lock()
	if len(w.executions) > 0 {
		w.mu.Unlock()
		return fmt.Errorf("workflow %q: %w", w.name, ErrAlreadyRunning)
	}
	execID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	w.executions[execID] = cancel
	w.mu.Unlock()

	go func() {
		defer w.endExecution(execID)
		ticker := time.NewTicker(w.opts.interval)
		defer ticker.Stop()
		for {
			if _, err := w.invoke(runCtx, execID, in); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Errorf("workflow %q interval run failed: %v", w.name, err)
			}
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// beginExecution allocates an execution id with its cancel scope.
func (w *Typed[I, O]) beginExecution() (string, context.Context, error) {
	execID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.executions[execID] = cancel
	w.mu.Unlock()
	return execID, runCtx, nil
}

func (w *Typed[I, O]) endExecution(execID string) {
	w.mu.Lock()
	if cancel, ok := w.executions[execID]; ok {
		cancel()
		delete(w.executions, execID)
	}
	w.mu.Unlock()
}

// run invokes the workflow body once and clears the execution entry.
func (w *Typed[I, O]) run(ctx context.Context, execID string, in I) (O, error) {
	defer w.endExecution(execID)
	return w.invoke(ctx, execID, in)
}

// invoke calls the body, converting panics and failures into *Error.
// Cancellations pass through untouched.
func (w *Typed[I, O]) invoke(ctx context.Context, execID string, in I) (result O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Workflow: w.name, ExecutionID: execID, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result, err = w.fn(ctx, in)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, err
		}
		return result, &Error{Workflow: w.name, ExecutionID: execID, Cause: err}
	}
	return result, nil
}

func (w *Typed[I, O]) submitError(err error) error {
	if errors.Is(err, ants.ErrPoolOverload) {
		return fmt.Errorf("workflow %q: %w", w.name, ErrAlreadyRunning)
	}
	return fmt.Errorf("workflow %q: %w", w.name, err)
}

// decodeInput merges the request body over the pre-bound default input and
// type-checks the result against I.
func (w *Typed[I, O]) decodeInput(input json.RawMessage) (I, error) {
	var in I
	merged, err := mergeInputs(w.opts.defaultInput, input)
	if err != nil {
		return in, fmt.Errorf("workflow %q input: %w", w.name, err)
	}
	if len(merged) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(merged, &in); err != nil {
		return in, fmt.Errorf("workflow %q input does not fit %T: %w", w.name, in, err)
	}
	return in, nil
}

// mergeInputs overlays body fields on top of the default input. Non-object
// bodies replace the default entirely.
func mergeInputs(defaultInput any, body json.RawMessage) (json.RawMessage, error) {
	if defaultInput == nil {
		return body, nil
	}
	base, err := json.Marshal(defaultInput)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return base, nil
	}
	var baseMap map[string]any
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return body, nil
	}
	var bodyMap map[string]any
	if err := json.Unmarshal(body, &bodyMap); err != nil {
		return body, nil
	}
	for key, value := range bodyMap {
		baseMap[key] = value
	}
	return json.Marshal(baseMap)
}
