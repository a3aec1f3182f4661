package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/routing"
)

// Status is an executor's verdict on an invocation.
type Status string

const (
	// StatusSuccess means evidence was produced.
	StatusSuccess Status = "success"

	// StatusFailure means the executor could not produce the evidence.
	StatusFailure Status = "failure"

	// StatusBlocked means the evidence requires an action outside the
	// executor's reach (for example, creating a task).
	StatusBlocked Status = "blocked"
)

// Request is the invocation record handed to an executor. The snapshot
// is a copy; executors never mutate stored state.
type Request struct {
	ExecutorID    routing.ExecutorID  `json:"executor_id"`
	Snapshot      item.WorkItem       `json:"entity_snapshot"`
	RequirementID gates.RequirementID `json:"missing_requirement_id"`
	CorrelationID string              `json:"correlation_id"`
}

// Response is an executor's answer. Evidence is opaque to the core and
// forwarded unmodified into the entity's fields on success.
type Response struct {
	Status   Status          `json:"status"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Executor produces evidence for one or more requirement ids.
type Executor interface {
	// ID returns the executor's registry id.
	ID() routing.ExecutorID

	// Produce attempts to create the evidence named by the request.
	Produce(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to the Executor interface.
type Func struct {
	Name routing.ExecutorID
	Fn   func(ctx context.Context, req *Request) (*Response, error)
}

// ID returns the executor's registry id.
func (f Func) ID() routing.ExecutorID { return f.Name }

// Produce invokes the wrapped function.
func (f Func) Produce(ctx context.Context, req *Request) (*Response, error) {
	return f.Fn(ctx, req)
}

// FailureError reports that an individual executor could not produce its
// evidence. Failures are aggregated into the block report; they are not
// retried beyond the coordinator's single bounded pass.
type FailureError struct {
	Executor    routing.ExecutorID
	Requirement gates.RequirementID
	Message     string
	Err         error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("executor %s failed producing %s: %v", e.Executor, e.Requirement, e.Err)
	}
	return fmt.Sprintf("executor %s failed producing %s: %s", e.Executor, e.Requirement, e.Message)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Directory resolves executor ids to implementations. It is the
// process-local realization of the registry's tier-three pool.
type Directory struct {
	mu        sync.RWMutex
	executors map[routing.ExecutorID]Executor
}

// NewDirectory creates an empty executor directory.
func NewDirectory() *Directory {
	return &Directory{executors: make(map[routing.ExecutorID]Executor)}
}

// Add registers an executor implementation and announces its
// capabilities to the routing registry.
func (d *Directory) Add(registry *routing.Registry, exec Executor, capabilities ...gates.RequirementID) error {
	if exec == nil {
		return fmt.Errorf("executor is required")
	}
	if err := registry.Register(routing.ExecutorDescriptor{
		ID:           exec.ID(),
		Capabilities: capabilities,
	}); err != nil {
		return err
	}
	d.mu.Lock()
	d.executors[exec.ID()] = exec
	d.mu.Unlock()
	return nil
}

// Lookup returns the implementation for an executor id.
func (d *Directory) Lookup(id routing.ExecutorID) (Executor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.executors[id]
	return e, ok
}
