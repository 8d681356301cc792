// Package executors defines the node executor contract: one executor per
// node kind, each a function of (config, context) producing exactly one of
// Completed, Suspend or Failed.
package executors

import (
	"context"
	"log/slog"
	"time"

	"github.com/driptide/driptide/pkg/models"
)

// Request carries everything an executor may consult. Context is owned
// exclusively by the invoking execution for the duration of the call; Now is
// the injected clock so delay math stays deterministic under test.
type Request struct {
	Node    *models.WorkflowNode
	Context *models.ExecutionContext
	Inbound []*models.WorkflowEdge // inbound edges of the node; merge gating metadata
	Now     time.Time
}

// Result is the outcome of one node attempt: exactly one of Completed,
// Suspend or Failed.
type Result struct {
	Output any
	Branch string     // branch handle selected by condition and loop nodes
	WakeAt *time.Time // set only for Suspend
	Err    *models.ExecutionError
}

// Completed builds a successful result with the node's output value.
func Completed(output any) Result {
	return Result{Output: output}
}

// CompletedBranch builds a successful result that also selects the outgoing
// branch the scheduler follows next.
func CompletedBranch(branch string, output any) Result {
	return Result{Output: output, Branch: branch}
}

// Suspend parks the execution until wakeAt; the engine thread is freed
// immediately.
func Suspend(wakeAt time.Time) Result {
	return Result{WakeAt: &wakeAt}
}

// Failed builds a failure result. Recoverability on the error drives the
// scheduler's retry decision.
func Failed(err *models.ExecutionError) Result {
	return Result{Err: err}
}

// Suspended reports whether the result parks the execution.
func (r Result) Suspended() bool {
	return r.WakeAt != nil
}

// Failure reports whether the attempt failed.
func (r Result) Failure() bool {
	return r.Err != nil
}

// Executor runs nodes of a single kind.
type Executor interface {
	// Kind returns the node kind this executor serves.
	Kind() models.NodeKind

	// Execute runs one attempt of the node. Implementations must be pure
	// given (config, context) apart from injected adapter calls, and must
	// never block on wall-clock time.
	Execute(ctx context.Context, req Request, logger *slog.Logger) Result
}
