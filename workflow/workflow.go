// Package workflow defines the execution contract for workflow-backed tools.
// The chat loop resolves a workflow by name and hands it to a Runner; how a
// workflow actually executes (local code, a job queue, a remote engine) is up
// to the Runner implementation.
package workflow

import "context"

// Status reports how a workflow run ended.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Request carries one workflow invocation, including the identity of the
// user on whose behalf the workflow runs.
type Request struct {
	WorkflowID      string
	Name            string
	Arguments       map[string]any
	UserID          string
	UserEmail       string
	UserName        string
	OrgID           string
	IsPlatformAdmin bool
	ExecutionID     string
}

// Result is the outcome of a workflow run. Result holds the output payload
// on success; Error holds a human-readable message otherwise.
type Result struct {
	Status Status `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the run succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Runner executes workflows.
type Runner interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// RunnerFunc adapts a plain function into a Runner.
type RunnerFunc func(ctx context.Context, req Request) (*Result, error)

// Execute calls f.
func (f RunnerFunc) Execute(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
