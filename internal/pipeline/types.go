// Package pipeline implements the Agent Invocation Pipeline (C3): prompt
// assembly, token-budget checking, invocation of the external Agent
// Runner, output persistence, and the ad-hoc fan-out operations built
// over a single invocation.
package pipeline

import (
	"context"
	"time"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
)

// AgentDefinition mirrors the Agent Definition Store's record shape
// (spec.md §6).
type AgentDefinition struct {
	Name         string
	Description  string
	Model        string // logical model id, or "" to use the pipeline default
	Content      string // Markdown system prompt, used verbatim
	FilePath     string
	LastModified time.Time
}

// AgentDefinitionStore resolves agent names to their definitions. The
// concrete implementation (internal/agentdefs) is an external
// collaborator per spec.md §6; the pipeline only depends on this
// interface.
type AgentDefinitionStore interface {
	ListAgents(ctx context.Context) ([]AgentDefinition, error)
	GetAgent(ctx context.Context, name string) (*AgentDefinition, bool, error)
}

// RunRequest is what the pipeline asks the external Agent Runner to do.
type RunRequest struct {
	Agent     string
	Prompt    string
	Cwd       string
	ExtraArgs []string
	Model     string // resolved API model name
}

// RunResult is the Agent Runner's raw response (spec.md §6).
type RunResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	ExecutionTimeMS int64
	HasResult       bool
	ResultJSON      map[string]any
}

// AgentRunner launches the external AI CLI binary (or equivalent) and
// collects its output. The concrete implementation (internal/agentrunner)
// is an external collaborator per spec.md §6.
type AgentRunner interface {
	Execute(ctx context.Context, req RunRequest) (RunResult, error)
}

// SessionEntry is one turn of prior conversation history.
type SessionEntry struct {
	Request  string
	Response string
}

// SessionStore threads prior turns into prompts (spec.md §6). The
// concrete implementation (internal/sessionstore) is an external
// collaborator.
type SessionStore interface {
	LoadSession(ctx context.Context, sessionID, agentType string) ([]SessionEntry, bool, error)
	SaveSession(ctx context.Context, sessionID, request, response string) error
	CleanupOldSessions(ctx context.Context) error
}

// InvokeRequest is the single-invocation input of spec.md §4.3.
type InvokeRequest struct {
	Agent        string
	ContextFiles []string
	OutputPath   string
	UserPrompt   string

	SessionID string
	AgentType string

	Cwd          string
	ExtraArgs    []string
	ModelOverride string

	// WorkflowIDForLog is used for logging only, per spec.md §4.3.
	WorkflowIDForLog string
}

// Classification is the output-handling verdict of spec.md §4.3.
type Classification string

const (
	ClassSuccess      Classification = "success"
	ClassPartial      Classification = "partial"
	ClassAgentError   Classification = "agent-error"
	ClassProcessError Classification = "process-error"
)

// InvokeResult is the single-invocation output of spec.md §4.3. The
// pipeline never throws: callers inspect Success/Error, never a Go
// error, including for context cancellation.
type InvokeResult struct {
	Success        bool
	Stdout         string
	PrimaryField   string
	Classification Classification
	ExitCode       int
	ExecutionMS    int64
	Warning        string
	Error          *conclaveerr.Error
}
