// Package agentrunner implements the external Agent Runner collaborator
// (spec.md §6): it launches an AI CLI binary as a subprocess and
// collects its stdout/stderr/exit code. Generalized from the teacher's
// internal/dispatch subprocess-orchestration idiom (process-group
// signal handling, stream-json parsing) to the spec's agent-name+prompt
// invocation shape instead of the teacher's fixed phase/config model.
package agentrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline"
)

var log = logging.New("agentrunner")

// DefaultTimeout bounds a single invocation when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 15 * time.Minute

// Runner is a subprocess-backed pipeline.AgentRunner. It resolves the
// agent's system prompt content through Defs, then execs Binary with
// that content appended as a system prompt, matching the invocation
// style of the teacher's buildAgentArgs/runAgentTurn.
type Runner struct {
	Defs    pipeline.AgentDefinitionStore
	Binary  string // defaults to "claude"
	Timeout time.Duration
}

// New constructs a Runner. binary may be "" to use the default "claude".
func New(defs pipeline.AgentDefinitionStore, binary string) *Runner {
	if binary == "" {
		binary = "claude"
	}
	return &Runner{Defs: defs, Binary: binary, Timeout: DefaultTimeout}
}

// Execute runs one agent turn to completion and reports its outcome.
// It never retries and never interprets exit codes beyond surfacing
// them — classification is the pipeline's job (spec.md §4.3).
func (r *Runner) Execute(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error) {
	def, ok, err := r.Defs.GetAgent(ctx, req.Agent)
	if err != nil {
		return pipeline.RunResult{}, fmt.Errorf("resolving agent %q: %w", req.Agent, err)
	}
	if !ok {
		return pipeline.RunResult{}, fmt.Errorf("agent %q not found", req.Agent)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(req, def.Content)

	cmd := exec.CommandContext(runCtx, r.Binary, args...)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	cmd.SysProcAttr = processGroupAttr()
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started).Milliseconds()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			exitCode = 124
		} else {
			return pipeline.RunResult{}, fmt.Errorf("running agent %q: %w", req.Agent, runErr)
		}
	}

	result := pipeline.RunResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		ExecutionTimeMS: elapsed,
	}
	var parsed map[string]any
	if json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &parsed) == nil {
		result.HasResult = true
		result.ResultJSON = parsed
	}

	log.Debug("agent run complete", "agent", req.Agent, "exit_code", exitCode, "elapsed_ms", elapsed)
	return result, nil
}

// buildArgs constructs the CLI arguments for one invocation: the user
// prompt, a JSON output format for structured parsing, the resolved
// model, the agent's content as an appended system prompt, and any
// extra args passed through verbatim.
func buildArgs(req pipeline.RunRequest, systemPrompt string) []string {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "json",
		"--session-id", uuid.New().String(),
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	args = append(args, req.ExtraArgs...)
	return args
}

func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}
