package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline/parse"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

var log = logging.New("pipeline")

// maxAdHocAgents bounds run-agents fan-out (spec.md §4.3).
const maxAdHocAgents = 10

// Pipeline is the C3 Agent Invocation Pipeline.
type Pipeline struct {
	Fs       afero.Fs
	Defs     AgentDefinitionStore
	Runner   AgentRunner
	Sessions SessionStore
}

// New constructs a Pipeline. Sessions may be nil if no session history
// should ever be threaded into prompts.
func New(fs afero.Fs, defs AgentDefinitionStore, runner AgentRunner, sessions SessionStore) *Pipeline {
	return &Pipeline{Fs: fs, Defs: defs, Runner: runner, Sessions: sessions}
}

// Invoke performs a single agent invocation per spec.md §4.3. Every
// failure, including a runner error from a cancelled ctx, is reported
// through InvokeResult.Error; the Go error return is always nil.
func (p *Pipeline) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	def, ok, err := p.Defs.GetAgent(ctx, req.Agent)
	if err != nil {
		return InvokeResult{Success: false, Error: conclaveerr.Storage("resolving agent definition", err)}, nil
	}
	if !ok {
		return InvokeResult{Success: false, Error: conclaveerr.AgentExecution("not_found", req.Agent, 0, nil)}, nil
	}

	prompt := p.AssemblePrompt(ctx, req)

	_, model := ResolveModel(req.ModelOverride, def.Model)
	budget := CheckBudget(prompt, model)
	var warning string
	if budget.Level == BudgetError {
		return InvokeResult{
			Success: false,
			Error:   conclaveerr.TokenBudgetExceeded(budget.EstimatedTokens, budget.Limit, model),
		}, nil
	}
	if budget.Level == BudgetWarning {
		warning = fmt.Sprintf("prompt uses %.0f%% of the %s token budget", budget.Percentage*100, model)
	}

	started := time.Now()
	result, runErr := p.Runner.Execute(ctx, RunRequest{
		Agent: req.Agent, Prompt: prompt, Cwd: req.Cwd, ExtraArgs: req.ExtraArgs, Model: model,
	})
	elapsed := time.Since(started).Milliseconds()
	if runErr != nil {
		return InvokeResult{
			Success:     false,
			ExecutionMS: elapsed,
			Error:       conclaveerr.AgentExecution("failed", req.Agent, elapsed, runErr),
		}, nil
	}

	if req.OutputPath != "" {
		if err := p.Fs.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
			return InvokeResult{Success: false, Error: conclaveerr.Storage("creating output directory", err)}, nil
		}
		if err := afero.WriteFile(p.Fs, req.OutputPath, []byte(result.Stdout), 0o644); err != nil {
			return InvokeResult{Success: false, Error: conclaveerr.Storage("writing agent output", err)}, nil
		}
	}

	classification := classify(result)
	primary := parse.PrimaryField(result.Stdout)

	out := InvokeResult{
		Stdout:         result.Stdout,
		PrimaryField:   primary,
		Classification: classification,
		ExitCode:       result.ExitCode,
		ExecutionMS:    result.ExecutionTimeMS,
		Warning:        warning,
		Success:        classification == ClassSuccess || classification == ClassPartial,
	}
	if !out.Success {
		elapsedMS := result.ExecutionTimeMS
		if classification == ClassAgentError {
			out.Error = &conclaveerr.Error{
				Code:    conclaveerr.CodeAgentInvokeFailed,
				Class:   conclaveerr.ClassServer,
				Message: fmt.Sprintf("agent %q reported an error", req.Agent),
				Context: map[string]any{"agent": req.Agent, "elapsed_ms": elapsedMS, "output": primary},
			}
		} else {
			kind := "failed"
			if result.ExitCode == 124 {
				kind = "timeout"
			}
			out.Error = conclaveerr.AgentExecution(kind, req.Agent, elapsedMS, nil)
		}
	}

	if req.SessionID != "" && p.Sessions != nil {
		if err := p.Sessions.SaveSession(ctx, req.SessionID, req.UserPrompt, result.Stdout); err != nil {
			log.Warn("session save failed", "session_id", req.SessionID, "error", err)
		}
	}

	return out, nil
}

// classify applies the exit-code/is_error taxonomy of spec.md §4.3.
func classify(r RunResult) Classification {
	if parse.IsAgentError(r.Stdout) {
		return ClassAgentError
	}
	switch r.ExitCode {
	case 0:
		return ClassSuccess
	case 143:
		if r.HasResult {
			return ClassSuccess
		}
		return ClassProcessError
	case 124:
		if r.HasResult {
			return ClassPartial
		}
		return ClassProcessError
	default:
		return ClassProcessError
	}
}

// AgentOutcome is one agent's result from a RunAgents fan-out.
type AgentOutcome struct {
	Agent      string
	OutputPath string
	Result     InvokeResult
}

// FanOutMode selects run-agents semantics (spec.md §4.3).
type FanOutMode string

const (
	FailFast   FanOutMode = "fail-fast"
	BestEffort FanOutMode = "best-effort"
)

// RunAgents executes up to maxAdHocAgents agents in parallel against the
// same prompt/context, each writing to outDir/<agent>-<timestamp>.md.
func (p *Pipeline) RunAgents(ctx context.Context, agents []string, prompt string, contextFiles []string, outDir string, mode FanOutMode, timestamp string) ([]AgentOutcome, error) {
	if len(agents) > maxAdHocAgents {
		return nil, conclaveerr.Validation(
			fmt.Sprintf("run-agents accepts at most %d agents", maxAdHocAgents),
			map[string]any{"requested": len(agents)})
	}

	outcomes := make([]AgentOutcome, len(agents))

	if mode == FailFast {
		g, gctx := errgroup.WithContext(ctx)
		for i, agent := range agents {
			i, agent := i, agent
			g.Go(func() error {
				outPath := filepath.Join(outDir, fmt.Sprintf("%s-%s.md", agent, timestamp))
				res, err := p.Invoke(gctx, InvokeRequest{Agent: agent, UserPrompt: prompt, ContextFiles: contextFiles, OutputPath: outPath})
				outcomes[i] = AgentOutcome{Agent: agent, OutputPath: outPath, Result: res}
				if err != nil {
					return err
				}
				if !res.Success {
					return res.Error
				}
				return nil
			})
		}
		// fail-fast still awaits all and reports partial results with
		// error reasons, per spec.md §4.3 — errgroup's first error
		// cancels gctx but we ignore the aggregate error and return
		// outcomes as collected.
		_ = g.Wait()
		return outcomes, nil
	}

	var wg errgroup.Group
	for i, agent := range agents {
		i, agent := i, agent
		wg.Go(func() error {
			outPath := filepath.Join(outDir, fmt.Sprintf("%s-%s.md", agent, timestamp))
			res, _ := p.Invoke(ctx, InvokeRequest{Agent: agent, UserPrompt: prompt, ContextFiles: contextFiles, OutputPath: outPath})
			outcomes[i] = AgentOutcome{Agent: agent, OutputPath: outPath, Result: res}
			return nil
		})
	}
	_ = wg.Wait()
	return outcomes, nil
}

// ReviewPair is one (reviewer, review_file) input to RunVerifiers.
type ReviewPair struct {
	Reviewer   string
	ReviewFile string
}

// VerifierOutcome is one verifier's result, or a skip when its reviewer
// is unmapped.
type VerifierOutcome struct {
	Reviewer   string
	Verifier   string
	Skipped    bool
	OutputPath string
	Result     InvokeResult
	Passed     bool
	Issues     int
}

// RunVerifiers resolves each reviewer to its verifier through
// reviewerVerifierMap (custom-then-default, see workflow.VerifierFor),
// then fans out one invocation per mapped pair (spec.md §4.3).
func (p *Pipeline) RunVerifiers(ctx context.Context, pairs []ReviewPair, artifactFile string, reviewerVerifierMap map[string]string, outDir, timestamp string) ([]VerifierOutcome, error) {
	outcomes := make([]VerifierOutcome, len(pairs))

	artifact, err := afero.ReadFile(p.Fs, artifactFile)
	if err != nil {
		log.Warn("could not read artifact for verification", "path", artifactFile, "error", err)
	}

	var g errgroup.Group
	for i, pair := range pairs {
		i, pair := i, pair
		verifier, ok := workflow.VerifierFor(reviewerVerifierMap, pair.Reviewer)
		if !ok {
			outcomes[i] = VerifierOutcome{Reviewer: pair.Reviewer, Skipped: true}
			continue
		}
		g.Go(func() error {
			review, err := afero.ReadFile(p.Fs, pair.ReviewFile)
			if err != nil {
				log.Warn("could not read review for verification", "path", pair.ReviewFile, "error", err)
			}
			prompt := fmt.Sprintf("# Artifact\n```\n%s\n```\n\n# Review (%s)\n```\n%s\n```\n\nVerify the review against the artifact.",
				string(artifact), pair.Reviewer, string(review))
			outPath := filepath.Join(outDir, fmt.Sprintf("%s-%s.md", verifier, timestamp))
			res, _ := p.Invoke(ctx, InvokeRequest{Agent: verifier, UserPrompt: prompt, OutputPath: outPath})
			outcomes[i] = VerifierOutcome{
				Reviewer:   pair.Reviewer,
				Verifier:   verifier,
				OutputPath: outPath,
				Result:     res,
				Passed:     parse.Passed(res.Stdout),
				Issues:     parse.CountCriticalIssues(res.Stdout),
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}
