package ops

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorge-barreto/conclave/internal/executor"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

type fakeDefs struct{ known map[string]bool }

func (f *fakeDefs) ListAgents(ctx context.Context) ([]pipeline.AgentDefinition, error) {
	var out []pipeline.AgentDefinition
	for name := range f.known {
		out = append(out, pipeline.AgentDefinition{Name: name, Description: "test agent"})
	}
	return out, nil
}

func (f *fakeDefs) GetAgent(ctx context.Context, name string) (*pipeline.AgentDefinition, bool, error) {
	if !f.known[name] {
		return nil, false, nil
	}
	return &pipeline.AgentDefinition{Name: name}, true, nil
}

type scriptedRunner struct {
	byAgent map[string]pipeline.RunResult
	def     pipeline.RunResult
}

func (r *scriptedRunner) Execute(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error) {
	if res, ok := r.byAgent[req.Agent]; ok {
		return res, nil
	}
	return r.def, nil
}

func okResult(s string) pipeline.RunResult {
	return pipeline.RunResult{Stdout: fmt.Sprintf(`{"result":%q}`, s), ExitCode: 0}
}

func newTestOps(t *testing.T, agents map[string]bool, runner pipeline.AgentRunner) (*Operations, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	st, err := store.New(fs, "/base/.cursor/agents/state")
	require.NoError(t, err)
	pl := pipeline.New(fs, &fakeDefs{known: agents}, runner, nil)
	ex := executor.New(st, pl, fs)
	return New(fs, "/base", st, pl, ex), fs
}

func basicDef() string {
	return `
name: sample
version: 1
phases:
  - id: planning
    type: iterative
    creator: plan-creator
    reviewers: [architecture]
    verifiers: [integration]
`
}

func TestStartWithUseDefault(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	resp := o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "wf1")

	st, err := o.Store.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, "planning", st.Phase)
}

func TestStartRequiresDefinitionOrDefault(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	resp := o.Start(context.Background(), StartArgs{WorkflowID: "wf1"})
	assert.True(t, resp.IsError)
}

func TestStartWithDefinitionFile(t *testing.T) {
	o, fs := newTestOps(t, nil, &scriptedRunner{})
	require.NoError(t, afero.WriteFile(fs, "/defs/sample.yaml", []byte(basicDef()), 0o644))
	resp := o.Start(context.Background(), StartArgs{DefinitionFile: "/defs/sample.yaml", WorkflowID: "wf2"})
	require.False(t, resp.IsError)
	st, err := o.Store.Get("wf2")
	require.NoError(t, err)
	assert.Equal(t, "planning", st.Phase)
}

func TestStepShortCircuitsAtCheckpoint(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	_, err := o.Store.PauseAtCheckpoint("wf1", "review this")
	require.NoError(t, err)

	resp := o.Step(context.Background(), StepArgs{WorkflowID: "wf1"})
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "review this")
}

func TestStepShortCircuitsAtComplete(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	_, err := o.Store.ApplyUpdate("wf1", store.Update{Status: workflow.StatusComplete})
	require.NoError(t, err)

	resp := o.Step(context.Background(), StepArgs{WorkflowID: "wf1"})
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "already complete")
}

func TestStepRunsCreatorWhenWorking(t *testing.T) {
	o, _ := newTestOps(t, map[string]bool{"plan-creator": true}, &scriptedRunner{def: okResult("a plan")})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})

	resp := o.Step(context.Background(), StepArgs{WorkflowID: "wf1"})
	require.False(t, resp.IsError)
	st, err := o.Store.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCheckpoint, st.Status)
	assert.Len(t, st.Artifacts, 1)
}

func TestContinueAtPostCreatorCheckpointMovesToReviewing(t *testing.T) {
	o, _ := newTestOps(t, map[string]bool{"plan-creator": true}, &scriptedRunner{def: okResult("a plan")})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	o.Step(context.Background(), StepArgs{WorkflowID: "wf1"}) // creator runs, pauses at checkpoint

	resp := o.Continue(context.Background(), ContinueArgs{WorkflowID: "wf1", Decision: "continue"})
	require.False(t, resp.IsError)
	st, err := o.Store.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusReviewing, st.Status)
	assert.Equal(t, 1, st.Iteration)
}

func TestContinueRequiresCheckpoint(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	resp := o.Continue(context.Background(), ContinueArgs{WorkflowID: "wf1", Decision: "continue"})
	assert.True(t, resp.IsError)
}

func TestContinueIterateRequiresFeedback(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	o.Store.PauseAtCheckpoint("wf1", "msg")
	resp := o.Continue(context.Background(), ContinueArgs{WorkflowID: "wf1", Decision: "iterate"})
	assert.True(t, resp.IsError)
}

func TestContinueApproveWithNextPhaseTransitions(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	o.Store.PauseAtCheckpoint("wf1", "msg")

	resp := o.Continue(context.Background(), ContinueArgs{WorkflowID: "wf1", Decision: "approve", NextPhase: "implementation"})
	require.False(t, resp.IsError)
	st, err := o.Store.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, "implementation", st.Phase)
	assert.Equal(t, 1, st.Iteration)
	assert.Equal(t, workflow.StatusWorking, st.Status)
}

func TestRejectWithRestartFrom(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	o.Store.PauseAtCheckpoint("wf1", "msg")

	resp := o.Reject(context.Background(), RejectArgs{WorkflowID: "wf1", Reason: "not good enough", RestartFrom: "planning"})
	require.False(t, resp.IsError)
	st, err := o.Store.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, "planning", st.Phase)
	assert.Equal(t, workflow.StatusIdle, st.Status)
}

func TestRejectReasonTooShort(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	o.Store.PauseAtCheckpoint("wf1", "msg")
	resp := o.Reject(context.Background(), RejectArgs{WorkflowID: "wf1", Reason: "short"})
	assert.True(t, resp.IsError)
}

func TestStatusReportIncludesOverviewAndArtifacts(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	o.Start(context.Background(), StartArgs{UseDefault: true, WorkflowID: "wf1"})
	_, err := o.Store.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactPlan, File: "/out/planning/planning-v1.md", CreatedBy: "plan-creator"})
	require.NoError(t, err)

	resp := o.Status(context.Background(), StatusArgs{WorkflowID: "wf1"})
	require.False(t, resp.IsError)
	report := resp.Content[0].Text
	assert.Contains(t, report, "wf1")
	assert.Contains(t, report, "planning-v1.md")
}

func TestListAgentsRendersEachDefinition(t *testing.T) {
	o, _ := newTestOps(t, map[string]bool{"architecture": true, "integration": true}, &scriptedRunner{})
	resp := o.ListAgents(context.Background())
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "architecture")
	assert.Contains(t, resp.Content[0].Text, "integration")
}

func TestRunSingleAgentValidatesAgentName(t *testing.T) {
	o, _ := newTestOps(t, nil, &scriptedRunner{})
	resp := o.RunSingleAgent(context.Background(), RunSingleAgentArgs{Agent: "bad name!", Prompt: "hi"})
	assert.True(t, resp.IsError)
}

func TestRunSingleAgentSuccess(t *testing.T) {
	o, _ := newTestOps(t, map[string]bool{"architecture": true}, &scriptedRunner{def: okResult("looks fine")})
	resp := o.RunSingleAgent(context.Background(), RunSingleAgentArgs{Agent: "architecture", Prompt: "review this"})
	require.False(t, resp.IsError)
	assert.Equal(t, "looks fine", resp.Content[0].Text)
}

func TestRunAgentsFanOut(t *testing.T) {
	o, _ := newTestOps(t, map[string]bool{"a": true, "b": true}, &scriptedRunner{def: okResult("ok")})
	resp := o.RunAgents(context.Background(), RunAgentsArgs{Agents: []string{"a", "b"}, Prompt: "go"})
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "a")
	assert.Contains(t, resp.Content[0].Text, "b")
}

func TestRunVerifiersSkipsUnmapped(t *testing.T) {
	o, fs := newTestOps(t, map[string]bool{"integration": true}, &scriptedRunner{def: okResult("Recommendation: APPROVE")})
	require.NoError(t, afero.WriteFile(fs, "/artifact.md", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/review.md", []byte("y"), 0o644))

	resp := o.RunVerifiers(context.Background(), RunVerifiersArgs{
		ArtifactFile: "/artifact.md",
		Pairs: []pipeline.ReviewPair{
			{Reviewer: "architecture", ReviewFile: "/review.md"},
			{Reviewer: "unmapped", ReviewFile: "/review.md"},
		},
	})
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "skipped")
}
