package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// fakeDefs and scriptedRunner are local counterparts of the fakeDefs and
// fakeRunner test doubles in internal/pipeline's own tests, which are
// unexported there.
type fakeDefs struct{ known map[string]bool }

func (f *fakeDefs) ListAgents(ctx context.Context) ([]pipeline.AgentDefinition, error) {
	var out []pipeline.AgentDefinition
	for name := range f.known {
		out = append(out, pipeline.AgentDefinition{Name: name})
	}
	return out, nil
}

func (f *fakeDefs) GetAgent(ctx context.Context, name string) (*pipeline.AgentDefinition, bool, error) {
	if !f.known[name] {
		return nil, false, nil
	}
	return &pipeline.AgentDefinition{Name: name}, true, nil
}

// scriptedRunner returns byAgent[agent] when the agent has an entry there,
// and def for every other agent.
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

func okResult(text string) pipeline.RunResult {
	return pipeline.RunResult{Stdout: fmt.Sprintf(`{"result":%q}`, text), ExitCode: 0}
}

func failResult() pipeline.RunResult {
	return pipeline.RunResult{Stdout: "boom", ExitCode: 1}
}

func newTestExecutor(t *testing.T, agents map[string]bool, runner pipeline.AgentRunner) (*Executor, *store.Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	st, err := store.New(fs, "/state")
	require.NoError(t, err)
	pl := pipeline.New(fs, &fakeDefs{known: agents}, runner, nil)
	return New(st, pl, fs), st, fs
}

func iterativeDef() *workflow.Definition {
	return &workflow.Definition{
		Name:      "test-workflow",
		OutputDir: "/out",
		Variables: map[string]any{},
		Phases: []workflow.Phase{
			{
				ID:            "planning",
				Type:          workflow.PhaseTypeIterative,
				Creator:       "plan-creator",
				Reviewers:     []string{"architecture"},
				Verifiers:     []string{"integration"},
				MinIterations: 1,
			},
			{
				ID:   "implementation",
				Type: workflow.PhaseTypeIterative,
				Creator:       "implementer",
				Reviewers:     []string{"logic"},
				Verifiers:     []string{"patterns"},
				MinIterations: 1,
			},
		},
	}
}

func testExecDef() *workflow.Definition {
	return &workflow.Definition{
		Name:      "test-exec-workflow",
		OutputDir: "/out",
		Variables: map[string]any{},
		Phases: []workflow.Phase{
			{
				ID:               "testing-execution",
				Type:             workflow.PhaseTypeTestExecution,
				Tester:           "tester",
				Fixer:            "fixer",
				HasMaxIterations: true,
				MaxIterations:    2,
			},
		},
	}
}

func TestStartWorkflowNoPhases(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil, &scriptedRunner{})
	_, err := e.StartWorkflow(&workflow.Definition{}, "wf1", "")
	require.Error(t, err)
}

func TestStartWorkflowCreatesStateAtFirstPhase(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil, &scriptedRunner{})
	def := iterativeDef()
	st, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	assert.Equal(t, "planning", st.Phase)
	assert.Equal(t, 1, st.Iteration)
	assert.Equal(t, workflow.StatusWorking, st.Status)
}

func TestStartWorkflowAttachesInputFile(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil, &scriptedRunner{})
	def := iterativeDef()
	st, err := e.StartWorkflow(def, "wf1", "/in/requirements.md")
	require.NoError(t, err)
	assert.Equal(t, "/in/requirements.md", st.CurrentArtifact)
}

func TestExecuteStepCreatorSuccessPausesAtCheckpoint(t *testing.T) {
	e, s, _ := newTestExecutor(t, map[string]bool{"plan-creator": true}, &scriptedRunner{def: okResult("plan body")})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.False(t, report.NoOp)
	assert.Equal(t, workflow.StatusCheckpoint, report.State.Status)
	require.Len(t, report.State.Artifacts, 1)
	assert.Equal(t, workflow.ArtifactPlan, report.State.Artifacts[0].Type)
	assert.Equal(t, "plan-creator", report.State.Artifacts[0].CreatedBy)

	// the store itself agrees
	persisted, err := s.Get("wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCheckpoint, persisted.Status)
}

func TestExecuteStepCreatorFailurePausesWithErrorMessage(t *testing.T) {
	e, _, _ := newTestExecutor(t, map[string]bool{"plan-creator": true}, &scriptedRunner{def: failResult()})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCheckpoint, report.State.Status)
	assert.Contains(t, report.Message, "plan-creator")
	assert.Empty(t, report.State.Artifacts)
}

func TestExecuteStepCheckpointIsNoOp(t *testing.T) {
	e, s, _ := newTestExecutor(t, nil, &scriptedRunner{})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.PauseAtCheckpoint("wf1", "hold here")
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.True(t, report.NoOp)
	assert.Equal(t, "hold here", report.Message)
}

func TestExecuteStepReviewingFansOutReviewersAndTransitionsToVerifying(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"architecture": true}, &scriptedRunner{def: okResult("looks good")})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactPlan, File: "/out/planning/planning-v1.md", CreatedBy: "plan-creator"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/out/planning/planning-v1.md", []byte("plan"), 0o644))
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusReviewing})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusVerifying, report.State.Status)
	require.Len(t, report.State.FeedbackHistory, 1)
	assert.Equal(t, "architecture", report.State.FeedbackHistory[0].Reviewer)
	assert.False(t, report.State.FeedbackHistory[0].Addressed)
}

func TestExecuteStepVerifyingAdvancesPhaseWhenAllSucceedAndMinIterationsMet(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"integration": true}, &scriptedRunner{def: okResult("verified")})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactPlan, File: "/out/planning/planning-v1.md", CreatedBy: "plan-creator"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/out/planning/planning-v1.md", []byte("plan"), 0o644))
	_, err = s.AddFeedback("wf1", workflow.FeedbackRecord{Iteration: 1, Reviewer: "architecture", FeedbackFile: "/out/planning/reviews/architecture-v1.md"})
	require.NoError(t, err)
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusVerifying})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "implementation", report.State.Phase)
	assert.Equal(t, 1, report.State.Iteration)
	assert.Equal(t, workflow.StatusWorking, report.State.Status)

	// the architecture feedback was marked addressed by its paired verifier
	addressed := false
	for _, f := range report.State.FeedbackHistory {
		if f.Reviewer == "architecture" && f.Addressed {
			addressed = true
		}
	}
	assert.True(t, addressed)
}

func TestExecuteStepVerifyingPausesAtCheckpointWhenAVerifierFails(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"integration": true}, &scriptedRunner{def: failResult()})
	def := iterativeDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactPlan, File: "/out/planning/planning-v1.md", CreatedBy: "plan-creator"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/out/planning/planning-v1.md", []byte("plan"), 0o644))
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusVerifying})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "planning", report.State.Phase)
	assert.Equal(t, workflow.StatusCheckpoint, report.State.Status)
	// Only the plan added above; the failed verifier records no artifact.
	assert.Len(t, report.State.Artifacts, 1)
}

func TestExecuteStepVerifyingForcesAdvanceAtMaxIterations(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"integration": true}, &scriptedRunner{def: failResult()})
	def := iterativeDef()
	def.Phases[0].HasMaxIterations = true
	def.Phases[0].MaxIterations = 1
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactPlan, File: "/out/planning/planning-v1.md", CreatedBy: "plan-creator"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/out/planning/planning-v1.md", []byte("plan"), 0o644))
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusVerifying})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "implementation", report.State.Phase)
	assert.Equal(t, workflow.StatusWorking, report.State.Status)
}

func TestExecuteTestExecutionTesterPausesAtCheckpointOnSuccess(t *testing.T) {
	e, _, _ := newTestExecutor(t, map[string]bool{"tester": true}, &scriptedRunner{def: okResult("all green")})
	def := testExecDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCheckpoint, report.State.Status)
	require.Len(t, report.State.Artifacts, 1)
	assert.Equal(t, workflow.ArtifactTestResult, report.State.Artifacts[0].Type)
}

func TestExecuteTestExecutionFixerIncrementsIterationOnSuccess(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"fixer": true}, &scriptedRunner{def: okResult("fixed")})
	def := testExecDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	_, err = s.AddArtifact("wf1", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactTestResult, File: "/out/testing-execution/testing-execution-v1.md", CreatedBy: "tester"})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/out/testing-execution/testing-execution-v1.md", []byte("failures: 2"), 0o644))
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusVerifying})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusWorking, report.State.Status)
	assert.Equal(t, 2, report.State.Iteration)
	require.Len(t, report.State.Artifacts, 2)
	assert.Equal(t, workflow.ArtifactImplementation, report.State.Artifacts[1].Type)
}

// testExecDefWithOutputs mirrors the Outputs shape Default() actually
// produces for the testing-execution phase, unlike testExecDef's bare
// fixture which falls back to defaultArtifactPath for both tester and
// fixer and so can't exercise a shared-key collision between them.
func testExecDefWithOutputs() *workflow.Definition {
	def := testExecDef()
	def.Variables = map[string]any{"output_dir": "/out"}
	def.Phases[0].Outputs = map[string]string{
		"artifact":     "{{ output_dir }}/testing-execution/run-v{{ iteration }}.md",
		"test_results": "{{ output_dir }}/testing-execution",
		"fixes":        "{{ output_dir }}/testing-execution/fix-v{{ iteration }}.md",
	}
	return def
}

func TestExecuteTestExecutionFixerDoesNotOverwriteTesterOutput(t *testing.T) {
	e, s, fs := newTestExecutor(t, map[string]bool{"tester": true, "fixer": true}, &scriptedRunner{
		byAgent: map[string]pipeline.RunResult{
			"tester": okResult("failures: 2"),
			"fixer":  okResult("fixed"),
		},
	})
	def := testExecDefWithOutputs()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	require.Len(t, report.State.Artifacts, 1)
	testerArtifact := report.State.Artifacts[0]
	assert.Equal(t, workflow.ArtifactTestResult, testerArtifact.Type)
	assert.Equal(t, "/out/testing-execution/run-v1.md", testerArtifact.File)

	testerContent, err := afero.ReadFile(fs, testerArtifact.File)
	require.NoError(t, err)

	// The iterate-on-test-execution special case reverts iteration back
	// down by one and dispatches the fixer at the same iteration number
	// the tester just used.
	_, err = s.ApplyUpdate("wf1", store.Update{Status: workflow.StatusVerifying})
	require.NoError(t, err)

	report, err = e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	require.Len(t, report.State.Artifacts, 2)
	fixerArtifact := report.State.Artifacts[1]
	assert.Equal(t, workflow.ArtifactImplementation, fixerArtifact.Type)

	assert.NotEqual(t, testerArtifact.File, fixerArtifact.File,
		"tester and fixer must not resolve to the same output path at the same iteration")

	stillThere, err := afero.ReadFile(fs, testerArtifact.File)
	require.NoError(t, err)
	assert.Equal(t, testerContent, stillThere, "fixer run must not overwrite the tester's persisted output")
}

func TestExecuteTestExecutionCompletesAtMaxIterations(t *testing.T) {
	e, s, _ := newTestExecutor(t, nil, &scriptedRunner{})
	def := testExecDef()
	_, err := e.StartWorkflow(def, "wf1", "")
	require.NoError(t, err)
	two := 2
	_, err = s.ApplyUpdate("wf1", store.Update{Iteration: &two, Status: workflow.StatusWorking})
	require.NoError(t, err)

	report, err := e.ExecuteStep(context.Background(), def, "wf1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusComplete, report.State.Status)
}

func TestAttributeArtifactPathContainmentWins(t *testing.T) {
	def := iterativeDef()
	a := workflow.ArtifactRecord{Type: workflow.ArtifactPlan, File: "/out/implementation/implementation-v1.md", CreatedBy: "plan-creator"}
	phaseID, ok := attributeArtifact(def, a)
	require.True(t, ok)
	assert.Equal(t, "implementation", phaseID)
}

func TestAttributeArtifactTypeFallbackForTestResult(t *testing.T) {
	def := iterativeDef()
	a := workflow.ArtifactRecord{Type: workflow.ArtifactTestResult, File: "/no/phase/hint/here.md", CreatedBy: "tester"}
	phaseID, ok := attributeArtifact(def, a)
	require.True(t, ok)
	assert.Equal(t, workflow.PhaseTestingExec, phaseID)
}

func TestAttributeArtifactPlanFallbackUsesCreatorPrefix(t *testing.T) {
	def := iterativeDef()
	a := workflow.ArtifactRecord{Type: workflow.ArtifactPlan, File: "/no/phase/hint/here.md", CreatedBy: "test-planner"}
	phaseID, ok := attributeArtifact(def, a)
	require.True(t, ok)
	assert.Equal(t, workflow.PhaseTestingSetup, phaseID)
}

func TestAttributeArtifactPlanFallbackDefaultsToImplementation(t *testing.T) {
	def := iterativeDef()
	a := workflow.ArtifactRecord{Type: workflow.ArtifactPlan, File: "/no/phase/hint/here.md", CreatedBy: "implementer"}
	phaseID, ok := attributeArtifact(def, a)
	require.True(t, ok)
	assert.Equal(t, workflow.PhaseImplementation, phaseID)
}
