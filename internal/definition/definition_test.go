package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorge-barreto/conclave/internal/workflow"
)

const validYAML = `
name: demo
version: 1
phases:
  - id: planning
    type: iterative
    creator: plan-creator
    reviewers: [architecture, integration]
    verifiers: [integration, architecture]
  - id: testing-execution
    type: test-execution
    tester: test-runner
    fixer: test-fixer
`

func TestLoadFromStringValid(t *testing.T) {
	r := LoadFromString(validYAML)
	require.True(t, r.Success, r.Error)
	require.NotNil(t, r.Definition)
	assert.Equal(t, "demo", r.Definition.Name)
	assert.Equal(t, 1, r.Definition.Version)
	require.Len(t, r.Definition.Phases, 2)
	assert.Equal(t, defaultOutputDir, r.Definition.OutputDir)
	assert.Equal(t, 1, r.Definition.Phases[0].MinIterations)
}

func TestLoadFromStringNotAnObject(t *testing.T) {
	r := LoadFromString("- 1\n- 2\n")
	assert.False(t, r.Success)
}

func TestLoadFromStringMissingName(t *testing.T) {
	r := LoadFromString("version: 1\nphases: [{id: x, type: iterative}]\n")
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "name")
}

func TestLoadFromStringReviewerVerifierMismatch(t *testing.T) {
	r := LoadFromString(`
name: demo
version: 1
phases:
  - id: planning
    type: iterative
    creator: plan-creator
    reviewers: [a, b]
    verifiers: [a]
`)
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "equal length")
}

func TestLoadFromStringTestExecutionMissingFixer(t *testing.T) {
	r := LoadFromString(`
name: demo
version: 1
phases:
  - id: testing-execution
    type: test-execution
    tester: test-runner
`)
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "fixer")
}

func TestInterpolateVariablesAndSpecials(t *testing.T) {
	ctx := &Context{
		Variables: map[string]any{"output_dir": ".cursor/agents/workflow"},
		Iteration: 3,
		Phase:     "planning",
	}
	got := Interpolate("{{ output_dir }}/planning/planning-v{{ iteration }}.md ({{ phase }})", ctx)
	assert.Equal(t, ".cursor/agents/workflow/planning/planning-v3.md (planning)", got)
}

func TestInterpolateUnknownLeftLiteral(t *testing.T) {
	ctx := &Context{}
	got := Interpolate("{{ mystery }}", ctx)
	assert.Equal(t, "{{ mystery }}", got)
}

func TestInterpolatePhaseDotted(t *testing.T) {
	ctx := &Context{
		Phases: map[string]PhaseOutputs{
			"planning": {"artifact": "out/planning/planning-v1.md"},
		},
	}
	got := Interpolate("{{ phases.planning.outputs.artifact }}", ctx)
	assert.Equal(t, "out/planning/planning-v1.md", got)
}

func TestInterpolateOutputsNilIsNil(t *testing.T) {
	assert.Nil(t, InterpolateOutputs(nil, &Context{}))
}

func TestDefaultWorkflowShape(t *testing.T) {
	def := Default()
	require.Len(t, def.Phases, 4)
	assert.Equal(t, workflow.PhasePlanning, def.Phases[0].ID)
	assert.Equal(t, workflow.PhaseTestingExec, def.Phases[3].ID)
	assert.Equal(t, workflow.PhaseTypeTestExecution, def.Phases[3].Type)
	assert.Len(t, def.Phases[0].Reviewers, len(def.Phases[0].Verifiers))
}

func TestDefaultWorkflowRoundTrips(t *testing.T) {
	data, err := Marshal(Default())
	require.NoError(t, err)
	r := LoadFromString(string(data))
	require.True(t, r.Success, r.Error)
	assert.Equal(t, "default", r.Definition.Name)
	require.Len(t, r.Definition.Phases, 4)
}
