package store

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Create("wf-1", workflow.PhasePlanning)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", st.WorkflowID)
	assert.Equal(t, 1, st.Iteration)
	assert.Equal(t, workflow.StatusWorking, st.Status)

	got, err := s.Get("wf-1")
	require.NoError(t, err)
	assert.Equal(t, st.WorkflowID, got.WorkflowID)
	assert.Equal(t, st.Phase, got.Phase)
}

func TestCreateAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-1", workflow.PhasePlanning)
	require.NoError(t, err)

	_, err = s.Create("wf-1", workflow.PhasePlanning)
	require.Error(t, err)
	e, ok := conclaveerr.As(err)
	require.True(t, ok)
	assert.Equal(t, conclaveerr.CodeValidation, e.Code)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	require.Error(t, err)
	e, ok := conclaveerr.As(err)
	require.True(t, ok)
	assert.Equal(t, conclaveerr.CodeNotFoundWorkflow, e.Code)
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore(t)
	a, err := s.GetOrCreate("wf-2", workflow.PhasePlanning)
	require.NoError(t, err)
	b, err := s.GetOrCreate("wf-2", workflow.PhaseImplementation)
	require.NoError(t, err)
	assert.Equal(t, a.Phase, b.Phase, "second call must not overwrite an existing workflow")
}

func TestAddArtifactSetsCurrentArtifact(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-3", workflow.PhasePlanning)
	require.NoError(t, err)

	st, err := s.AddArtifact("wf-3", workflow.ArtifactRecord{
		Iteration: 1, Type: workflow.ArtifactPlan, File: "plan.md", CreatedBy: "planner",
	})
	require.NoError(t, err)
	assert.Equal(t, "plan.md", st.CurrentArtifact)
	require.Len(t, st.Artifacts, 1)
}

func TestFeedbackLifecycle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-4", workflow.PhaseImplementation)
	require.NoError(t, err)

	_, err = s.AddFeedback("wf-4", workflow.FeedbackRecord{
		Iteration: 1, Reviewer: "architecture", FeedbackFile: "fb.md",
	})
	require.NoError(t, err)

	unaddressed, err := s.GetUnaddressedFeedback("wf-4", 1)
	require.NoError(t, err)
	require.Len(t, unaddressed, 1)

	st, err := s.MarkFeedbackAddressed("wf-4", 1, "architecture")
	require.NoError(t, err)
	assert.True(t, st.FeedbackHistory[0].Addressed)

	unaddressed, err = s.GetUnaddressedFeedback("wf-4", 1)
	require.NoError(t, err)
	assert.Empty(t, unaddressed)
}

func TestAgentRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-5", workflow.PhasePlanning)
	require.NoError(t, err)

	_, idx, err := s.RecordAgentRun("wf-5", workflow.AgentRunRecord{Agent: "planner", Iteration: 1})
	require.NoError(t, err)

	st, err := s.CompleteAgentRun("wf-5", idx, true, "")
	require.NoError(t, err)
	require.Len(t, st.AgentRuns, 1)
	require.NotNil(t, st.AgentRuns[0].CompletedAt)
	require.NotNil(t, st.AgentRuns[0].Success)
	assert.True(t, *st.AgentRuns[0].Success)
}

func TestCheckpointDecisions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-6", workflow.PhasePlanning)
	require.NoError(t, err)

	st, err := s.RecordCheckpoint("wf-6", workflow.DecisionIterate, "needs more detail")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Iteration)
	assert.Equal(t, workflow.StatusWorking, st.Status)

	st, err = s.RecordCheckpoint("wf-6", workflow.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusComplete, st.Status)
}

func TestVerifierResolution(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-7", workflow.PhasePlanning)
	require.NoError(t, err)

	v, ok, err := s.GetVerifierForReviewer("wf-7", "architecture")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "integration", v)
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-a", workflow.PhasePlanning)
	require.NoError(t, err)
	_, err = s.Create("wf-b", workflow.PhasePlanning)
	require.NoError(t, err)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-a", "wf-b"}, ids)

	require.NoError(t, s.Delete("wf-a"))
	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-b"}, ids)

	_, err = s.Get("wf-a")
	require.Error(t, err)
}

func TestLatestArtifactByType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("wf-8", workflow.PhasePlanning)
	require.NoError(t, err)

	_, err = s.AddArtifact("wf-8", workflow.ArtifactRecord{Iteration: 1, Type: workflow.ArtifactReview, File: "r1.md"})
	require.NoError(t, err)
	_, err = s.AddArtifact("wf-8", workflow.ArtifactRecord{Iteration: 2, Type: workflow.ArtifactReview, File: "r2.md"})
	require.NoError(t, err)

	latest, ok, err := s.GetLatestArtifactByType("wf-8", workflow.ArtifactReview)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "r2.md", latest.File)

	_, ok, err = s.GetLatestArtifactByType("wf-8", workflow.ArtifactVerification)
	require.NoError(t, err)
	assert.False(t, ok)
}
