// Package workflow holds the declarative and mutable data model shared by
// the definition loader, the state store, and the executor: phases,
// workflow state, and the records that make up a workflow's audit trail.
package workflow

import "time"

// Phase names. A PhaseDefinition's ID and a WorkflowState's Phase are both
// drawn from this set, plus whatever custom phase IDs the definition
// declares.
const (
	PhasePlanning       = "planning"
	PhaseImplementation = "implementation"
	PhaseTestingSetup   = "testing-setup"
	PhaseTestingExec    = "testing-execution"
)

// Status values for WorkflowState.Status.
const (
	StatusIdle       = "idle"
	StatusWorking    = "working"
	StatusReviewing  = "reviewing"
	StatusVerifying  = "verifying"
	StatusCheckpoint = "checkpoint"
	StatusComplete   = "complete"
	StatusRejected   = "rejected"
)

// Checkpoint decisions.
const (
	DecisionContinue = "continue"
	DecisionIterate  = "iterate"
	DecisionApprove  = "approve"
	DecisionReject   = "reject"
)

// Artifact types.
const (
	ArtifactPlan          = "plan"
	ArtifactReview        = "review"
	ArtifactVerification  = "verification"
	ArtifactImplementation = "implementation"
	ArtifactTestResult    = "test-result"
)

// Restart targets accepted by the reject operation (§4.5); "current"
// means "whatever WorkflowState.Phase currently is".
const (
	RestartCurrent = "current"
)

// Definition is the top-level, immutable-after-load workflow definition
// (spec.md §3 WorkflowDefinition).
type Definition struct {
	Name        string
	Version     int
	Description string
	Variables   map[string]any
	Phases      []Phase
	OutputDir   string
	InputFile   string
}

// PhaseByID returns the phase with the given ID, or (Phase{}, false).
func (d *Definition) PhaseByID(id string) (Phase, bool) {
	for _, p := range d.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// PhaseIndex returns the index of the phase with the given ID, or -1.
func (d *Definition) PhaseIndex(id string) int {
	for i, p := range d.Phases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Phase type discriminators.
const (
	PhaseTypeIterative     = "iterative"
	PhaseTypeTestExecution = "test-execution"
)

// There is no OnFail counterpart to the teacher's config.OnFail shape:
// nothing in spec.md's phase model uses goto-on-fail — phase failure
// handling in this spec is entirely checkpoint-driven. Phase looping is
// expressed instead through min/max iterations and checkpoint decisions.

// Phase is a tagged variant over {iterative, test-execution}
// (spec.md §3 PhaseDefinition). Both variants' fields live on one struct;
// which fields apply is determined by Type.
type Phase struct {
	ID   string
	Type string // iterative | test-execution

	// iterative
	Creator   string
	Reviewers []string
	Verifiers []string

	// test-execution
	Tester string
	Fixer  string

	// shared, optional
	Outputs           map[string]string
	Context           []string
	MinIterations     int
	MaxIterations     int
	HasMaxIterations  bool
	CheckpointMessage string
}

// ArtifactRecord documents one produced artifact (spec.md §3).
type ArtifactRecord struct {
	Iteration int       `json:"iteration"`
	Type      string    `json:"type"`
	File      string    `json:"file"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackRecord documents one reviewer's feedback (spec.md §3).
type FeedbackRecord struct {
	Iteration    int       `json:"iteration"`
	Reviewer     string    `json:"reviewer"`
	FeedbackFile string    `json:"feedback_file"`
	Addressed    bool      `json:"addressed"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckpointRecord documents one operator decision (spec.md §3).
type CheckpointRecord struct {
	Iteration int       `json:"iteration"`
	Decision  string    `json:"decision"`
	Feedback  string    `json:"feedback,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// AgentRunRecord documents one agent invocation (spec.md §3).
type AgentRunRecord struct {
	Agent        string     `json:"agent"`
	Iteration    int        `json:"iteration"`
	ContextFiles []string   `json:"context_files"`
	OutputFile   string     `json:"output_file"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Success      *bool      `json:"success,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// State is the mutable, persisted-per-workflow state (spec.md §3).
type State struct {
	WorkflowID string `json:"workflow_id"`
	Phase      string `json:"phase"`
	Iteration  int    `json:"iteration"`
	Status     string `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Artifacts         []ArtifactRecord   `json:"artifacts"`
	FeedbackHistory   []FeedbackRecord   `json:"feedback_history"`
	CheckpointsPassed []CheckpointRecord `json:"checkpoints_passed"`
	AgentRuns         []AgentRunRecord   `json:"agent_runs"`

	ReviewerVerifierMap map[string]string `json:"reviewer_verifier_map,omitempty"`

	CurrentArtifact   string `json:"current_artifact,omitempty"`
	CheckpointMessage string `json:"checkpoint_message,omitempty"`
}

// DefaultReviewerVerifierMap is the built-in override-then-default table
// (spec.md §9 "Replacing reviewer/verifier map as mutable global").
func DefaultReviewerVerifierMap() map[string]string {
	return map[string]string{
		"architecture": "integration",
		"integration":  "security",
		"security":     "architecture",
		"logic":        "patterns",
		"patterns":     "operations",
		"operations":   "logic",
		"coverage":     "quality",
		"quality":      "reliability",
		"reliability":  "coverage",
	}
}

// HasFeedbackForIteration reports whether any FeedbackRecord exists for
// the given iteration, used to tell a post-creator checkpoint (no
// reviews recorded yet) apart from a post-verification checkpoint.
func (s *State) HasFeedbackForIteration(iteration int) bool {
	for _, f := range s.FeedbackHistory {
		if f.Iteration == iteration {
			return true
		}
	}
	return false
}

// VerifierFor resolves a reviewer to its verifier: custom map first (if
// non-nil and containing the key), falling back to the built-in default.
// Returns ("", false) if neither table maps the reviewer.
func VerifierFor(custom map[string]string, reviewer string) (string, bool) {
	if custom != nil {
		if v, ok := custom[reviewer]; ok {
			return v, true
		}
	}
	v, ok := DefaultReviewerVerifierMap()[reviewer]
	return v, ok
}
