package docs

var topics = []Topic{
	{
		Name:    "quickstart",
		Title:   "Quick Start",
		Summary: "Getting started with conclave",
		Content: topicQuickstart,
	},
	{
		Name:    "workflow",
		Title:   "Workflow Definitions",
		Summary: "YAML schema for phases, creators, reviewers, and verifiers",
		Content: topicWorkflow,
	},
	{
		Name:    "checkpoints",
		Title:   "Checkpoints and Decisions",
		Summary: "How continue, iterate, approve, and reject transitions work",
		Content: topicCheckpoints,
	},
	{
		Name:    "agents",
		Title:   "Agent Definitions",
		Summary: "Markdown + frontmatter format for .conclave/agents/*.md",
		Content: topicAgents,
	},
	{
		Name:    "mcp",
		Title:   "MCP Server",
		Summary: "Running conclave as an MCP tool server for an AI coding assistant",
		Content: topicMCP,
	},
	{
		Name:    "state",
		Title:   "Workflow State",
		Summary: "Structure of .cursor/agents/state/ and .conclave/ and what gets persisted",
		Content: topicState,
	},
}

const topicQuickstart = `Quick Start
===========

1. Initialize a project:

    cd your-project
    conclave init

   This creates .cursor/agents/workflows/default.yaml (the core
   persisted state tree) and starter agent definitions under
   .conclave/agents/ (the agent-definition store).

2. Start a workflow:

    conclave start --use-default --workflow-id my-feature

3. Advance it one transition at a time:

    conclave step my-feature

   Each step runs the next creator, reviewer set, verifier set, tester,
   or fixer, then reports the workflow's new status (which may be a
   checkpoint awaiting a decision).

4. Resolve a checkpoint:

    conclave continue my-feature --decision approve
    conclave continue my-feature --decision iterate --feedback "..."
    conclave reject my-feature --reason "..." --restart-from planning

5. Check progress:

    conclave status my-feature

CLI Flags
---------

  --base-dir       Root directory for .cursor/agents/ state and .conclave/ agent definitions, sessions
  --agent-binary   CLI agent binary to invoke (default: claude)
`

const topicWorkflow = `Workflow Definitions
====================

A workflow definition is a YAML document with a name, a version, and a
list of phases. Each phase is one of two types:

  iterative phase:
    id: planning
    type: iterative
    creator: plan-creator
    reviewers: [architecture, security]
    verifiers: [integration, security-review]
    min_iterations: 1
    max_iterations: 3
    checkpoint_message: "Plan ready for review"

    The creator produces an artifact. Every reviewer then reviews it in
    parallel; each reviewer's feedback is checked by its mapped
    verifier (see 'conclave docs checkpoints'). The phase holds at a
    checkpoint after the creator runs. After verification it advances
    to the next phase when every verifier succeeded and min_iterations
    is reached (or unconditionally at max_iterations); otherwise it
    holds at a checkpoint.

  test-execution phase:
    id: testing-execution
    type: test-execution
    tester: test-runner
    fixer: bug-fixer
    max_iterations: 5

    The tester runs and the phase holds at a checkpoint. An 'iterate'
    decision dispatches the fixer, after which the tester re-runs; once
    max_iterations is reached the workflow completes.

Shared fields: 'outputs' (named output paths), 'context' (file paths,
interpolated, attached to the creator's or tester's invocation when the
file exists; glob patterns are not expanded).

Load a definition explicitly with --definition-file, or use the
built-in default with --use-default (see C2's Default()).
`

const topicCheckpoints = `Checkpoints and Decisions
=========================

A workflow pauses at a checkpoint after each creator run, after each
tester run, and after a verification round that does not advance the
phase. 'conclave continue <id>' resumes it with one of three decisions:

  continue   Acknowledge and move forward (creator checkpoint: go to
             review; verification checkpoint: iteration unchanged).
  iterate    Send the artifact back for another pass. Requires
             --feedback. On a test-execution phase this dispatches the
             fixer instead of incrementing toward the tester again.
  approve    Move on. From the last phase's checkpoint, pass
             --next-phase to jump directly to another phase.

'conclave reject <id> --reason "..."' ends the current attempt outright.
Pass --restart-from <phase|current> to reset iteration and resume from
a specific phase instead of leaving the workflow rejected.
`

const topicAgents = `Agent Definitions
=================

Agents are Markdown files with YAML frontmatter under
.conclave/agents/<name>.md:

    ---
    name: plan-creator
    description: Produces an implementation plan from a ticket
    model: claude-opus-4-5
    ---
    You are a senior engineer producing an implementation plan...

All frontmatter fields are optional: 'name' defaults to the file name
without '.md', and 'model' falls back to the pipeline default when
omitted. The body below the
frontmatter is used verbatim as the agent's system prompt.

List known agents with 'conclave agents list'; invoke one directly
(outside of any workflow) with 'conclave agents run <agent> <prompt>'.
`

const topicMCP = `MCP Server
==========

'conclave serve' runs the nine workflow and agent operations as MCP
tools over stdio (start, step, continue, reject, status,
list_agents, run_single_agent, run_agents, run_verifiers), so an AI
coding assistant can drive workflows directly. Point your assistant's
MCP client configuration at the conclave binary with 'serve' as the
argument and --base-dir set to your project root.
`

const topicState = `Workflow State
==============

.cursor/agents/state/<workflow_id>.json holds the full persisted state:
phase, iteration, status, artifacts, feedback history, checkpoints
passed, and agent run records. It is safe to inspect directly; external
edits are picked up by the store's filesystem watcher and invalidate
the in-process cache entry for that workflow.

Workflow definitions live under .cursor/agents/workflows/, and produced
artifacts (the default output_dir) under .cursor/agents/workflow/.
Ad-hoc agent run output lives under .cursor/agents/agents/outputs/ and
ad-hoc verifier output under .cursor/agents/agents/verifications/.

Agent definitions and session history are a separate tree: agent
definitions under .conclave/agents/*.md, session history under
.conclave/sessions/<session_id>.json.
`
