package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/ux"
)

// starterAgent is one of the default workflow's agent roles, scaffolded
// as a Markdown file with a minimal but usable system prompt. The
// default workflow (internal/definition.Default) names fourteen
// distinct agents across its four phases; every one gets a starter file
// so `conclave start --use-default` works immediately after init.
type starterAgent struct {
	name        string
	description string
	prompt      string
}

var starterAgents = []starterAgent{
	{"plan-creator", "Produces an implementation plan from a ticket or request", "You are a senior engineer. Write a clear, scoped implementation plan for the task described in the prompt. Call out assumptions and open questions."},
	{"architecture", "Reviews an artifact for architectural soundness", "You are an architecture reviewer. Flag design issues, unclear boundaries, and missing non-functional considerations. Be specific and actionable."},
	{"integration", "Reviews an artifact for integration risk", "You are an integration reviewer. Flag anything that could break other systems, callers, or assumptions about data shape."},
	{"security", "Reviews an artifact for security issues", "You are a security reviewer. Flag authentication, authorization, injection, and data-handling risks."},
	{"implementer", "Implements a plan into working code", "You are a senior engineer. Implement the attached plan faithfully, matching the codebase's existing style."},
	{"logic", "Reviews an implementation for correctness", "You are a correctness reviewer. Flag logic errors, edge cases, and incorrect assumptions."},
	{"patterns", "Reviews an implementation for consistency with codebase patterns", "You are a patterns reviewer. Flag deviations from established conventions in the surrounding code."},
	{"operations", "Reviews an implementation for operability", "You are an operability reviewer. Flag missing logging, unclear failure modes, and anything that would be hard to debug in production."},
	{"test-planner", "Plans a test suite for an implementation", "You are a test engineer. Plan concrete test cases covering the implementation's behavior and edge cases."},
	{"coverage", "Reviews a test plan for coverage gaps", "You are a coverage reviewer. Flag untested branches, edge cases, and failure paths."},
	{"quality", "Reviews a test plan for quality", "You are a test quality reviewer. Flag brittle, redundant, or unclear tests."},
	{"reliability", "Reviews a test plan for reliability", "You are a reliability reviewer. Flag flaky patterns, timing dependencies, and non-deterministic tests."},
	{"test-runner", "Runs a test suite and reports results", "You are a test runner. Execute the planned tests against the implementation and report pass/fail results with detail on any failures."},
	{"test-fixer", "Fixes failing tests or implementation bugs", "You are a bug fixer. Given a failing test run, make the minimal change needed to make it pass without breaking other tests."},
}

// scaffoldInit lays down both persisted trees a fresh project needs: the
// .cursor/agents/ core state tree of spec.md §6 (state, workflows,
// produced-artifact, and ad-hoc-output directories) and the .conclave/
// tree the domain-stack collaborators own (agent definitions, sessions).
// It writes the default workflow definition (definition.WriteDefault,
// C2's Default() generator) and one starter Markdown file per
// default-workflow agent. Pure filesystem operation; no subprocess or
// model call.
func scaffoldInit(fs afero.Fs, dir string) error {
	cursorRoot := filepath.Join(dir, ".cursor", "agents")
	for _, sub := range []string{"state", "workflows", "workflow", "agents/outputs", "agents/verifications"} {
		if err := fs.MkdirAll(filepath.Join(cursorRoot, sub), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}

	conclaveRoot := filepath.Join(dir, ".conclave")
	agentsDir := filepath.Join(conclaveRoot, "agents")
	if err := fs.MkdirAll(agentsDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", agentsDir, err)
	}
	if err := fs.MkdirAll(filepath.Join(conclaveRoot, "sessions"), 0o755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}

	defPath := filepath.Join(cursorRoot, "workflows", "default.yaml")
	if exists, _ := afero.Exists(fs, defPath); !exists {
		if _, err := definition.WriteDefault(fs, defPath); err != nil {
			return err
		}
	}

	for _, a := range starterAgents {
		path := filepath.Join(agentsDir, a.name+".md")
		if exists, _ := afero.Exists(fs, path); exists {
			continue
		}
		content := fmt.Sprintf("---\nname: %s\ndescription: %s\n---\n%s\n", a.name, a.description, a.prompt)
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	ux.Info(fmt.Sprintf("Scaffolded .cursor/agents/ and .conclave/ with the default workflow and %d starter agents", len(starterAgents)))
	return nil
}
