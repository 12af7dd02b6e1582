package ops

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jorge-barreto/conclave/internal/workflow"
)

// Validation limits from spec.md §6.
const (
	maxAgentNameLen  = 100
	maxPromptLen     = 50000
	maxCwdLen        = 1000
	maxSessionIDLen  = 100
	maxExtraArgs     = 20
	maxExtraArgLen   = 1000
	maxContextFiles  = 20
	maxContextGlobs  = 10
	maxGlobLen       = 500
	maxContextDataKB = 50 * 1024
	minRejectReason  = 10
)

var nameCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validModels = map[string]bool{
	"claude-opus-4-5":   true,
	"claude-sonnet-4-5": true,
	"gpt-5-2-codex":     true,
}

var validDecisions = map[string]bool{
	workflow.DecisionContinue: true,
	workflow.DecisionIterate:  true,
	workflow.DecisionApprove:  true,
}

var validPhaseNames = map[string]bool{
	workflow.PhasePlanning:       true,
	workflow.PhaseImplementation: true,
	workflow.PhaseTestingSetup:   true,
	workflow.PhaseTestingExec:    true,
}

func validateAgentName(name string) error {
	if name == "" || len(name) > maxAgentNameLen || !nameCharset.MatchString(name) {
		return fmt.Errorf("agent name must be 1-%d characters of [A-Za-z0-9_-]", maxAgentNameLen)
	}
	return nil
}

func validatePrompt(prompt string) error {
	if len(prompt) > maxPromptLen {
		return fmt.Errorf("prompt must be at most %d characters", maxPromptLen)
	}
	return nil
}

func validateCwd(cwd string) error {
	if cwd == "" {
		return nil
	}
	if len(cwd) > maxCwdLen {
		return fmt.Errorf("cwd must be at most %d characters", maxCwdLen)
	}
	if strings.Contains(cwd, "..") || strings.ContainsRune(cwd, 0) {
		return fmt.Errorf("cwd must not contain '..' or a NUL byte")
	}
	return nil
}

func validateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > maxSessionIDLen || !nameCharset.MatchString(id) {
		return fmt.Errorf("session_id must be 1-%d characters of [A-Za-z0-9_-]", maxSessionIDLen)
	}
	return nil
}

func validateExtraArgs(args []string) error {
	if len(args) > maxExtraArgs {
		return fmt.Errorf("extra_args accepts at most %d items", maxExtraArgs)
	}
	for _, a := range args {
		if len(a) > maxExtraArgLen {
			return fmt.Errorf("each extra_args item must be at most %d characters", maxExtraArgLen)
		}
	}
	return nil
}

func validateContextFiles(files []string) error {
	if len(files) > maxContextFiles {
		return fmt.Errorf("context_files accepts at most %d entries", maxContextFiles)
	}
	return nil
}

func validateContextGlobs(globs []string) error {
	if len(globs) > maxContextGlobs {
		return fmt.Errorf("context_globs accepts at most %d patterns", maxContextGlobs)
	}
	for _, g := range globs {
		if len(g) > maxGlobLen {
			return fmt.Errorf("each context_globs pattern must be at most %d characters", maxGlobLen)
		}
	}
	return nil
}

func validateContextData(data any) error {
	if data == nil {
		return nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("context_data must be JSON-serializable: %w", err)
	}
	if len(encoded) > maxContextDataKB {
		return fmt.Errorf("context_data must serialize to at most %d bytes", maxContextDataKB)
	}
	return nil
}

func validateModel(model string) error {
	if model == "" {
		return nil
	}
	if !validModels[model] {
		return fmt.Errorf("model must be one of claude-opus-4-5, claude-sonnet-4-5, gpt-5-2-codex")
	}
	return nil
}

func validateDecision(decision string) error {
	if !validDecisions[decision] {
		return fmt.Errorf("decision must be one of continue, iterate, approve")
	}
	return nil
}

func validateNextPhase(phase string) error {
	if phase == "" {
		return nil
	}
	if !validPhaseNames[phase] {
		return fmt.Errorf("next_phase must be one of planning, implementation, testing-setup, testing-execution")
	}
	return nil
}

func validateRestartFrom(target string) error {
	if target == "" {
		return nil
	}
	if target == workflow.RestartCurrent || validPhaseNames[target] {
		return nil
	}
	return fmt.Errorf("restart_from must be one of planning, implementation, testing-setup, testing-execution, current")
}

func validateRejectReason(reason string) error {
	if len(strings.TrimSpace(reason)) < minRejectReason {
		return fmt.Errorf("reason must be at least %d characters", minRejectReason)
	}
	return nil
}
