// Package definition implements the Workflow Definition Loader (C2):
// parsing and validating a YAML workflow definition into an in-memory
// workflow.Definition, and interpolating {{ … }} template expressions
// against variables, the live iteration/phase, and prior phase outputs.
package definition

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

var log = logging.New("definition")

// builtin defaults merged under a definition's variables, per spec.md §4.2.
const (
	defaultOutputDir = ".cursor/agents/workflow"
)

// Result is the never-throws return shape of Load{FromFile,FromString}.
type Result struct {
	Success    bool
	Definition *workflow.Definition
	Error      string
	SourcePath string
}

func fail(msg string) Result {
	return Result{Success: false, Error: msg}
}

// LoadFromFile reads and parses path.
func LoadFromFile(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("reading workflow definition %q: %v", path, err))
	}
	r := LoadFromString(string(data))
	r.SourcePath = path
	return r
}

// LoadFromString parses raw YAML text.
func LoadFromString(text string) Result {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return fail(fmt.Sprintf("invalid YAML: %v", err))
	}
	if raw == nil {
		return fail("workflow definition must be a YAML object")
	}
	return build(raw)
}

// build applies the order-sensitive validation rules of spec.md §4.2,
// short-circuiting on the first failure with a human-readable message.
func build(raw map[string]any) Result {
	name, ok := raw["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return fail("'name' is required and must be a non-empty string")
	}

	version, ok := asInt(raw["version"])
	if !ok {
		return fail("'version' is required and must be a number")
	}
	if version <= 0 {
		return fail("'version' must be a positive integer")
	}

	rawPhases, ok := raw["phases"].([]any)
	if !ok || len(rawPhases) == 0 {
		return fail("'phases' is required and must be a non-empty sequence")
	}

	def := &workflow.Definition{
		Name:    name,
		Version: version,
	}
	if desc, ok := raw["description"].(string); ok {
		def.Description = desc
	}

	def.Variables = map[string]any{
		"output_dir": defaultOutputDir,
		"iteration":  1,
	}
	if rawVars, ok := raw["variables"].(map[string]any); ok {
		for k, v := range rawVars {
			def.Variables[k] = v
		}
	}

	def.OutputDir = defaultOutputDir
	if od, ok := raw["output_dir"].(string); ok && od != "" {
		def.OutputDir = od
	}
	if inf, ok := raw["input_file"].(string); ok {
		def.InputFile = inf
	}

	seen := map[string]bool{}
	for i, rp := range rawPhases {
		pm, ok := rp.(map[string]any)
		if !ok {
			return fail(fmt.Sprintf("phase %d must be an object", i))
		}
		phase, errMsg := buildPhase(pm)
		if errMsg != "" {
			return fail(errMsg)
		}
		if seen[phase.ID] {
			return fail(fmt.Sprintf("duplicate phase id %q", phase.ID))
		}
		seen[phase.ID] = true
		def.Phases = append(def.Phases, phase)
	}

	return Result{Success: true, Definition: def}
}

func buildPhase(pm map[string]any) (workflow.Phase, string) {
	id, ok := pm["id"].(string)
	if !ok || id == "" {
		return workflow.Phase{}, "each phase requires a non-empty 'id'"
	}
	typ, ok := pm["type"].(string)
	if !ok || (typ != workflow.PhaseTypeIterative && typ != workflow.PhaseTypeTestExecution) {
		return workflow.Phase{}, fmt.Sprintf("phase %q: 'type' must be 'iterative' or 'test-execution'", id)
	}

	p := workflow.Phase{ID: id, Type: typ, MinIterations: 1}

	if raw, ok := pm["outputs"].(map[string]any); ok {
		p.Outputs = map[string]string{}
		for k, v := range raw {
			if s, ok := v.(string); ok {
				p.Outputs[k] = s
			}
		}
	}
	if raw, ok := pm["context"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				p.Context = append(p.Context, s)
			}
		}
	}
	if mi, ok := asInt(pm["min_iterations"]); ok {
		p.MinIterations = mi
	}
	if ma, ok := asInt(pm["max_iterations"]); ok {
		p.MaxIterations = ma
		p.HasMaxIterations = true
	}
	if cm, ok := pm["checkpoint_message"].(string); ok {
		p.CheckpointMessage = cm
	}

	switch typ {
	case workflow.PhaseTypeIterative:
		creator, ok := pm["creator"].(string)
		if !ok || creator == "" {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'creator' is required for an iterative phase", id)
		}
		reviewers, ok := stringSlice(pm["reviewers"])
		if !ok || len(reviewers) == 0 {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'reviewers' must be a non-empty list of strings", id)
		}
		verifiers, ok := stringSlice(pm["verifiers"])
		if !ok || len(verifiers) == 0 {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'verifiers' must be a non-empty list of strings", id)
		}
		if len(reviewers) != len(verifiers) {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'reviewers' and 'verifiers' must have equal length", id)
		}
		p.Creator = creator
		p.Reviewers = reviewers
		p.Verifiers = verifiers

	case workflow.PhaseTypeTestExecution:
		tester, ok := pm["tester"].(string)
		if !ok || tester == "" {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'tester' is required for a test-execution phase", id)
		}
		fixer, ok := pm["fixer"].(string)
		if !ok || fixer == "" {
			return workflow.Phase{}, fmt.Sprintf("phase %q: 'fixer' is required for a test-execution phase", id)
		}
		p.Tester = tester
		p.Fixer = fixer
	}

	return p, ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func stringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
