package definition

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

// Default builds the canonical four-phase workflow definition (spec.md
// §4.2 "Default workflow"): planning → implementation → testing-setup →
// testing-execution, with the fixed reviewer/verifier vocabulary. This is
// the single canonical generator — spec.md §9 flags that the source has
// two subtly different default-definition builders (one for `start
// use_default`, one materialized when stepping without a definition);
// this implementation collapses both into one function so there is only
// ever one "default workflow" in this codebase.
func Default() *workflow.Definition {
	return &workflow.Definition{
		Name:        "default",
		Version:     1,
		Description: "Plan, implement, and test an artifact through reviewed and verified iterations.",
		Variables: map[string]any{
			"output_dir": defaultOutputDir,
			"iteration":  1,
		},
		OutputDir: defaultOutputDir,
		Phases: []workflow.Phase{
			{
				ID:            workflow.PhasePlanning,
				Type:          workflow.PhaseTypeIterative,
				Creator:       "plan-creator",
				Reviewers:     []string{"architecture", "integration", "security"},
				Verifiers:     []string{"integration", "security", "architecture"},
				MinIterations: 1,
				Outputs: map[string]string{
					"artifact":      "{{ output_dir }}/planning/planning-v{{ iteration }}.md",
					"reviews":       "{{ output_dir }}/planning/reviews",
					"verifications": "{{ output_dir }}/planning/verifications",
				},
			},
			{
				ID:            workflow.PhaseImplementation,
				Type:          workflow.PhaseTypeIterative,
				Creator:       "implementer",
				Reviewers:     []string{"logic", "patterns", "operations"},
				Verifiers:     []string{"patterns", "operations", "logic"},
				MinIterations: 1,
				Context:       []string{"{{ phases.planning.outputs.artifact }}"},
				Outputs: map[string]string{
					"artifact":      "{{ output_dir }}/implementation/implementation-v{{ iteration }}.md",
					"reviews":       "{{ output_dir }}/implementation/reviews",
					"verifications": "{{ output_dir }}/implementation/verifications",
				},
			},
			{
				ID:            workflow.PhaseTestingSetup,
				Type:          workflow.PhaseTypeIterative,
				Creator:       "test-planner",
				Reviewers:     []string{"coverage", "quality", "reliability"},
				Verifiers:     []string{"quality", "reliability", "coverage"},
				MinIterations: 1,
				Context:       []string{"{{ phases.implementation.outputs.artifact }}"},
				Outputs: map[string]string{
					"artifact":      "{{ output_dir }}/testing-setup/testing-setup-v{{ iteration }}.md",
					"reviews":       "{{ output_dir }}/testing-setup/reviews",
					"verifications": "{{ output_dir }}/testing-setup/verifications",
				},
			},
			{
				ID:            workflow.PhaseTestingExec,
				Type:          workflow.PhaseTypeTestExecution,
				Tester:        "test-runner",
				Fixer:         "test-fixer",
				MinIterations: 1,
				Context:       []string{"{{ phases.testing-setup.outputs.artifact }}"},
				Outputs: map[string]string{
					"artifact":     "{{ output_dir }}/testing-execution/run-v{{ iteration }}.md",
					"test_results": "{{ output_dir }}/testing-execution",
					"fixes":        "{{ output_dir }}/testing-execution/fix-v{{ iteration }}.md",
				},
			},
		},
	}
}

// yamlDoc / yamlPhase mirror the bit-level YAML shape of spec.md §6;
// workflow.Definition/Phase have no yaml tags of their own since Phase
// is a merged tagged-variant struct unsuited to direct marshaling.
type yamlDoc struct {
	Name        string         `yaml:"name"`
	Version     int            `yaml:"version"`
	Description string         `yaml:"description,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
	OutputDir   string         `yaml:"output_dir,omitempty"`
	InputFile   string         `yaml:"input_file,omitempty"`
	Phases      []yamlPhase    `yaml:"phases"`
}

type yamlPhase struct {
	ID                string            `yaml:"id"`
	Type              string            `yaml:"type"`
	Creator           string            `yaml:"creator,omitempty"`
	Reviewers         []string          `yaml:"reviewers,omitempty"`
	Verifiers         []string          `yaml:"verifiers,omitempty"`
	Tester            string            `yaml:"tester,omitempty"`
	Fixer             string            `yaml:"fixer,omitempty"`
	Context           []string          `yaml:"context,omitempty"`
	Outputs           map[string]string `yaml:"outputs,omitempty"`
	MinIterations     int               `yaml:"min_iterations,omitempty"`
	MaxIterations     int               `yaml:"max_iterations,omitempty"`
	CheckpointMessage string            `yaml:"checkpoint_message,omitempty"`
}

// Marshal renders def as the YAML document shape of spec.md §6.
func Marshal(def *workflow.Definition) ([]byte, error) {
	doc := yamlDoc{
		Name:        def.Name,
		Version:     def.Version,
		Description: def.Description,
		Variables:   def.Variables,
		OutputDir:   def.OutputDir,
		InputFile:   def.InputFile,
	}
	for _, p := range def.Phases {
		yp := yamlPhase{
			ID: p.ID, Type: p.Type,
			Creator: p.Creator, Reviewers: p.Reviewers, Verifiers: p.Verifiers,
			Tester: p.Tester, Fixer: p.Fixer,
			Context: p.Context, Outputs: p.Outputs,
			MinIterations:     p.MinIterations,
			CheckpointMessage: p.CheckpointMessage,
		}
		if p.HasMaxIterations {
			yp.MaxIterations = p.MaxIterations
		}
		doc.Phases = append(doc.Phases, yp)
	}
	return yaml.Marshal(&doc)
}

// WriteDefault materializes the canonical default definition as YAML at
// path (e.g. "<base>/.cursor/agents/workflows/default.yaml").
func WriteDefault(fs afero.Fs, path string) (*workflow.Definition, error) {
	def := Default()
	data, err := Marshal(def)
	if err != nil {
		return nil, conclaveerr.Storage("encoding default workflow definition", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return nil, conclaveerr.Storage(fmt.Sprintf("writing default workflow definition to %s", path), err)
	}
	return def, nil
}
