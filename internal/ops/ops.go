// Package ops implements the Operation Surface (C5): the nine
// operator-level operations exposed over the tool protocol (spec.md
// §4.5, §6), each validating its arguments per §6's limits and
// returning a {content, isError?} response built on top of the
// Workflow State Store, the Definition Loader, and the Executor.
package ops

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/definition"
	"github.com/jorge-barreto/conclave/internal/executor"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/workflow"
)

var log = logging.New("ops")

// ContentBlock mirrors the tool protocol's response content shape
// (spec.md §6): {type: "text", text: "..."}.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the {content, isError?} shape every operation returns.
type Response struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

func text(s string) Response {
	return Response{Content: []ContentBlock{{Type: "text", Text: s}}}
}

func errText(s string) Response {
	return Response{Content: []ContentBlock{{Type: "text", Text: s}}, IsError: true}
}

// errorResponse formats any error through the user-message helper of
// spec.md §7 ("The Operation Surface catches all errors at its
// boundary, formats them through a user-message helper").
func errorResponse(err error) Response {
	if e, ok := conclaveerr.As(err); ok {
		return errText(fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return errText(err.Error())
}

// Operations wires the Operation Surface to its collaborators. BaseDir
// is the operator-supplied root under which the persisted layout of
// spec.md §6 lives.
type Operations struct {
	Fs       afero.Fs
	BaseDir  string
	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Executor *executor.Executor
}

// New constructs an Operations surface.
func New(fs afero.Fs, baseDir string, st *store.Store, pl *pipeline.Pipeline, ex *executor.Executor) *Operations {
	return &Operations{Fs: fs, BaseDir: baseDir, Store: st, Pipeline: pl, Executor: ex}
}

// Paths follow the literal persisted layout of spec.md §6 under
// .cursor/agents/ — the core's persistence tree, distinct from the
// .conclave/ tree used by the domain-stack additions (agent
// definitions, sessions; see internal/agentdefs, internal/sessionstore).
func (o *Operations) workflowsDir() string { return filepath.Join(o.BaseDir, ".cursor", "agents", "workflows") }
func (o *Operations) outputsDir() string   { return filepath.Join(o.BaseDir, ".cursor", "agents", "agents", "outputs") }
func (o *Operations) verificationsDir() string {
	return filepath.Join(o.BaseDir, ".cursor", "agents", "agents", "verifications")
}

// resolveDefinition loads a definition from defFile, or the canonical
// default when useDefault is set, writing it out first if absent.
func (o *Operations) resolveDefinition(defFile string, useDefault bool) (*workflow.Definition, error) {
	if useDefault {
		path := filepath.Join(o.workflowsDir(), "default.yaml")
		if exists, _ := afero.Exists(o.Fs, path); exists {
			r := definition.LoadFromFile(path)
			if r.Success {
				return r.Definition, nil
			}
			return nil, conclaveerr.Workflow("illegal", r.Error, nil)
		}
		def, err := definition.WriteDefault(o.Fs, path)
		if err != nil {
			return nil, err
		}
		return def, nil
	}
	if defFile == "" {
		return nil, conclaveerr.Validation("either a definition file or use_default is required", nil)
	}
	r := definition.LoadFromFile(defFile)
	if !r.Success {
		return nil, conclaveerr.Validation(r.Error, map[string]any{"source_path": defFile})
	}
	return r.Definition, nil
}

func genWorkflowID(defName string) string {
	return fmt.Sprintf("%s-%s", defName, toBase36(epochMS()))
}

func epochMS() int64 { return time.Now().UTC().UnixMilli() }

func toBase36(n int64) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%36]}, buf...)
		n /= 36
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}
