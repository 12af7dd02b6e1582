package definition

import (
	"fmt"
	"regexp"
	"strings"
)

// exprPattern matches {{ expr }}, tolerating arbitrary inner whitespace.
var exprPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// PhaseOutputs is the set of output keys (artifact, reviews,
// verifications, test_results, and arbitrary custom keys) recorded
// against one phase, used to resolve `phases.<id>.outputs.<key>`.
type PhaseOutputs map[string]string

// Context is the InterpolationContext of spec.md §4.2/§4.4: variables,
// the live iteration and phase, and per-phase outputs derived from
// persisted artifacts by the Executor.
type Context struct {
	Variables map[string]any
	Iteration int
	Phase     string
	Phases    map[string]PhaseOutputs
}

// Interpolate resolves every {{ expr }} in s against ctx. Unresolved
// expressions are left verbatim and logged as a warning — never an
// error (spec.md §4.2).
func Interpolate(s string, ctx *Context) string {
	return exprPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := exprPattern.FindStringSubmatch(m)
		expr := strings.TrimSpace(sub[1])
		val, ok := resolve(expr, ctx)
		if !ok {
			log.Warn("unresolved template expression", "expr", expr)
			return m
		}
		return val
	})
}

// InterpolateOutputs applies Interpolate to every value of an output
// map. A nil input map returns nil (spec.md: "undefined input returns
// undefined").
func InterpolateOutputs(outputs map[string]string, ctx *Context) map[string]string {
	if outputs == nil {
		return nil
	}
	out := make(map[string]string, len(outputs))
	for k, v := range outputs {
		out[k] = Interpolate(v, ctx)
	}
	return out
}

func resolve(expr string, ctx *Context) (string, bool) {
	switch expr {
	case "iteration":
		return fmt.Sprintf("%d", ctx.Iteration), true
	case "phase":
		return ctx.Phase, true
	}

	if strings.HasPrefix(expr, "phases.") {
		return resolvePhaseDotted(expr, ctx)
	}

	if ctx.Variables != nil {
		if v, ok := ctx.Variables[expr]; ok {
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}

// resolvePhaseDotted resolves "phases.<phaseId>.outputs.<key>".
func resolvePhaseDotted(expr string, ctx *Context) (string, bool) {
	parts := strings.Split(expr, ".")
	if len(parts) != 4 || parts[0] != "phases" || parts[2] != "outputs" {
		return "", false
	}
	phaseID, key := parts[1], parts[3]
	if ctx.Phases == nil {
		return "", false
	}
	outputs, ok := ctx.Phases[phaseID]
	if !ok {
		return "", false
	}
	v, ok := outputs[key]
	return v, ok
}
