package pipeline

import "github.com/jorge-barreto/conclave/internal/conclaveerr"

// Token-budget thresholds (spec.md §4.3).
const (
	thresholdWarning = 0.80
	thresholdError   = 0.95
	thresholdTarget  = 0.70
)

// Per-model token limits, keyed by logical model id. Unknown models use
// defaultModelLimit.
var modelLimits = map[string]int{
	"claude-opus-4-5":   200000,
	"claude-sonnet-4-5": 200000,
	"gpt-5-2-codex":     128000,
}

const defaultModelLimit = 100000

// modelAPINames maps logical model ids to the name passed to the
// external Agent Runner. Fixed 1-to-1 table per spec.md §4.3; unknown
// logical ids pass through unchanged so a misconfigured agent definition
// still reaches the runner (which may itself reject it).
var modelAPINames = map[string]string{
	"claude-opus-4-5":   "claude-opus-4-5",
	"claude-sonnet-4-5": "claude-sonnet-4-5",
	"gpt-5-2-codex":     "gpt-5-2-codex",
}

// defaultModel is used when neither an explicit override nor the agent
// definition names a model.
const defaultModel = "claude-sonnet-4-5"

// ResolveModel applies the override → agent-definition → pipeline-default
// precedence of spec.md §4.3, then maps to the runner-facing API name.
func ResolveModel(override, agentDefault string) (logical, apiName string) {
	logical = override
	if logical == "" {
		logical = agentDefault
	}
	if logical == "" {
		logical = defaultModel
	}
	if api, ok := modelAPINames[logical]; ok {
		return logical, api
	}
	return logical, logical
}

func limitFor(model string) int {
	if l, ok := modelLimits[model]; ok {
		return l
	}
	return defaultModelLimit
}

// EstimateTokens approximates token count as characters/4 (spec.md §4.3
// and §1 Non-goals: "does not tokenize prompts — it estimates").
func EstimateTokens(s string) int {
	return len(s) / 4
}

// BudgetLevel classifies a budget check.
type BudgetLevel string

const (
	BudgetOK      BudgetLevel = "ok"
	BudgetWarning BudgetLevel = "warning"
	BudgetError   BudgetLevel = "error"
)

// BudgetCheck is the result of evaluating a prompt against a model's
// token budget.
type BudgetCheck struct {
	EstimatedTokens int
	Limit           int
	Percentage      float64
	Level           BudgetLevel
}

// CheckBudget evaluates prompt against model's limit. It never fails —
// callers decide what to do with Level (see CheckOrThrow for the strict
// variant).
func CheckBudget(prompt string, model string) BudgetCheck {
	limit := limitFor(model)
	estimated := EstimateTokens(prompt)
	pct := float64(estimated) / float64(limit)

	level := BudgetOK
	switch {
	case pct >= thresholdError:
		level = BudgetError
	case pct >= thresholdWarning:
		level = BudgetWarning
	}
	return BudgetCheck{EstimatedTokens: estimated, Limit: limit, Percentage: pct, Level: level}
}

// CheckOrThrow is the strict variant: it fails before invocation if the
// budget check is at error level.
func CheckOrThrow(prompt, model string) (BudgetCheck, *conclaveerr.Error) {
	bc := CheckBudget(prompt, model)
	if bc.Level == BudgetError {
		return bc, conclaveerr.TokenBudgetExceeded(bc.EstimatedTokens, bc.Limit, model)
	}
	return bc, nil
}

// RemainingBudget returns how many tokens remain under the "target"
// threshold (70% of the model's limit) given tokens already used.
func RemainingBudget(model string, usedTokens int) int {
	target := int(float64(limitFor(model)) * thresholdTarget)
	remaining := target - usedTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}
