package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensMonotonic(t *testing.T) {
	a := "short prompt"
	b := a + strings.Repeat("x", 400)
	assert.LessOrEqual(t, EstimateTokens(a), EstimateTokens(b))
}

func TestCheckBudgetLevels(t *testing.T) {
	ok := CheckBudget("short", "claude-sonnet-4-5")
	assert.Equal(t, BudgetOK, ok.Level)

	warn := CheckBudget(strings.Repeat("x", int(0.85*200000*4)), "claude-sonnet-4-5")
	assert.Equal(t, BudgetWarning, warn.Level)

	fail := CheckBudget(strings.Repeat("x", int(0.97*200000*4)), "claude-sonnet-4-5")
	assert.Equal(t, BudgetError, fail.Level)
}

func TestCheckOrThrow(t *testing.T) {
	_, errOK := CheckOrThrow("short", "claude-sonnet-4-5")
	assert.Nil(t, errOK)

	_, errFail := CheckOrThrow(strings.Repeat("x", int(0.97*200000*4)), "claude-sonnet-4-5")
	assert.NotNil(t, errFail)
}

func TestResolveModelPrecedence(t *testing.T) {
	logical, api := ResolveModel("gpt-5-2-codex", "claude-opus-4-5")
	assert.Equal(t, "gpt-5-2-codex", logical)
	assert.Equal(t, "gpt-5-2-codex", api)

	logical, _ = ResolveModel("", "claude-opus-4-5")
	assert.Equal(t, "claude-opus-4-5", logical)

	logical, _ = ResolveModel("", "")
	assert.Equal(t, defaultModel, logical)
}

func TestRemainingBudgetFloorsAtZero(t *testing.T) {
	assert.Equal(t, 0, RemainingBudget("claude-sonnet-4-5", 10_000_000))
}
