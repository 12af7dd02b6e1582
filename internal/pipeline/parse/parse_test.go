package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONPure(t *testing.T) {
	v, ok := ExtractJSON(`{"result": "ok"}`)
	require.True(t, ok)
	m := v.(map[string]any)
	assert.Equal(t, "ok", m["result"])
}

func TestExtractJSONFenced(t *testing.T) {
	v, ok := ExtractJSON("here is output:\n```json\n{\"result\": \"fenced\"}\n```\ndone")
	require.True(t, ok)
	assert.Equal(t, "fenced", v.(map[string]any)["result"])
}

func TestExtractJSONBalancedSubstring(t *testing.T) {
	v, ok := ExtractJSON(`prefix text {"result": "balanced"} suffix text`)
	require.True(t, ok)
	assert.Equal(t, "balanced", v.(map[string]any)["result"])
}

func TestExtractJSONNone(t *testing.T) {
	_, ok := ExtractJSON("just plain text")
	assert.False(t, ok)
}

func TestPrimaryFieldFallbacks(t *testing.T) {
	assert.Equal(t, "ok", PrimaryField(`{"result":"ok"}`))
	assert.Equal(t, "bad", PrimaryField(`{"error":"bad"}`))
	assert.Equal(t, "c", PrimaryField(`{"content":"c"}`))
	assert.Equal(t, "raw text", PrimaryField("raw text"))
}

func TestIsAgentError(t *testing.T) {
	assert.True(t, IsAgentError(`{"is_error": true}`))
	assert.False(t, IsAgentError(`{"is_error": false}`))
	assert.False(t, IsAgentError("no json here"))
}

func TestRecommendation(t *testing.T) {
	assert.Equal(t, "APPROVE", Recommendation("Recommendation: approve"))
	assert.Equal(t, "ITERATE", Recommendation("verdict:ITERATE"))
	assert.Equal(t, "", Recommendation("no verdict here"))
}

func TestCountCriticalIssues(t *testing.T) {
	text := "- critical: missing auth check\n- [major] slow query\n- minor nit\n- no issues found here"
	assert.Equal(t, 2, CountCriticalIssues(text))
}

func TestCountCriticalIssuesIgnoresClearedLines(t *testing.T) {
	text := "- looks good, critical path covered\n- approved: critical section handled"
	assert.Equal(t, 0, CountCriticalIssues(text))
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed("Recommendation: APPROVE"))
	// Any mention of "issues" counts as negative text, even "No issues".
	assert.False(t, Passed("Review passed. No issues found."))
	assert.True(t, Passed("Review passed. Approved."))
	assert.False(t, Passed("Review failed. - critical: bug"))
	assert.False(t, Passed("Some unrelated text"))
}

func TestValidateSchema(t *testing.T) {
	s := &Schema{
		Type:     "object",
		Required: []string{"name"},
		Properties: map[string]*Schema{
			"name": {Type: "string"},
			"tags": {Type: "array", Items: &Schema{Type: "string"}},
		},
	}
	assert.True(t, Validate(map[string]any{"name": "x", "tags": []any{"a", "b"}}, s))
	assert.False(t, Validate(map[string]any{"tags": []any{"a"}}, s))
	assert.False(t, Validate(map[string]any{"name": "x", "tags": []any{1}}, s))
}
