package agentdefs

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithFrontmatter(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/agents/architecture.md", []byte(
		"---\nname: architecture\ndescription: reviews system design\nmodel: claude-opus-4-5\n---\nYou are an architecture reviewer.\n"),
		0o644))

	s := New(fs, "/agents")
	def, ok, err := s.GetAgent(context.Background(), "architecture")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "architecture", def.Name)
	assert.Equal(t, "claude-opus-4-5", def.Model)
	assert.Equal(t, "You are an architecture reviewer.", def.Content)
}

func TestParseWithoutFrontmatterUsesFileStem(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/agents/plain.md", []byte("Just a prompt body."), 0o644))

	s := New(fs, "/agents")
	def, ok, err := s.GetAgent(context.Background(), "plain")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plain", def.Name)
	assert.Equal(t, "Just a prompt body.", def.Content)
}

func TestGetAgentNotFound(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/agents")
	_, ok, err := s.GetAgent(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAgentsSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/agents/zeta.md", []byte("z"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/agents/alpha.md", []byte("a"), 0o644))

	s := New(fs, "/agents")
	all, err := s.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[1].Name)
}
