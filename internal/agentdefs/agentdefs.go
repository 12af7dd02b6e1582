// Package agentdefs implements the external Agent Definition Store
// collaborator (spec.md §6): a filesystem directory of Markdown files,
// one per agent, with a YAML frontmatter block declaring name/
// description/model and a body used verbatim as the agent's system
// prompt. Parsing style (line-scanned fence/frontmatter detection)
// follows the teacher's internal/fileblocks.Parse.
package agentdefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/jorge-barreto/conclave/internal/conclaveerr"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/pipeline"
)

var log = logging.New("agentdefs")

const frontmatterDelim = "---"

// frontmatter is the YAML header of an agent Markdown file.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
}

// Store is a filesystem-backed pipeline.AgentDefinitionStore. Every
// *.md file directly under Dir is one agent definition.
type Store struct {
	Fs  afero.Fs
	Dir string
}

// New constructs a Store rooted at dir.
func New(fs afero.Fs, dir string) *Store {
	return &Store{Fs: fs, Dir: dir}
}

var _ pipeline.AgentDefinitionStore = (*Store)(nil)

// ListAgents parses every agent file in Dir; a missing Dir yields an
// empty list. Unparseable files are
// skipped with a warning rather than failing the whole listing, mirroring
// the state store's tolerance for individually corrupt entries.
func (s *Store) ListAgents(ctx context.Context) ([]pipeline.AgentDefinition, error) {
	entries, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, conclaveerr.Storage("listing agent definitions", err)
	}
	var out []pipeline.AgentDefinition
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		def, err := s.parse(path)
		if err != nil {
			log.Warn("skipping unparseable agent definition", "path", path, "error", err)
			continue
		}
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetAgent returns the definition whose file stem or declared name
// equals name.
func (s *Store) GetAgent(ctx context.Context, name string) (*pipeline.AgentDefinition, bool, error) {
	path := filepath.Join(s.Dir, name+".md")
	if exists, err := afero.Exists(s.Fs, path); err == nil && exists {
		def, err := s.parse(path)
		if err != nil {
			return nil, false, conclaveerr.Storage(fmt.Sprintf("parsing agent definition %q", name), err)
		}
		return def, true, nil
	}

	all, err := s.ListAgents(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, d := range all {
		if d.Name == name {
			cp := d
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// parse reads one agent Markdown file: an optional leading
// "---\n<yaml>\n---\n" frontmatter block, followed by the body.
func (s *Store) parse(path string) (*pipeline.AgentDefinition, error) {
	data, err := afero.ReadFile(s.Fs, path)
	if err != nil {
		return nil, err
	}

	fm, body := splitFrontmatter(string(data))
	var header frontmatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &header); err != nil {
			return nil, fmt.Errorf("parsing frontmatter: %w", err)
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	name := header.Name
	if name == "" {
		name = stem
	}

	var lastModified time.Time
	if info, err := s.Fs.Stat(path); err == nil {
		lastModified = info.ModTime()
	}

	return &pipeline.AgentDefinition{
		Name:         name,
		Description:  header.Description,
		Model:        header.Model,
		Content:      strings.TrimSpace(body),
		FilePath:     path,
		LastModified: lastModified,
	}, nil
}

// splitFrontmatter separates a "---\n...\n---\n" header from the body.
// Returns ("", text) when no well-formed frontmatter block is present.
func splitFrontmatter(text string) (fm string, body string) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return "", text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			fm = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			return fm, body
		}
	}
	return "", text
}
