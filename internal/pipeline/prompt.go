package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// AssemblePrompt implements spec.md §4.3 steps 2-4: fence in readable
// context files, prepend a Context/Instructions split when any context
// was read, and prepend rendered session history when available.
func (p *Pipeline) AssemblePrompt(ctx context.Context, req InvokeRequest) string {
	contextBlock, _ := p.readContextFiles(req.ContextFiles)

	prompt := req.UserPrompt
	if contextBlock != "" {
		prompt = fmt.Sprintf("# Context\n%s---\n\n# Instructions\n\n%s", contextBlock, req.UserPrompt)
	}

	if req.SessionID != "" && p.Sessions != nil {
		entries, ok, err := p.Sessions.LoadSession(ctx, req.SessionID, req.AgentType)
		if err != nil {
			log.Warn("session load failed, continuing without history", "session_id", req.SessionID, "error", err)
		} else if ok && len(entries) > 0 {
			prompt = renderSessionHistory(entries) + prompt
		}
	}

	return prompt
}

// readContextFiles reads each path in order, fencing its contents as a
// Markdown block. Unreadable files are skipped with a warning, never
// failing the invocation (spec.md §4.3 step 2).
func (p *Pipeline) readContextFiles(paths []string) (block string, used []string) {
	var b strings.Builder
	for _, path := range paths {
		data, err := afero.ReadFile(p.Fs, path)
		if err != nil {
			log.Warn("skipping unreadable context file", "path", path, "error", err)
			continue
		}
		fmt.Fprintf(&b, "## File: %s\n```\n%s\n```\n\n", path, string(data))
		used = append(used, path)
	}
	return b.String(), used
}

// renderSessionHistory formats prior turns as Markdown, oldest first.
func renderSessionHistory(entries []SessionEntry) string {
	var b strings.Builder
	b.WriteString("# Prior Session History\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "## Turn %d\n**Request:**\n%s\n\n**Response:**\n%s\n\n", i+1, e.Request, e.Response)
	}
	b.WriteString("---\n\n")
	return b.String()
}
