package ops

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// StartArgs is the "start" operation's argument bag (spec.md §4.5).
type StartArgs struct {
	DefinitionFile string
	UseDefault     bool
	WorkflowID     string
	InputFile      string
}

// Start creates a new workflow at def.phases[0], per spec.md §4.5
// "start". Requires either DefinitionFile or UseDefault; fails if
// WorkflowID already exists.
func (o *Operations) Start(ctx context.Context, args StartArgs) Response {
	if args.DefinitionFile == "" && !args.UseDefault {
		return errText("start requires either a definition_file or use_default=true")
	}
	if args.InputFile != "" {
		if exists, err := afero.Exists(o.Fs, args.InputFile); err != nil {
			return errorResponse(err)
		} else if !exists {
			return errText(fmt.Sprintf("input file %q does not exist", args.InputFile))
		}
	}

	def, err := o.resolveDefinition(args.DefinitionFile, args.UseDefault)
	if err != nil {
		return errorResponse(err)
	}

	id := args.WorkflowID
	if id == "" {
		id = genWorkflowID(def.Name)
	}

	st, err := o.Executor.StartWorkflow(def, id, args.InputFile)
	if err != nil {
		return errorResponse(err)
	}

	if err := o.Store.Save(st); err != nil {
		return errorResponse(err)
	}

	return text(fmt.Sprintf(
		"Started workflow %q (definition %q) at phase %q, iteration %d.",
		id, def.Name, st.Phase, st.Iteration,
	))
}
