package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	cli "github.com/urfave/cli/v3"

	"github.com/jorge-barreto/conclave/internal/agentdefs"
	"github.com/jorge-barreto/conclave/internal/agentrunner"
	"github.com/jorge-barreto/conclave/internal/executor"
	"github.com/jorge-barreto/conclave/internal/logging"
	"github.com/jorge-barreto/conclave/internal/ops"
	"github.com/jorge-barreto/conclave/internal/pipeline"
	"github.com/jorge-barreto/conclave/internal/sessionstore"
	"github.com/jorge-barreto/conclave/internal/store"
	"github.com/jorge-barreto/conclave/internal/ux"
)

const version = "0.1.0"

func main() {
	logging.SetupFromEnv()

	app := &cli.Command{
		Name:        "conclave",
		Usage:       "Multi-agent workflow orchestrator",
		Description: "Run 'conclave docs' for documentation on workflow definitions, agents, and checkpoints.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-dir", Persistent: true, Usage: "Root directory for .cursor/agents/ state and .conclave/ agent definitions and sessions (default: cwd)"},
			&cli.StringFlag{Name: "agent-binary", Persistent: true, Usage: "CLI agent binary to invoke", Value: "claude"},
		},
		Commands: []*cli.Command{
			initCmd(),
			startCmd(),
			stepCmd(),
			continueCmd(),
			rejectCmd(),
			statusCmd(),
			agentsCmd(),
			verifiersCmd(),
			doctorCmd(),
			serveCmd(),
			docsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

// buildOps builds the Operation Surface wired to real collaborators rooted
// at --base-dir (default: cwd).
func buildOps(cmd *cli.Command) (*ops.Operations, error) {
	baseDir := cmd.String("base-dir")
	if baseDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}

	fs := afero.NewOsFs()
	stateDir := filepath.Join(baseDir, ".cursor", "agents", "state")
	st, err := store.New(fs, stateDir)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	defs := agentdefs.New(fs, filepath.Join(baseDir, ".conclave", "agents"))
	runner := agentrunner.New(defs, cmd.String("agent-binary"))
	sessions := sessionstore.New(fs, filepath.Join(baseDir, ".conclave", "sessions"))
	pl := pipeline.New(fs, defs, runner, sessions)
	ex := executor.New(st, pl, fs)

	return ops.New(fs, baseDir, st, pl, ex), nil
}

func printResp(r ops.Response) error {
	for _, c := range r.Content {
		fmt.Println(c.Text)
	}
	if r.IsError {
		return fmt.Errorf("operation failed")
	}
	return nil
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Scaffold a starter .cursor/agents/ and .conclave/ layout with a default workflow and agent definitions",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			if base := cmd.String("base-dir"); base != "" {
				dir = base
			}
			return scaffoldInit(afero.NewOsFs(), dir)
		},
	}
}

func startCmd() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start a new workflow",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "definition-file"},
			&cli.BoolFlag{Name: "use-default"},
			&cli.StringFlag{Name: "workflow-id"},
			&cli.StringFlag{Name: "input-file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}
			return printResp(o.Start(ctx, ops.StartArgs{
				DefinitionFile: cmd.String("definition-file"),
				UseDefault:     cmd.Bool("use-default"),
				WorkflowID:     cmd.String("workflow-id"),
				InputFile:      cmd.String("input-file"),
			}))
		},
	}
}

func stepCmd() *cli.Command {
	return &cli.Command{
		Name:      "step",
		Usage:     "Advance a workflow by one transition",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "definition-file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("workflow-id argument is required")
			}
			started := time.Now()
			resp := o.Step(ctx, ops.StepArgs{WorkflowID: id, DefinitionFile: cmd.String("definition-file")})
			if resp.IsError {
				ux.StepFail(id, resp.Content[0].Text)
				return printResp(resp)
			}
			ux.StepComplete(resp.Content[0].Text, time.Since(started))
			return nil
		},
	}
}

func continueCmd() *cli.Command {
	return &cli.Command{
		Name:      "continue",
		Usage:     "Record a decision at a paused checkpoint",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "decision", Required: true, Usage: "continue, iterate, or approve"},
			&cli.StringFlag{Name: "feedback"},
			&cli.StringFlag{Name: "next-phase"},
			&cli.StringFlag{Name: "definition-file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("workflow-id argument is required")
			}
			return printResp(o.Continue(ctx, ops.ContinueArgs{
				WorkflowID:     id,
				Decision:       cmd.String("decision"),
				Feedback:       cmd.String("feedback"),
				NextPhase:      cmd.String("next-phase"),
				DefinitionFile: cmd.String("definition-file"),
			}))
		},
	}
}

func rejectCmd() *cli.Command {
	return &cli.Command{
		Name:      "reject",
		Usage:     "Reject the current artifact at a checkpoint",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Required: true},
			&cli.StringSliceFlag{Name: "required-change"},
			&cli.StringFlag{Name: "restart-from"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("workflow-id argument is required")
			}
			return printResp(o.Reject(ctx, ops.RejectArgs{
				WorkflowID:      id,
				Reason:          cmd.String("reason"),
				RequiredChanges: cmd.StringSlice("required-change"),
				RestartFrom:     cmd.String("restart-from"),
			}))
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show workflow status",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose"},
			&cli.BoolFlag{Name: "markdown", Usage: "Print the raw markdown report instead of the colored summary"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}
			id := cmd.Args().First()
			if id == "" {
				return fmt.Errorf("workflow-id argument is required")
			}
			if cmd.Bool("markdown") {
				return printResp(o.Status(ctx, ops.StatusArgs{WorkflowID: id, Verbose: cmd.Bool("verbose")}))
			}
			st, err := o.Store.Get(id)
			if err != nil {
				return err
			}
			ux.RenderState(st)
			return nil
		},
	}
}

func agentsCmd() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "Inspect and invoke agent definitions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List known agent definitions",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					o, err := buildOps(cmd)
					if err != nil {
						return err
					}
					return printResp(o.ListAgents(ctx))
				},
			},
			{
				Name:      "run",
				Usage:     "Invoke a single agent directly",
				ArgsUsage: "<agent> <prompt>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "context-file"},
					&cli.StringSliceFlag{Name: "context-glob"},
					&cli.StringFlag{Name: "cwd"},
					&cli.StringFlag{Name: "model"},
					&cli.StringFlag{Name: "session-id"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					o, err := buildOps(cmd)
					if err != nil {
						return err
					}
					if cmd.Args().Len() < 2 {
						return fmt.Errorf("agent and prompt arguments are required")
					}
					return printResp(o.RunSingleAgent(ctx, ops.RunSingleAgentArgs{
						Agent:        cmd.Args().Get(0),
						Prompt:       cmd.Args().Get(1),
						ContextFiles: cmd.StringSlice("context-file"),
						ContextGlobs: cmd.StringSlice("context-glob"),
						Cwd:          cmd.String("cwd"),
						Model:        cmd.String("model"),
						SessionID:    cmd.String("session-id"),
					}))
				},
			},
		},
	}
}

func verifiersCmd() *cli.Command {
	return &cli.Command{
		Name:  "verifiers",
		Usage: "Run ad-hoc verification against an artifact",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run mapped verifiers for reviewer/review-file pairs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "artifact-file", Required: true},
					&cli.StringSliceFlag{Name: "pair", Usage: "reviewer=review_file, repeatable"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					o, err := buildOps(cmd)
					if err != nil {
						return err
					}
					pairs, err := parsePairs(cmd.StringSlice("pair"))
					if err != nil {
						return err
					}
					return printResp(o.RunVerifiers(ctx, ops.RunVerifiersArgs{
						ArtifactFile: cmd.String("artifact-file"),
						Pairs:        pairs,
					}))
				},
			},
		},
	}
}

func parsePairs(raw []string) ([]pipeline.ReviewPair, error) {
	pairs := make([]pipeline.ReviewPair, 0, len(raw))
	for _, p := range raw {
		reviewer, file, ok := splitOnce(p, '=')
		if !ok {
			return nil, fmt.Errorf("invalid --pair %q, want reviewer=review_file", p)
		}
		pairs = append(pairs, pipeline.ReviewPair{Reviewer: reviewer, ReviewFile: file})
	}
	return pairs, nil
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server over stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := buildOps(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			go o.Store.WatchExternalEdits(ctx)
			if sessions, ok := o.Pipeline.Sessions.(interface {
				RunCleanupLoop(context.Context, time.Duration)
			}); ok {
				go sessions.RunCleanupLoop(ctx, time.Hour)
			}

			return serveMCP(ctx, o)
		},
	}
}
