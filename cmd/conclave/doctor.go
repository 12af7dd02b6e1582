package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/jorge-barreto/conclave/internal/doctor"
)

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Dump diagnostic context for a stuck or failed workflow",
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

			st, err := o.Store.Get(id)
			if err != nil {
				return err
			}
			def, err := o.LoadDefinitionFor(cmd.String("definition-file"))
			if err != nil {
				return err
			}
			phase, ok := def.PhaseByID(st.Phase)
			if !ok {
				return fmt.Errorf("phase %q is not defined in this workflow definition", st.Phase)
			}

			fmt.Print(doctor.Report(st, phase))
			return nil
		},
	}
}
