package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/simon-task/trial"
)

func newTrialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Print the generated trial order without presenting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			trials, err := generate(a.cfg)
			if err != nil {
				return err
			}
			return printTrials(cmd.OutOrStdout(), trials)
		},
	}
	cmd.Flags().String("stimuli", "", "stimulus list (csv)")
	cmd.Flags().Uint64("seed", 0, "trial order seed")
	a.bindFlag(cmd, "experiment.stimuli", "stimuli")
	a.bindFlag(cmd, "experiment.seed", "seed")
	return cmd
}

func printTrials(w io.Writer, trials []trial.Trial) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tSTIMULUS\tPOSITION\tAPPROACH")
	for _, t := range trials {
		pos, err := t.Position()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", t.Index, t.Name(), pos, t.Stimulus.ShouldApproach)
	}
	return tw.Flush()
}
