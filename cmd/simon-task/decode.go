package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/simon-task/event"
	"github.com/lixenwraith/simon-task/recorder"
)

func newDecodeCmd(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "decode <session-dir|events.jsonl>",
		Short: "Print the trials and reactions of a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := eventsPath(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return recorder.Follow(ctx, path, func(e event.Event) error {
					return printEvent(out, e)
				})
			}
			return decode(out, path)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing events as the session records them")
	return cmd
}

// eventsPath accepts a session directory or the event log itself
func eventsPath(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		events, _, _ := recorder.SessionFiles(arg)
		return events, nil
	}
	return arg, nil
}

func decode(w io.Writer, path string) error {
	trials, err := recorder.LoadTrials(path)
	if err != nil {
		return err
	}
	reactions, err := recorder.LoadReactions(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIAL\tSTIMULUS\tPOSITION\tRESOLVED\tELAPSED")
	for _, t := range trials {
		elapsed := "-"
		if t.Resolved {
			elapsed = t.End.Sub(t.Start).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", t.Trial, t.Name, t.Condition, t.Resolved, elapsed)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TRIAL\tFRAME\tREACTION\tCORRECT\tAPPROACH")
	for _, r := range reactions {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%t\t%t\n", r.Trial, r.Frame, r.State, r.Correct, r.ShouldApproach)
	}
	return tw.Flush()
}

func printEvent(w io.Writer, e event.Event) error {
	var err error
	switch e.Kind {
	case event.KindTrialBoundary:
		if e.Boundary == nil {
			return nil
		}
		b := e.Boundary
		_, err = fmt.Fprintf(w, "%s trial %d %s %s %s\n", e.Time.Format("15:04:05.000"), e.Trial, b.Boundary, b.Name, b.Condition)
	case event.KindReaction:
		if e.Reaction == nil {
			return nil
		}
		r := e.Reaction
		_, err = fmt.Fprintf(w, "%s trial %d reaction %s frame=%d correct=%t\n", e.Time.Format("15:04:05.000"), e.Trial, r.State, r.Frame, r.Correct)
	}
	return err
}
