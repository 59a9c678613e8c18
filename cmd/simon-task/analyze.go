package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/simon-task/datastore"
	"github.com/lixenwraith/simon-task/participant"
)

// participantQuerier is the read side of the datastore used by analyze
type participantQuerier interface {
	Participants(ctx context.Context) ([]datastore.ParticipantSummary, error)
	Rows(ctx context.Context, participantID string) ([]datastore.Row, error)
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var jsonLines bool
	cmd := &cobra.Command{
		Use:   "analyze [participant-id]",
		Short: "List participants, or dump one participant's trial rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Datastore.DSN == "" {
				return errors.New("no datastore: set datastore.dsn or --dsn")
			}
			ctx := cmd.Context()
			store, closeDB, err := datastore.Open(ctx, a.cfg.Datastore.DSN, a.log)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 0 {
				return listParticipants(ctx, cmd.OutOrStdout(), store)
			}
			return dumpRows(ctx, cmd.OutOrStdout(), store, args[0], jsonLines)
		},
	}
	cmd.Flags().String("dsn", "", "postgres connection string")
	cmd.Flags().BoolVar(&jsonLines, "json", false, "print rows as JSON lines")
	a.bindFlag(cmd, "datastore.dsn", "dsn")
	return cmd
}

func listParticipants(ctx context.Context, w io.Writer, q participantQuerier) error {
	participants, err := q.Participants(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tSESSIONS\tINFO")
	for _, p := range participants {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", p.ID, p.Sessions, formatInfo(p.Info))
	}
	return tw.Flush()
}

// formatInfo prints key=value pairs sorted by key, without the id
func formatInfo(info map[string]string) string {
	keys := make([]string, 0, len(info))
	for k := range info {
		if k == participant.KeyID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + info[k]
	}
	return strings.Join(parts, " ")
}

func dumpRows(ctx context.Context, w io.Writer, q participantQuerier, participantID string, jsonLines bool) error {
	rows, err := q.Rows(ctx, participantID)
	if err != nil {
		return err
	}

	if jsonLines {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(map[string]any{
				"session": r.SessionID,
				"trial":   r.Trial,
				"data":    r.Data,
				"created": r.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTRIAL\tSTIMULUS\tREACTION\tFRAME\tCORRECT\tDURATION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%v\t%v\t%v\n",
			r.SessionID, r.Trial, r.Data["name"], r.Data["reaction"], r.Data["reaction_frame"], r.Data["correct"], r.Data["duration"])
	}
	return tw.Flush()
}
