package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	client "ringelect/clients/go"
)

// withClient dials the status service and runs fn with a request-scoped context.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
	defer cancel()

	c, err := client.New(ctx, serverAddr, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the participant's election state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.GetStatus(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func leaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leader",
		Short: "Print the elected leader, if known",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.GetStatus(ctx)
				if err != nil {
					return err
				}
				if !st.HasLeader {
					return fmt.Errorf("participant %d has no leader yet", st.ParticipantID)
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.Leader)
				return nil
			})
		},
	}
}

func outcomesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List stored election outcomes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				outcomes, err := c.ListOutcomes(ctx, limit)
				if err != nil {
					return err
				}
				printOutcomes(cmd.OutOrStdout(), outcomes)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of outcomes (0 for all)")
	return cmd
}

func printStatus(w io.Writer, st *client.Status) {
	fmt.Fprintf(w, "Participant: %d\n", st.ParticipantID)
	fmt.Fprintf(w, "Run: %s\n", st.RunID)
	fmt.Fprintf(w, "State: %s\n", st.State)
	fmt.Fprintf(w, "Forwarding: %d\n", st.ToSend)
	if st.HasLeader {
		role := "follower"
		if st.Winner {
			role = "winner"
		}
		fmt.Fprintf(w, "Leader: %d (%s)\n", st.Leader, role)
	} else {
		fmt.Fprintln(w, "Leader: unknown")
	}
	fmt.Fprintf(w, "Ticks: %d\n", st.Ticks)
	fmt.Fprintf(w, "Received: %d (adopted %d, stale %d, ignored %d)\n",
		st.Counters.Received, st.Counters.Adopted, st.Counters.Stale, st.Counters.Ignored)
	fmt.Fprintf(w, "Sent: %d (refused %d)\n", st.Counters.Sent, st.Counters.Refused)
	fmt.Fprintf(w, "Dropped datagrams: %d\n", st.Counters.Dropped)
}

func printOutcomes(w io.Writer, outcomes []client.Outcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes stored")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tPARTICIPANT\tLEADER\tWINNER\tTICKS\tDURATION\tRUN")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%d\t%s\t%s\n",
			o.FinishedAt.Format(time.RFC3339), o.ParticipantID, o.LeaderID, o.Winner, o.Ticks, o.Duration, o.RunID)
	}
	_ = tw.Flush()
}
