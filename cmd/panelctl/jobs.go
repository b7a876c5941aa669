package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/makeasinger/controlpanel/pkg/client"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

var jobDetach bool

// runJob starts a job and, unless detached, prints its progress until it
// completes. Waiting is bounded only by the command's context.
func runJob(cmd *cobra.Command, req protocol.Payload) error {
	return session(cmd, func(ctx context.Context, c *client.Client) error {
		startCtx, cancel := context.WithTimeout(ctx, timeout)
		started, watch, err := c.StartJob(startCtx, req)
		cancel()
		if err != nil {
			return err
		}
		if jobDetach {
			return printJSON(cmd, started)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "job %d: %s\n", started.JobID, started.Status)
		for {
			select {
			case ev, ok := <-watch.Progress:
				if !ok {
					done, ok := <-watch.Complete
					if !ok {
						return fmt.Errorf("job %d: %w; check it with 'panelctl job %d'", started.JobID, watch.Err(), started.JobID)
					}
					fmt.Fprintf(out, "job %d: %s %d%%\n", done.JobID, done.Status, done.Progress)
					return nil
				}
				fmt.Fprintf(out, "job %d: %s %d%%\n", ev.JobID, ev.Status, ev.Progress)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the process job",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, protocol.StartProcessRequest{})
	},
}

var installAssetCmd = &cobra.Command{
	Use:   "install-asset <asset>",
	Short: "Install an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, protocol.InstallAssetRequest{Asset: args[0]})
	},
}

var installPatchCmd = &cobra.Command{
	Use:   "install-patch <patch>",
	Short: "Install a patch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, protocol.InstallPatchRequest{Patch: args[0]})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{startCmd, installAssetCmd, installPatchCmd} {
		cmd.Flags().BoolVarP(&jobDetach, "detach", "d", false, "print the job id and return without waiting")
		rootCmd.AddCommand(cmd)
	}
}
