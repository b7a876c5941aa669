package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/makeasinger/controlpanel/pkg/client"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

var timeCmd = &cobra.Command{
	Use:   "time",
	Short: "Print the server clock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (string, error) {
			return c.Time(ctx)
		})
	},
}

var testCmd = &cobra.Command{
	Use:   "test [message]",
	Short: "Check the round trip to the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := ""
		if len(args) == 1 {
			message = args[0]
		}
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.TestResponse, error) {
			return c.Test(ctx, message)
		})
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Read or change environment values",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environment values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (map[string]string, error) {
			return c.EnvValues(ctx)
		})
	},
}

var envSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one environment value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.SetEnvValueResponse, error) {
			return c.SetEnvValue(ctx, args[0], args[1])
		})
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.JobStatusResponse, error) {
			return c.JobStatus(ctx, jobID)
		})
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List user accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) ([]protocol.Account, error) {
			return c.Accounts(ctx)
		})
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret <name>",
	Short: "Print one secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (string, error) {
			return c.Secret(ctx, args[0])
		})
	},
}

var switchDeviceCmd = &cobra.Command{
	Use:   "switch-device <device>",
	Short: "Make another device current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.SwitchDeviceResponse, error) {
			return c.SwitchDevice(ctx, args[0])
		})
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Ask the server to restart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.ServerStatus, error) {
			return c.Restart(ctx)
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the server to stop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, func(ctx context.Context, c *client.Client) (protocol.ServerStatus, error) {
			return c.Shutdown(ctx)
		})
	},
}

var downloadOutput string

var downloadLogCmd = &cobra.Command{
	Use:   "download-log",
	Short: "Save the server log history to a file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return session(cmd, func(ctx context.Context, c *client.Client) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			dl, err := c.DownloadLog(ctx)
			if err != nil {
				return err
			}
			path := downloadOutput
			if path == "" {
				path = dl.FileName
			}
			if err := os.WriteFile(path, []byte(dl.Content), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(dl.Content), path)
			return nil
		})
	},
}

var logsFollow bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the server log history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return session(cmd, func(ctx context.Context, c *client.Client) error {
			out := cmd.OutOrStdout()
			if logsFollow {
				sub := c.OnLog(func(_ int64, ev protocol.LogEvent) {
					fmt.Fprintln(out, ev.Text)
				})
				defer sub.Unsubscribe()
			}

			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			dl, err := c.DownloadLog(reqCtx)
			cancel()
			if err != nil {
				return err
			}
			if !logsFollow {
				fmt.Fprint(out, dl.Content)
				return nil
			}
			<-ctx.Done()
			return nil
		})
	},
}

func init() {
	envCmd.AddCommand(envListCmd, envSetCmd)

	downloadLogCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "file to write (default: the server's file name)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing new lines until interrupted")

	rootCmd.AddCommand(
		timeCmd,
		testCmd,
		envCmd,
		jobCmd,
		accountsCmd,
		secretCmd,
		switchDeviceCmd,
		restartCmd,
		shutdownCmd,
		downloadLogCmd,
		logsCmd,
	)
}
