package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/pkg/client"
)

const defaultURL = "ws://localhost:8080/ws"

var (
	serverURL string
	timeout   time.Duration
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "panelctl",
	Short:         "Control panel command line client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultURL, "websocket endpoint of the server")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout for connecting and for each request")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log connection events to stderr")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// session connects, runs fn and disconnects. ctx passed to fn ends with
// the command, not with the timeout.
func session(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	log := zap.NewNop()
	if verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = dev
	}
	defer log.Sync()

	c := client.New(client.Options{URL: serverURL, Logger: log})
	defer c.Close()
	c.Connect()

	dialCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := c.WaitConnected(dialCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	return fn(cmd.Context(), c)
}

// call runs one request under the timeout and prints its result as JSON.
func call[T any](cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) (T, error)) error {
	return session(cmd, func(ctx context.Context, c *client.Client) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := fn(ctx, c)
		if err != nil {
			return err
		}
		return printJSON(cmd, v)
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
