package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pingerus-agent:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "pingerus-agent",
		Short:         "Run scheduled health checks and serve their status over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "agent settings file (yaml)")
	f.String("monitors", "", "monitors file (yaml)")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.Bool("daemon", false, "detach from the terminal and run in the background")
	f.String("pidfile", "", "write the agent pid to this file")
	return cmd
}
