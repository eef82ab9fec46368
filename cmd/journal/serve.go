package main

import (
	"context"

	"github.com/Protocol-Lattice/journal-agent/src/config"
	"github.com/Protocol-Lattice/journal-agent/src/mcpserver"
	"github.com/spf13/cobra"
)

func init() {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the journal as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				return mcpserver.Serve(mcpserver.NewServer(a.engine, a.agent, a.cfg.UserID))
			})
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			return config.Save(path, config.Default())
		},
	}

	rootCmd.AddCommand(mcpCmd, initCmd)
}
