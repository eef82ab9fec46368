package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	agent "github.com/Protocol-Lattice/journal-agent"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the journal interactively",
		Long:  "Each line is one turn. Type /mode log|chat to switch modes, /quit to leave.",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	cmd.Flags().StringP("session", "s", "", "Session id (default: random)")
	rootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		defer func() {
			if err := a.agent.EndSession(context.Background(), a.cfg.UserID, sessionID); err != nil {
				a.logger.Printf("end session: %v", err)
			}
		}()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s. Say \"help\" for what I can do.\n", sessionID)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
				continue
			case line == "/quit" || line == "/exit":
				return nil
			case strings.HasPrefix(line, "/mode"):
				mode := strings.TrimSpace(strings.TrimPrefix(line, "/mode"))
				if mode == "" {
					fmt.Fprintln(out, a.agent.Mode(a.cfg.UserID, sessionID))
					continue
				}
				if err := a.agent.SetMode(a.cfg.UserID, sessionID, agent.Mode(strings.ToLower(mode))); err != nil {
					fmt.Fprintln(out, err)
				}
				continue
			}

			resp, err := a.agent.HandleTurn(ctx, a.cfg.UserID, sessionID, line)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n[%s, %d entries]\n", resp.Text, resp.Intent, resp.EntryCount)
			if ctx.Err() != nil {
				return nil
			}
		}
	})
}
