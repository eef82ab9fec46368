package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/journal-agent/src/memory/engine"
	"github.com/spf13/cobra"
)

func init() {
	logCmd := &cobra.Command{
		Use:   "log [text]",
		Short: "Save a journal entry directly",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLog,
	}
	logCmd.Flags().StringSlice("topic", nil, "Topic to attach (repeatable)")
	logCmd.Flags().String("mood", "", "Mood label")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question, the same way chat would answer it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Rank entries by similarity and recency",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().IntP("limit", "l", 5, "Max results")
	searchCmd.Flags().Float64("boost", -1, "Recency boost in [0, 1] (default from config)")

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Count live entries",
		Args:  cobra.NoArgs,
		RunE:  runCount,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Soft delete one entry by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "Most frequent topics (needs the neo4j graph)",
		Args:  cobra.NoArgs,
		RunE:  runTopics,
	}
	topicsCmd.Flags().IntP("limit", "l", 10, "Max topics")

	rootCmd.AddCommand(logCmd, askCmd, searchCmd, countCmd, deleteCmd, topicsCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	topics, _ := cmd.Flags().GetStringSlice("topic")
	mood, _ := cmd.Flags().GetString("mood")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		id, err := a.engine.Add(ctx, engine.AddParams{
			UserID:       a.cfg.UserID,
			Text:         strings.Join(args, " "),
			Topics:       topics,
			Mood:         mood,
			LanguageCode: a.cfg.Speech.LanguageCode,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		resp, err := a.agent.HandleTurn(ctx, a.cfg.UserID, "", strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	boost, _ := cmd.Flags().GetFloat64("boost")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if boost < 0 {
			boost = a.cfg.Agent.RecencyBoost
		}
		hits, err := a.engine.SearchSimilar(ctx, a.cfg.UserID, strings.Join(args, " "), limit, boost)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "[]")
			return nil
		}
		b, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	})
}

func runCount(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		n, err := a.engine.EntryCount(ctx, a.cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ok, err := a.engine.SoftDelete(ctx, a.cfg.UserID, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no live entry %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}

func runTopics(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		counts, err := a.engine.TopicCounts(ctx, a.cfg.UserID, limit)
		if errors.Is(err, engine.ErrNoTopicGraph) {
			return fmt.Errorf("topics need store.neo4j_uri and a build with -tags neo4j")
		}
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", c.Topic, c.Count)
		}
		return nil
	})
}
