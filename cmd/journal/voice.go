package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Protocol-Lattice/journal-agent/src/voice"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "voice [audio-file]",
		Short: "Run one spoken turn: transcribe, answer and synthesize the reply",
		Args:  cobra.ExactArgs(1),
		RunE:  runVoice,
	}
	cmd.Flags().StringP("out", "o", "reply.mp3", "Where to write the spoken reply")
	cmd.Flags().StringP("session", "s", "", "Session id (default: random)")
	rootCmd.AddCommand(cmd)
}

func runVoice(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	audio, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		stt, tts, err := a.speech()
		if err != nil {
			return err
		}
		heard, err := stt.Transcribe(ctx, voice.AudioInput{
			Data:         audio,
			Format:       strings.TrimPrefix(filepath.Ext(args[0]), "."),
			LanguageCode: a.cfg.Speech.LanguageCode,
		})
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "you (%s): %s\n", heard.Path, heard.Payload.Text)

		resp, err := a.agent.HandleTurn(ctx, a.cfg.UserID, sessionID, heard.Payload.Text)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "journal: %s\n", resp.Text)

		spoken, err := tts.Synthesize(ctx, voice.SpeechRequest{
			Text:         resp.Text,
			Voice:        a.cfg.Speech.Voice,
			LanguageCode: a.cfg.Speech.LanguageCode,
		})
		if err != nil {
			return fmt.Errorf("synthesize: %w", err)
		}
		if err := os.WriteFile(out, spoken.Payload, 0o644); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		fmt.Fprintf(w, "reply audio (%s, %d bytes) written to %s\n", spoken.Path, len(spoken.Payload), out)
		return nil
	})
}
