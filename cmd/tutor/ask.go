package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/client/state"
)

var (
	askLevel   string
	askEmotion string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.chat.SelectLevel(askLevel); err != nil {
			return err
		}
		if askEmotion != "" {
			label, ok := emotion.Parse(askEmotion)
			if !ok {
				return fmt.Errorf("unknown emotion %q", askEmotion)
			}
			a.store.EmotionCell().Set(label)
		}

		done := make(chan error, 1)
		go func() { done <- a.chat.Submit(cmd.Context(), strings.Join(args, " ")) }()

		out := cmd.OutOrStdout()
		printed := 0
		flush := func() {
			text := botText(a.store)
			if len(text) > printed {
				fmt.Fprint(out, text[printed:])
				printed = len(text)
			}
		}
		for {
			select {
			case <-a.store.Changed():
				flush()
			case err := <-done:
				if err != nil {
					if printed > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintln(out, botText(a.store))
					return err
				}
				flush()
				fmt.Fprintln(out)
				return nil
			}
		}
	},
}

// botText returns the newest bot message.
func botText(store *state.Store) string {
	msgs := store.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func init() {
	askCmd.Flags().StringVarP(&askLevel, "level", "l", "Beginner", "skill level: Beginner or Advanced")
	askCmd.Flags().StringVarP(&askEmotion, "emotion", "e", "", "emotion to send instead of the neutral default")
	rootCmd.AddCommand(askCmd)
}
