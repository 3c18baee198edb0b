package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cpunion/meetassist/pkg/types"
)

var askContext string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question",
	Long: `Answer one question, optionally with a transcript excerpt as meeting
context. Useful to check credentials and persona settings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askContext, "context", "",
		"Transcript excerpt to answer against")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadAssistantConfig(cmd)
	if err != nil {
		return err
	}
	cfg.AutoAnswer = false

	a, err := buildAssistant(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Stop()

	if askContext != "" {
		a.HandleTranscript(cmd.Context(), types.TranscriptSegment{Text: askContext})
	}

	res, err := a.Ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	printAnswer(cmd.OutOrStdout(), res)
	return nil
}
