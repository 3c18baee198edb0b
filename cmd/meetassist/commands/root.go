package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cpunion/meetassist/pkg/logging"
)

var (
	// logLevel is the zerolog level name.
	logLevel string

	// prettyLogs forces console log output.
	prettyLogs bool

	// backend selects the provider implementation: genai or adk.
	backend string

	// modelName is the Gemini model to call.
	modelName string

	persona   string
	topic     string
	grounding bool

	logger zerolog.Logger
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "meetassist",
	Short: "Real-time meeting assistant",
	Long: `meetassist listens to a meeting transcript, detects questions, answers
them with a grounded LLM and keeps a running summary of the meeting.

All provider calls share one rate-limited queue. GOOGLE_API_KEY (or a .env
file) supplies the credential.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		pretty := prettyLogs || isatty.IsTerminal(os.Stderr.Fd())
		logger = logging.New("meetassist", logLevel, pretty)
	},
}

// Execute runs the CLI. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("MEETASSIST_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false,
		"Human-readable logs even when stderr is not a terminal")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", envOr("MEETASSIST_BACKEND", "genai"),
		"Provider backend: genai (direct client) or adk (ADK model)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", envOr("GOOGLE_MODEL", "gemini-2.5-flash"),
		"Gemini model name")
	rootCmd.PersistentFlags().StringVar(&persona, "persona", "",
		"Answer persona: general, pharma (default from MEETASSIST_PERSONA)")
	rootCmd.PersistentFlags().StringVar(&topic, "topic", "",
		"Meeting topic included in prompts")
	rootCmd.PersistentFlags().BoolVar(&grounding, "grounding", true,
		"Enable web-search grounding for answers")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(sttCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
