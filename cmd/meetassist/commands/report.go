package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpunion/meetassist/pkg/eventlog"
)

var (
	reportLog   string
	reportTitle string
	reportOut   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a markdown meeting report from an event log",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLog, "log", "",
		"JSONL event log written by 'meetassist run --log' (required)")
	reportCmd.Flags().StringVar(&reportTitle, "title", "",
		"Report title")
	reportCmd.Flags().StringVarP(&reportOut, "output", "o", "",
		"Write the report to a file instead of stdout")

	reportCmd.MarkFlagRequired("log")
}

func runReport(cmd *cobra.Command, args []string) error {
	events, err := eventlog.Read(reportLog)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	out := eventlog.Report(reportTitle, events)
	if reportOut == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	}
	if err := os.WriteFile(reportOut, []byte(out), 0644); err != nil {
		return err
	}
	logger.Info().Str("path", reportOut).Int("events", len(events)).Msg("report written")
	return nil
}
