package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cpunion/meetassist/pkg/stt"
	"github.com/cpunion/meetassist/pkg/types"
)

var (
	sttURL        string
	sttSpeaker    string
	sttSampleRate int
	sttWait       time.Duration
)

var sttCmd = &cobra.Command{
	Use:   "stt <audio-file>...",
	Short: "Transcribe audio chunks with the STT server and follow the meeting",
	Long: `Send each audio file as one chunk to a Faster-Whisper websocket server,
feed the recognized text into the assistant and print answers. Files are
sent in order; chunks without speech produce no transcript.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSTT,
}

func init() {
	sttCmd.Flags().StringVar(&sttURL, "url", envOr("MEETASSIST_STT_URL", "ws://localhost:8000/ws/stt"),
		"STT websocket endpoint")
	sttCmd.Flags().StringVar(&sttSpeaker, "speaker", "",
		"Speaker name attached to every chunk")
	sttCmd.Flags().IntVar(&sttSampleRate, "sample-rate", 16000,
		"Audio sample rate sent in chunk metadata")
	sttCmd.Flags().DurationVar(&sttWait, "wait", 30*time.Second,
		"How long to wait for a transcript per chunk")
	sttCmd.Flags().StringVar(&runLog, "log", "",
		"Append events to this JSONL file for 'meetassist report'")
	sttCmd.Flags().StringVar(&stateDir, "state", "",
		"Directory to resume the meeting from and save it to")
}

func runSTT(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	health, err := stt.Health(hctx, stt.HTTPBase(sttURL))
	cancel()
	if err != nil {
		return fmt.Errorf("stt server: %w", err)
	}
	if !health.Healthy() {
		logger.Warn().Str("status", health.Status).Str("model", health.Model).Msg("stt server degraded")
	}

	client, err := stt.Dial(ctx, sttURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	a, err := startSession(cmd, nil)
	if err != nil {
		return err
	}

	meta := stt.Meta{SampleRate: sttSampleRate, Speaker: stt.Speaker{Type: "local", Name: sttSpeaker}}
	if sttSpeaker == "" {
		meta.Speaker.Type = "unknown"
	}

	for _, path := range args {
		if ctx.Err() != nil {
			break
		}
		audio, err := os.ReadFile(path)
		if err != nil {
			logger.Error().Err(err).Str("file", path).Msg("skip chunk")
			continue
		}
		meta.Format = filepath.Ext(path)

		cctx, cancel := context.WithTimeout(ctx, sttWait)
		res, err := client.Transcribe(cctx, meta, audio)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("no transcript")
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", res.Speaker.Name, res.Text)
		a.HandleTranscript(ctx, types.TranscriptSegment{
			Text:      res.Text,
			Speaker:   res.Speaker.Name,
			Timestamp: res.ReceivedAt,
		})
	}

	return finishSession(cmd, a)
}
