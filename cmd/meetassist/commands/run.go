package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cpunion/meetassist/pkg/assistant"
	"github.com/cpunion/meetassist/pkg/eventlog"
	"github.com/cpunion/meetassist/pkg/session"
	"github.com/cpunion/meetassist/pkg/types"
)

var (
	runFile        string
	runLog         string
	runMetricsAddr string
	runNoAnswer    bool
	stateDir       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow a transcript and answer questions as they come up",
	Long: `Read finalized transcript lines from stdin (or --file), detect questions,
answer them and keep a running summary. A line of the form "Speaker: text"
is attributed to Speaker.

The final summary is printed when the input ends or on interrupt.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "",
		"Transcript file to read instead of stdin")
	runCmd.Flags().StringVar(&runLog, "log", "",
		"Append events to this JSONL file for 'meetassist report'")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().BoolVar(&runNoAnswer, "no-answer", false,
		"Only summarize; do not answer detected questions")
	runCmd.Flags().StringVar(&stateDir, "state", "",
		"Directory to resume the meeting from and save it to")
}

// meeting is a running assistant plus its optional persisted session.
type meeting struct {
	*assistant.Assistant
	store *session.Store
	sess  *session.Session
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var in io.Reader = cmd.InOrStdin()
	if runFile != "" {
		f, err := os.Open(runFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	a, err := startSession(cmd, func(cfg *assistant.Config) {
		if runNoAnswer {
			cfg.AutoAnswer = false
		}
	})
	if err != nil {
		return err
	}

	stopMetrics := serveMetrics(runMetricsAddr)
	defer stopMetrics()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			logger.Error().Err(err).Msg("read transcript")
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if seg, ok := parseLine(line); ok {
				a.HandleTranscript(ctx, seg)
			}
		}
	}

	return finishSession(cmd, a)
}

// startSession builds and starts an assistant that prints answers and
// errors, logging events to --log and resuming from --state when set.
func startSession(cmd *cobra.Command, adjust func(*assistant.Config)) (*meeting, error) {
	cfg, err := loadAssistantConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}

	if runLog != "" {
		events, err := eventlog.NewJSONLLogger(runLog)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		cfg.Events = events
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	cfg.OnAnswer = func(res *types.AnswerResult) {
		mu.Lock()
		defer mu.Unlock()
		printAnswer(out, res)
	}
	cfg.OnError = func(question string, err error) {
		logger.Error().Err(err).Str("question", question).Msg("question not answered")
	}
	cfg.OnSummary = func(summary string) {
		logger.Info().Int("chars", len(summary)).Msg("summary updated")
	}

	if os.Getenv("GOOGLE_API_KEY") == "" {
		cfg.AutoAnswer = false
	}

	a, err := buildAssistant(cmd, cfg)
	if err != nil {
		if cfg.Events != nil {
			_ = cfg.Events.Close()
		}
		return nil, err
	}
	m := &meeting{Assistant: a}
	if stateDir != "" {
		m.store = session.NewStore(stateDir)
		m.sess, err = m.store.LoadOrNew(cfg.Topic)
		if err != nil {
			_ = a.Stop()
			return nil, fmt.Errorf("load session: %w", err)
		}
		if cfg.Topic != "" {
			m.sess.Topic = cfg.Topic
		}
		a.Restore(m.sess)
	}

	if err := launch(cmd.Context(), m); err != nil {
		return nil, err
	}
	return m, nil
}

// launch starts the summary loop, releasing the queue and event log if the
// assistant cannot start.
func launch(ctx context.Context, m *meeting) error {
	if err := m.Start(ctx); err != nil {
		_ = m.Stop()
		return fmt.Errorf("start assistant: %w", err)
	}
	return nil
}

// finishSession waits for pending answers, folds the remaining transcript
// into the summary and prints it.
func finishSession(cmd *cobra.Command, a *meeting) error {
	a.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if a.IsConfigured() {
		a.SummarizeNow(ctx)
	}

	stats := a.QueueStats()
	logger.Info().
		Int("requests", stats.Enqueued).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("retries", stats.Retries).
		Msg("session finished")

	if s := a.Summary(); s != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n## 회의 요약\n%s\n", s)
	}

	var saveErr error
	if a.store != nil {
		a.Snapshot(a.sess)
		if saveErr = a.store.Save(a.sess); saveErr == nil {
			logger.Info().Str("path", a.store.Path()).Msg("session saved")
		}
	}
	return errors.Join(saveErr, a.Stop())
}

// parseLine turns "Speaker: text" or "text" into a segment.
func parseLine(line string) (types.TranscriptSegment, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return types.TranscriptSegment{}, false
	}
	seg := types.TranscriptSegment{Text: line, Timestamp: time.Now()}
	if speaker, text, ok := strings.Cut(line, ":"); ok {
		speaker = strings.TrimSpace(speaker)
		if speaker != "" && len([]rune(speaker)) <= 32 && strings.Count(speaker, " ") < 3 &&
			!strings.ContainsAny(speaker, "?.!") {
			seg.Speaker = speaker
			seg.Text = strings.TrimSpace(text)
		}
	}
	return seg, seg.Text != ""
}

// serveMetrics exposes the default Prometheus registry on addr. The
// returned function shuts the server down.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
