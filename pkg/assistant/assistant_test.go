package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpunion/meetassist/pkg/eventlog"
	"github.com/cpunion/meetassist/pkg/llm"
	"github.com/cpunion/meetassist/pkg/queue"
	"github.com/cpunion/meetassist/pkg/session"
	"github.com/cpunion/meetassist/pkg/types"
)

type call struct {
	summary bool
	at      time.Time
}

type stubProvider struct {
	mu    sync.Mutex
	calls []call
}

func (p *stubProvider) Generate(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	last := prompt.History[len(prompt.History)-1].Text
	isSummary := strings.Contains(last, "## 새 발언")

	p.mu.Lock()
	p.calls = append(p.calls, call{summary: isSummary, at: time.Now()})
	p.mu.Unlock()

	if isSummary {
		return &llm.Response{Text: "- 출시 일정 논의"}, nil
	}
	return &llm.Response{
		Text:    "[결론] 다음 달입니다.\n[근거] 일정표 기준",
		Sources: []types.Source{{Title: "Plan", URI: "https://example.com/plan"}},
	}, nil
}

func (p *stubProvider) snapshot() []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]call(nil), p.calls...)
}

type memEvents struct {
	mu     sync.Mutex
	events []eventlog.Event
	closed bool
}

func (m *memEvents) LogEvent(ev eventlog.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memEvents) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memEvents) kinds() map[eventlog.Kind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[eventlog.Kind]int)
	for _, ev := range m.events {
		out[ev.Kind]++
	}
	return out
}

func testConfig(interval time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Queue = queue.Config{MinInterval: interval, MaxRetries: 1, RetryDelay: time.Millisecond}
	cfg.SummaryMinChars = 10
	cfg.SummaryInterval = time.Hour
	return cfg
}

func TestHandleTranscript_AutoAnswers(t *testing.T) {
	provider := &stubProvider{}
	events := &memEvents{}

	var (
		mu      sync.Mutex
		answers []*types.AnswerResult
		errs    []error
	)
	cfg := testConfig(time.Millisecond)
	cfg.Events = events
	cfg.OnAnswer = func(r *types.AnswerResult) {
		mu.Lock()
		defer mu.Unlock()
		answers = append(answers, r)
	}
	cfg.OnError = func(_ string, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	a := New(provider, cfg, zerolog.Nop())
	require.NoError(t, a.SetAPIKey(context.Background(), "key"))
	ctx := context.Background()

	got := a.HandleTranscript(ctx, types.TranscriptSegment{Speaker: "Choi", Text: "출시 준비는 끝났습니다."})
	assert.Empty(t, got)

	got = a.HandleTranscript(ctx, types.TranscriptSegment{Speaker: "Kim", Text: "출시일은 언제인가요?"})
	assert.Equal(t, []string{"출시일은 언제인가요?"}, got)
	a.Wait()

	// The detector firing again on the same utterance is ignored softly.
	a.HandleTranscript(ctx, types.TranscriptSegment{Speaker: "Kim", Text: "출시일은 언제인가요?"})
	a.Wait()

	mu.Lock()
	require.Len(t, answers, 1)
	assert.Empty(t, errs)
	assert.Equal(t, "다음 달입니다.", answers[0].Conclusion)
	mu.Unlock()

	assert.Len(t, provider.snapshot(), 1)
	require.NoError(t, a.Stop())

	kinds := events.kinds()
	assert.Equal(t, 3, kinds[eventlog.KindTranscript])
	assert.Equal(t, 1, kinds[eventlog.KindAnswer])
	assert.Zero(t, kinds[eventlog.KindError])
	assert.True(t, events.closed)
}

func TestAsk_UsesRecentContextAndSummary(t *testing.T) {
	var prompts []*llm.Prompt
	var mu sync.Mutex
	provider := llm.ProviderFunc(func(ctx context.Context, p *llm.Prompt) (*llm.Response, error) {
		mu.Lock()
		prompts = append(prompts, p)
		mu.Unlock()
		if p.Grounding {
			return &llm.Response{Text: "[결론] 네\n[근거] 기록"}, nil
		}
		return &llm.Response{Text: "회의 요약본"}, nil
	})

	cfg := testConfig(time.Millisecond)
	cfg.ContextSegments = 2
	cfg.Topic = "분기 계획"
	a := New(provider, cfg, zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })
	require.NoError(t, a.SetAPIKey(context.Background(), "key"))
	ctx := context.Background()

	for _, text := range []string{"첫째 발언입니다", "둘째 발언입니다", "셋째 발언입니다"} {
		a.HandleTranscript(ctx, types.TranscriptSegment{Text: text})
	}
	_, changed := a.SummarizeNow(ctx)
	require.True(t, changed)

	res, err := a.Ask(ctx, "예산은 확정됐나요?")
	require.NoError(t, err)
	assert.Equal(t, "네", res.Conclusion)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, prompts, 2)
	sys := prompts[1].SystemInstruction
	assert.Contains(t, sys, "분기 계획")
	assert.Contains(t, sys, "회의 요약본")
	assert.Contains(t, sys, "셋째 발언")
	assert.NotContains(t, sys, "첫째 발언")
	assert.Len(t, a.History(), 2)
}

func TestAsk_Unconfigured(t *testing.T) {
	provider := &stubProvider{}
	var gotErr error
	cfg := testConfig(time.Millisecond)
	cfg.OnError = func(_ string, err error) { gotErr = err }
	a := New(provider, cfg, zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })

	assert.False(t, a.IsConfigured())
	_, err := a.Ask(context.Background(), "Is anyone there?")
	require.ErrorIs(t, err, llm.ErrUnconfigured)
	assert.ErrorIs(t, gotErr, llm.ErrUnconfigured)
	assert.Empty(t, provider.snapshot())
}

func TestSummarizeNow_Unconfigured(t *testing.T) {
	provider := &stubProvider{}
	a := New(provider, testConfig(time.Millisecond), zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })
	ctx := context.Background()

	a.HandleTranscript(ctx, types.TranscriptSegment{Text: "예산은 지난 분기와 동일하게 유지합니다."})
	got, changed := a.SummarizeNow(ctx)
	assert.False(t, changed)
	assert.Empty(t, got)
	assert.Empty(t, provider.snapshot())
	assert.Zero(t, a.QueueStats().Enqueued)

	require.NoError(t, a.SetAPIKey(ctx, "key"))
	_, changed = a.SummarizeNow(ctx)
	assert.True(t, changed)
	assert.Len(t, provider.snapshot(), 1)
}

type keyedProvider struct {
	stubProvider
	key string
	err error
}

func (p *keyedProvider) SetAPIKey(_ context.Context, key string) error {
	if p.err != nil {
		return p.err
	}
	p.key = key
	return nil
}

func TestSetAPIKey_ForwardsToProvider(t *testing.T) {
	provider := &keyedProvider{}
	a := New(provider, testConfig(time.Millisecond), zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })

	require.NoError(t, a.SetAPIKey(context.Background(), "AIza-some-key"))
	assert.Equal(t, "AIza-some-key", provider.key)
	assert.True(t, a.IsConfigured())
}

func TestSetAPIKey_ProviderErrorKeepsUnconfigured(t *testing.T) {
	provider := &keyedProvider{err: errors.New("bad key")}
	a := New(provider, testConfig(time.Millisecond), zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })

	err := a.SetAPIKey(context.Background(), "AIza-some-key")
	require.Error(t, err)
	assert.False(t, a.IsConfigured())
}

func TestSetAPIKey_ConfiguresGeminiProvider(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	provider, err := llm.NewGeminiProvider(context.Background(), llm.GeminiConfig{})
	require.NoError(t, err)
	require.False(t, provider.Configured())

	a := New(provider, testConfig(time.Millisecond), zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })

	require.NoError(t, a.SetAPIKey(context.Background(), "AIza-some-key"))
	assert.True(t, a.IsConfigured())
	assert.True(t, provider.Configured())
}

// Answers and summaries share one queue, so their provider calls keep the
// minimum spacing even when they fire together.
func TestSharedQueueSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	provider := &stubProvider{}
	a := New(provider, testConfig(interval), zerolog.Nop())
	t.Cleanup(func() { _ = a.Stop() })
	require.NoError(t, a.SetAPIKey(context.Background(), "key"))
	ctx := context.Background()

	a.HandleTranscript(ctx, types.TranscriptSegment{Text: "예산은 지난 분기와 동일하게 유지하기로 했습니다."})

	questions := []string{
		"What is the launch date for the product",
		"Who owns the migration rollback plan",
		"How much budget is left for marketing",
	}
	start := time.Now()
	var wg sync.WaitGroup
	for _, q := range questions {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := a.Ask(ctx, q)
			assert.NoError(t, err)
		}(q)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, changed := a.SummarizeNow(ctx)
		assert.True(t, changed)
	}()
	wg.Wait()
	elapsed := time.Since(start)

	calls := provider.snapshot()
	require.Len(t, calls, 4)
	summaries := 0
	for i, c := range calls {
		if c.summary {
			summaries++
		}
		if i == 0 {
			continue
		}
		gap := c.at.Sub(calls[i-1].at)
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond, "gap %d", i)
	}
	assert.Equal(t, 1, summaries)
	assert.GreaterOrEqual(t, elapsed, 3*interval-5*time.Millisecond)
	assert.Equal(t, 4, a.QueueStats().Succeeded)
}

func TestStartStop(t *testing.T) {
	a := New(&stubProvider{}, testConfig(time.Millisecond), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	require.Error(t, a.Start(ctx))
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
	require.Error(t, a.Start(ctx))

	_, err := a.Ask(ctx, "anything after stop?")
	assert.Error(t, err)
}

func TestStart_RunsSummaryLoop(t *testing.T) {
	provider := &stubProvider{}
	summaries := make(chan string, 1)
	cfg := testConfig(time.Millisecond)
	cfg.SummaryInterval = 10 * time.Millisecond
	cfg.OnSummary = func(s string) {
		select {
		case summaries <- s:
		default:
		}
	}
	a := New(provider, cfg, zerolog.Nop())
	require.NoError(t, a.SetAPIKey(context.Background(), "key"))
	t.Cleanup(func() { _ = a.Stop() })

	a.HandleTranscript(context.Background(), types.TranscriptSegment{Text: "다음 주 화요일에 베타를 배포합니다."})
	require.NoError(t, a.Start(context.Background()))

	select {
	case s := <-summaries:
		assert.Equal(t, "- 출시 일정 논의", s)
	case <-time.After(2 * time.Second):
		t.Fatal("summary loop did not run")
	}
	assert.Equal(t, "- 출시 일정 논의", a.Summary())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MEETASSIST_PERSONA", "pharma")
	t.Setenv("MEETASSIST_AUTO_ANSWER", "false")
	t.Setenv("MEETASSIST_SUMMARY_INTERVAL", "2m")
	t.Setenv("MEETASSIST_QUEUE_MIN_INTERVAL", "1s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, types.PersonaPharma, cfg.Persona)
	assert.False(t, cfg.AutoAnswer)
	assert.True(t, cfg.Grounding)
	assert.Equal(t, 2*time.Minute, cfg.SummaryInterval)
	assert.Equal(t, time.Second, cfg.Queue.MinInterval)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 20, cfg.ContextSegments)
}

func TestSnapshotRestore(t *testing.T) {
	cfg := testConfig(time.Millisecond)
	first := New(&stubProvider{}, cfg, zerolog.Nop())
	require.NoError(t, first.SetAPIKey(context.Background(), "key"))
	ctx := context.Background()

	first.HandleTranscript(ctx, types.TranscriptSegment{Text: "예산은 동결하기로 결정했습니다."})
	_, changed := first.SummarizeNow(ctx)
	require.True(t, changed)
	_, err := first.Ask(ctx, "What is the launch date for the product")
	require.NoError(t, err)
	first.Wait()

	sess := session.New("분기 계획")
	first.Snapshot(sess)
	require.NoError(t, first.Stop())

	second := New(&stubProvider{}, cfg, zerolog.Nop())
	t.Cleanup(func() { _ = second.Stop() })
	second.Restore(sess)

	assert.Equal(t, "- 출시 일정 논의", second.Summary())
	assert.Len(t, second.History(), 2)
	assert.Contains(t, second.RecentContext(), "예산은 동결")

	_, changed = second.SummarizeNow(ctx)
	assert.False(t, changed, "restored transcript is already summarized")
}
