package eventlog

import (
	"fmt"
	"strings"
)

// Report renders events as a markdown meeting report: the latest summary,
// every answered question with its sources, then the transcript.
func Report(title string, events []Event) string {
	var (
		summary    string
		answers    []Event
		transcript []Event
		errs       int
	)
	for _, ev := range events {
		switch ev.Kind {
		case KindSummary:
			summary = ev.Summary
		case KindAnswer:
			answers = append(answers, ev)
		case KindTranscript:
			transcript = append(transcript, ev)
		case KindError:
			errs++
		}
	}

	var b strings.Builder
	if title == "" {
		title = "회의 보고서"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(events) > 0 {
		start, end := events[0].Timestamp, events[len(events)-1].Timestamp
		fmt.Fprintf(&b, "- 기간: %s ~ %s\n", start.Format("2006-01-02 15:04"), end.Format("15:04"))
	}
	fmt.Fprintf(&b, "- 질문 %d건, 발언 %d건", len(answers), len(transcript))
	if errs > 0 {
		fmt.Fprintf(&b, ", 오류 %d건", errs)
	}
	b.WriteString("\n\n")

	b.WriteString("## 요약\n\n")
	if summary == "" {
		b.WriteString("_요약 없음_\n\n")
	} else {
		b.WriteString(strings.TrimSpace(summary))
		b.WriteString("\n\n")
	}

	if len(answers) > 0 {
		b.WriteString("## 질의응답\n\n")
		for i, ev := range answers {
			fmt.Fprintf(&b, "### Q%d. %s\n\n", i+1, ev.Question)
			if ev.Conclusion != "" {
				fmt.Fprintf(&b, "**결론**: %s\n\n", ev.Conclusion)
				if ev.Rationale != "" {
					fmt.Fprintf(&b, "**근거**: %s\n\n", ev.Rationale)
				}
			} else {
				b.WriteString(strings.TrimSpace(ev.Answer))
				b.WriteString("\n\n")
			}
			if len(ev.Sources) > 0 {
				b.WriteString("출처:\n")
				for _, src := range ev.Sources {
					fmt.Fprintf(&b, "- [%s](%s)\n", src.Title, src.URI)
				}
				b.WriteString("\n")
			}
		}
	}

	if len(transcript) > 0 {
		b.WriteString("## 전체 기록\n\n")
		for _, ev := range transcript {
			ts := ev.Timestamp.Format("15:04:05")
			if ev.Speaker != "" {
				fmt.Fprintf(&b, "- `%s` **%s**: %s\n", ts, ev.Speaker, ev.Transcript)
			} else {
				fmt.Fprintf(&b, "- `%s` %s\n", ts, ev.Transcript)
			}
		}
	}
	return b.String()
}
