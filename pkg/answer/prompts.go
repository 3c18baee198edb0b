package answer

import (
	"fmt"
	"strings"

	"github.com/cpunion/meetassist/pkg/types"
)

const (
	conclusionMarker = "[결론]"
	rationaleMarker  = "[근거]"
)

const answerFormat = `다음 형식으로 답변하세요:
[결론] 질문에 대한 핵심 답변 (1~2문장)
[근거] 결론을 뒷받침하는 근거와 설명`

// buildSystemInstruction assembles persona, meeting topic, running summary
// and the recent transcript window, in that order.
func buildSystemInstruction(persona types.Persona, topic, summary, transcript string) string {
	var b strings.Builder
	b.WriteString(persona.Instruction())

	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, "\n\n## 회의 주제\n%s", topic)
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		fmt.Fprintf(&b, "\n\n## 지금까지의 회의 요약\n%s", summary)
	}
	if transcript = strings.TrimSpace(transcript); transcript != "" {
		fmt.Fprintf(&b, "\n\n## 최근 대화 내용\n%s", transcript)
	}
	return b.String()
}

// buildQuestion wraps the question with the fixed two-section answer format.
func buildQuestion(question string) string {
	return fmt.Sprintf("질문: %s\n\n%s", question, answerFormat)
}

// parseSections splits an answer into its [결론] and [근거] parts. Missing
// markers yield empty strings.
func parseSections(text string) (conclusion, rationale string) {
	ci := strings.Index(text, conclusionMarker)
	ri := strings.Index(text, rationaleMarker)

	switch {
	case ci >= 0 && ri > ci:
		conclusion = text[ci+len(conclusionMarker) : ri]
		rationale = text[ri+len(rationaleMarker):]
	case ci >= 0:
		conclusion = text[ci+len(conclusionMarker):]
	case ri >= 0:
		rationale = text[ri+len(rationaleMarker):]
	}
	return cleanSection(conclusion), cleanSection(rationale)
}

func cleanSection(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":： ")
	return strings.TrimSpace(s)
}
