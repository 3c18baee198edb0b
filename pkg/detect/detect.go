// Package detect finds questions in transcribed speech.
//
// Speech recognizers rarely emit punctuation, so besides a trailing question
// mark the detector looks at English interrogative openers and Korean
// interrogative endings.
package detect

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var englishOpeners = []string{
	"what", "why", "how", "when", "where", "who", "whom", "whose", "which",
	"is", "are", "was", "were", "do", "does", "did", "can", "could", "should",
	"would", "will", "shall", "may", "might", "have", "has", "had",
	"isn't", "aren't", "don't", "doesn't", "didn't", "can't", "won't",
}

var englishPhrases = []string{
	"tell me", "explain", "any idea", "i wonder", "do you know",
}

var koreanEndings = []string{
	"습니까", "입니까", "나요", "까요", "을까", "는지", "은지", "인지",
	"죠", "지요", "는가", "인가", "냐", "가요", "할까",
	"뭐야", "뭐예요", "뭔가요", "어때", "어때요", "어떤가요", "맞아", "맞나요",
	"까",
}

var koreanWords = []string{
	"무엇", "뭐", "왜", "어떻게", "언제", "어디", "누가", "누구", "어느", "얼마", "몇",
}

// koreanParticles may follow a question word inside the same token.
var koreanParticles = []string{
	"", "이", "가", "을", "를", "은", "는", "도", "만", "에", "에서", "서", "에게", "한테",
	"의", "로", "으로", "까지", "부터", "나", "요", "야", "든", "든지", "라도",
	"예요", "에요", "이에요", "인가요", "인지",
}

// koreanCounters may follow 몇 before any particle.
var koreanCounters = []string{
	"시", "시간", "명", "개", "번", "살", "일", "월", "년", "분", "주", "층", "배", "가지", "차", "퍼센트",
}

// Detector classifies sentences as questions.
type Detector struct {
	// MinRunes is the shortest text considered; shorter fragments are
	// treated as filler.
	MinRunes int
}

// New returns a detector with default settings.
func New() *Detector {
	return &Detector{MinRunes: 5}
}

// IsQuestion reports whether text reads as a question.
func (d *Detector) IsQuestion(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < d.MinRunes {
		return false
	}
	if strings.HasSuffix(text, "?") || strings.HasSuffix(text, "？") {
		return true
	}

	body := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	lower := strings.ToLower(body)

	if first, _, _ := strings.Cut(lower, " "); first != "" {
		for _, w := range englishOpeners {
			if first == w {
				return true
			}
		}
	}
	for _, p := range englishPhrases {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}

	for _, end := range koreanEndings {
		if strings.HasSuffix(body, end) {
			return true
		}
	}
	if hasHangul(body) && !strings.HasSuffix(body, "다") {
		for _, tok := range strings.Fields(body) {
			if isKoreanQuestionWord(tok) {
				return true
			}
		}
	}
	return false
}

// isKoreanQuestionWord reports whether tok is a question word, optionally
// followed by a particle. 왜곡 and 몇몇 do not match.
func isKoreanQuestionWord(tok string) bool {
	tok = strings.TrimFunc(tok, unicode.IsPunct)
	for _, w := range koreanWords {
		rest, ok := strings.CutPrefix(tok, w)
		if !ok {
			continue
		}
		if isParticle(rest) {
			return true
		}
		if w == "몇" {
			for _, c := range koreanCounters {
				if after, ok := strings.CutPrefix(rest, c); ok && isParticle(after) {
					return true
				}
			}
		}
	}
	return false
}

func isParticle(s string) bool {
	for _, p := range koreanParticles {
		if s == p {
			return true
		}
	}
	return false
}

// Extract splits text into sentences and returns those that are questions.
func (d *Detector) Extract(text string) []string {
	var out []string
	for _, s := range Sentences(text) {
		if d.IsQuestion(s) {
			out = append(out, s)
		}
	}
	return out
}

// Sentences splits text after sentence-ending punctuation and newlines.
func Sentences(text string) []string {
	var (
		out   []string
		start int
	)
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range text {
		switch r {
		case '.', '?', '!', '？', '。', '\n':
			flush(i + utf8.RuneLen(r))
		}
	}
	flush(len(text))
	return out
}

func hasHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
