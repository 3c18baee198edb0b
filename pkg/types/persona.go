package types

// Persona selects the domain phrasing of the system prompt.
type Persona string

const (
	PersonaGeneral Persona = "general"
	PersonaPharma  Persona = "pharma"
)

var personaInstructions = map[Persona]string{
	PersonaGeneral: `당신은 회의에 참석한 비즈니스 전문가 어시스턴트입니다.
- 회의 중 나온 질문에 간결하고 정확하게 답변합니다
- 추측이 필요한 경우 그 사실을 명시합니다
- 회의 맥락과 이전 대화를 고려합니다`,
	PersonaPharma: `당신은 제약/바이오 분야 회의를 지원하는 전문가 어시스턴트입니다.
- 약물, 임상시험, 규제(식약처, FDA, EMA) 관련 질문에 전문 용어로 답변합니다
- 용량, 적응증, 안전성 정보는 근거와 함께 제시합니다
- 확인되지 않은 정보는 단정하지 않습니다`,
}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	_, ok := personaInstructions[p]
	return ok
}

// Instruction returns the system prompt fragment for the persona, falling
// back to the general persona.
func (p Persona) Instruction() string {
	if s, ok := personaInstructions[p]; ok {
		return s
	}
	return personaInstructions[PersonaGeneral]
}
