package stream

type EventName string

const (
	EventRunID            EventName = "run_id"
	EventPlanning         EventName = "planning"
	EventResearchProgress EventName = "research_progress"
	EventWriting          EventName = "writing"
	EventMessage          EventName = "message"
	EventDone             EventName = "done"
	EventError            EventName = "error"
)

// Event is one named frame on a run's stream. Data is marshalled to JSON by
// the sink.
type Event struct {
	Name EventName
	Data any
}

func (e Event) Terminal() bool {
	return e.Name == EventDone || e.Name == EventError
}

type RunIDPayload struct {
	RunID string `json:"run_id"`
}

type StatusPayload struct {
	Status string `json:"status"`
}

type ResearchProgressPayload struct {
	Status           string   `json:"status"`
	SubQuestionCount int      `json:"sub_question_count"`
	SubQuestions     []string `json:"sub_questions"`
}

type WritingPayload struct {
	Status          string `json:"status"`
	EvidenceCount   int    `json:"evidence_count"`
	SourcesAnalyzed int    `json:"sources_analyzed"`
}

type MessagePayload struct {
	Content string `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}
