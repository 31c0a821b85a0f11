package research

import "time"

type ResponseMetadata struct {
	SubQuestionCount    int    `json:"sub_question_count"`
	SourcesAnalyzed     int    `json:"sources_analyzed"`
	CompletionTimestamp string `json:"completion_timestamp"`
}

// Response is the payload of the terminal done event.
type Response struct {
	RunID            string           `json:"run_id"`
	Query            string           `json:"query"`
	ExecutiveSummary string           `json:"executive_summary"`
	Report           string           `json:"report"`
	KeyTakeaways     []string         `json:"key_takeaways"`
	Citations        []Citation       `json:"citations"`
	Limitations      string           `json:"limitations"`
	Metadata         ResponseMetadata `json:"metadata"`
}

func BuildResponse(state RunState, completedAt time.Time) Response {
	takeaways := state.KeyTakeaways
	if takeaways == nil {
		takeaways = []string{}
	}
	return Response{
		RunID:            state.RunID,
		Query:            state.Query,
		ExecutiveSummary: state.ExecutiveSummary,
		Report:           state.Report,
		KeyTakeaways:     append([]string{}, takeaways...),
		Citations:        DedupeCitations(state.Citations),
		Limitations:      state.Limitations,
		Metadata: ResponseMetadata{
			SubQuestionCount:    state.WorkItemCount(),
			SourcesAnalyzed:     state.SourcesAnalyzed,
			CompletionTimestamp: completedAt.UTC().Format(time.RFC3339),
		},
	}
}
