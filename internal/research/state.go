package research

type WorkItem struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	SearchQueries []string `json:"search_queries"`
	Priority      int      `json:"priority"`
}

type Plan struct {
	WorkItems []WorkItem `json:"work_items"`
}

type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Evidence struct {
	WorkItemID    string     `json:"work_item_id"`
	Question      string     `json:"question"`
	Findings      []string   `json:"findings"`
	Sources       []Citation `json:"sources"`
	OpenQuestions []string   `json:"open_questions"`
}

// RunState is the cumulative record threaded through one pipeline execution.
type RunState struct {
	Query            string     `json:"query"`
	RunID            string     `json:"run_id"`
	Plan             *Plan      `json:"plan,omitempty"`
	Evidence         []Evidence `json:"evidence"`
	Report           string     `json:"report"`
	ExecutiveSummary string     `json:"executive_summary"`
	KeyTakeaways     []string   `json:"key_takeaways"`
	Limitations      string     `json:"limitations"`
	Citations        []Citation `json:"citations"`
	Errors           []string   `json:"errors"`
	SourcesAnalyzed  int        `json:"sources_analyzed"`
}

// Update is the partial output of one stage. Merge rules per field:
//
//	Plan, Report, ExecutiveSummary, Limitations  overwrite when non-nil
//	Evidence, KeyTakeaways, Citations, Errors    concatenate
//	SourcesAnalyzed                              sum
type Update struct {
	Plan             *Plan      `json:"plan,omitempty"`
	Evidence         []Evidence `json:"evidence,omitempty"`
	Report           *string    `json:"report,omitempty"`
	ExecutiveSummary *string    `json:"executive_summary,omitempty"`
	KeyTakeaways     []string   `json:"key_takeaways,omitempty"`
	Limitations      *string    `json:"limitations,omitempty"`
	Citations        []Citation `json:"citations,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
	SourcesAnalyzed  int        `json:"sources_analyzed,omitempty"`
}

func NewRunState(runID, query string) RunState {
	return RunState{
		Query:        query,
		RunID:        runID,
		Evidence:     []Evidence{},
		KeyTakeaways: []string{},
		Citations:    []Citation{},
		Errors:       []string{},
	}
}

func (s *RunState) Merge(update Update) {
	if update.Plan != nil {
		plan := update.Plan.clone()
		s.Plan = &plan
	}
	if update.Report != nil {
		s.Report = *update.Report
	}
	if update.ExecutiveSummary != nil {
		s.ExecutiveSummary = *update.ExecutiveSummary
	}
	if update.Limitations != nil {
		s.Limitations = *update.Limitations
	}
	s.Evidence = append(s.Evidence, update.Evidence...)
	s.KeyTakeaways = append(s.KeyTakeaways, update.KeyTakeaways...)
	s.Citations = append(s.Citations, update.Citations...)
	s.Errors = append(s.Errors, update.Errors...)
	s.SourcesAnalyzed += update.SourcesAnalyzed
}

// Clone returns a deep copy that shares no backing arrays with s.
func (s RunState) Clone() RunState {
	out := s
	if s.Plan != nil {
		plan := s.Plan.clone()
		out.Plan = &plan
	}
	out.Evidence = make([]Evidence, len(s.Evidence))
	for i, ev := range s.Evidence {
		out.Evidence[i] = ev.clone()
	}
	out.KeyTakeaways = append([]string{}, s.KeyTakeaways...)
	out.Citations = append([]Citation{}, s.Citations...)
	out.Errors = append([]string{}, s.Errors...)
	return out
}

func (s RunState) WorkItemCount() int {
	if s.Plan == nil {
		return 0
	}
	return len(s.Plan.WorkItems)
}

func (p Plan) clone() Plan {
	items := make([]WorkItem, len(p.WorkItems))
	for i, item := range p.WorkItems {
		item.SearchQueries = append([]string{}, item.SearchQueries...)
		items[i] = item
	}
	return Plan{WorkItems: items}
}

func (e Evidence) clone() Evidence {
	e.Findings = append([]string{}, e.Findings...)
	e.Sources = append([]Citation{}, e.Sources...)
	e.OpenQuestions = append([]string{}, e.OpenQuestions...)
	return e
}

func stringPtr(value string) *string {
	return &value
}
