package research

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/search"
)

const (
	noResultsFinding      = "No search results available for this question"
	noResultsOpenQuestion = "Unable to find relevant information"
	synthesisOpenQuestion = "Unable to fully synthesize findings"
	failedFinding         = "Research incomplete due to error"
	failedOpenQuestion    = "Unable to complete research for this question"
)

type ResearchLimits struct {
	// MaxQueries caps the search queries executed per work item.
	MaxQueries int
	// MaxResults caps the results requested per search query.
	MaxResults int
	// Concurrency bounds how many work items are searched or synthesized at once.
	Concurrency int
	// SynthesisResults caps the results handed to the model per work item.
	SynthesisResults int
	// FallbackExcerpts caps the raw excerpts used when synthesis fails.
	FallbackExcerpts int
	ExcerptRunes     int
}

func DefaultResearchLimits() ResearchLimits {
	return ResearchLimits{
		MaxQueries:       3,
		MaxResults:       3,
		Concurrency:      4,
		SynthesisResults: 10,
		FallbackExcerpts: 6,
		ExcerptRunes:     200,
	}
}

func (l ResearchLimits) withDefaults() ResearchLimits {
	def := DefaultResearchLimits()
	if l.MaxQueries <= 0 {
		l.MaxQueries = def.MaxQueries
	}
	if l.MaxResults <= 0 {
		l.MaxResults = def.MaxResults
	}
	if l.Concurrency <= 0 {
		l.Concurrency = def.Concurrency
	}
	if l.SynthesisResults <= 0 {
		l.SynthesisResults = def.SynthesisResults
	}
	if l.FallbackExcerpts <= 0 {
		l.FallbackExcerpts = def.FallbackExcerpts
	}
	if l.ExcerptRunes <= 0 {
		l.ExcerptRunes = def.ExcerptRunes
	}
	return l
}

// Researcher gathers and synthesizes evidence for every work item in a plan.
type Researcher struct {
	executor
	search search.Provider
	llm    llm.Provider
	limits ResearchLimits
}

func NewResearcher(searchProvider search.Provider, provider llm.Provider, limits ResearchLimits, opts ...Option) *Researcher {
	return &Researcher{
		executor: newExecutor(opts),
		search:   searchProvider,
		llm:      provider,
		limits:   limits.withDefaults(),
	}
}

type gathered struct {
	results []search.Result
	errors  []string
	err     error
}

type synthesis struct {
	findings      []string
	openQuestions []string
	degraded      bool
}

func (r *Researcher) Run(ctx context.Context, state RunState) (Update, error) {
	if state.Plan == nil || len(state.Plan.WorkItems) == 0 {
		return Update{Errors: []string{"No research plan available"}}, nil
	}
	items := orderedWorkItems(state.Plan.WorkItems)

	// Searches for independent work items run in parallel; each slot is
	// indexed by priority order so the merge below stays deterministic.
	gatheredItems := make([]gathered, len(items))
	var searches errgroup.Group
	searches.SetLimit(r.limits.Concurrency)
	for i := range items {
		i := i
		searches.Go(func() error {
			gatheredItems[i] = r.gather(ctx, items[i])
			return nil
		})
	}
	_ = searches.Wait()

	seen := NewURLSet()
	unique := make([][]search.Result, len(items))
	update := Update{Evidence: make([]Evidence, 0, len(items))}
	for i, item := range items {
		update.Errors = append(update.Errors, gatheredItems[i].errors...)
		if gatheredItems[i].err != nil {
			continue
		}
		for _, result := range gatheredItems[i].results {
			if !seen.Add(result.URL) {
				continue
			}
			if strings.TrimSpace(result.Title) == "" {
				result.Title = "Untitled"
			}
			unique[i] = append(unique[i], result)
			update.Citations = append(update.Citations, Citation{Title: result.Title, URL: strings.TrimSpace(result.URL)})
		}
		update.SourcesAnalyzed += len(unique[i])
		r.logger.Debug("work item searched",
			zap.String("run_id", state.RunID),
			zap.String("work_item_id", item.ID),
			zap.Int("unique_results", len(unique[i])),
		)
	}

	syntheses := make([]synthesis, len(items))
	var synth errgroup.Group
	synth.SetLimit(r.limits.Concurrency)
	for i := range items {
		i := i
		if gatheredItems[i].err != nil {
			continue
		}
		synth.Go(func() error {
			syntheses[i] = r.synthesize(ctx, items[i], unique[i])
			return nil
		})
	}
	_ = synth.Wait()

	degraded := false
	for i, item := range items {
		if err := gatheredItems[i].err; err != nil {
			degraded = true
			update.Errors = append(update.Errors, fmt.Sprintf("Research failed for sub-question '%s': %v", item.Question, err))
			update.Evidence = append(update.Evidence, Evidence{
				WorkItemID:    item.ID,
				Question:      item.Question,
				Findings:      []string{failedFinding},
				Sources:       []Citation{},
				OpenQuestions: []string{failedOpenQuestion},
			})
			continue
		}
		degraded = degraded || syntheses[i].degraded
		update.Evidence = append(update.Evidence, Evidence{
			WorkItemID:    item.ID,
			Question:      item.Question,
			Findings:      syntheses[i].findings,
			Sources:       citationsFor(unique[i]),
			OpenQuestions: syntheses[i].openQuestions,
		})
	}
	if degraded {
		metrics.StageDegraded.WithLabelValues(string(StageResearch)).Inc()
	}
	r.logger.Info("research stage finished",
		zap.String("run_id", state.RunID),
		zap.Int("evidence", len(update.Evidence)),
		zap.Int("sources_analyzed", update.SourcesAnalyzed),
	)
	return update, nil
}

// orderedWorkItems sorts by ascending priority, keeping plan order on ties.
func orderedWorkItems(items []WorkItem) []WorkItem {
	ordered := append([]WorkItem{}, items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

// gather runs the item's searches. The item fails only when every query
// failed; individual query failures are reported as errors.
func (r *Researcher) gather(ctx context.Context, item WorkItem) (out gathered) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = gathered{err: fmt.Errorf("search panicked: %v", recovered)}
		}
	}()
	queries := item.SearchQueries
	if len(queries) > r.limits.MaxQueries {
		queries = queries[:r.limits.MaxQueries]
	}
	var failures []error
	for _, query := range queries {
		results, err := r.searchOnce(ctx, query)
		if err != nil {
			failures = append(failures, err)
			out.errors = append(out.errors, fmt.Sprintf("Search failed for query '%s': %v", query, err))
			continue
		}
		out.results = append(out.results, results...)
	}
	if len(queries) == 0 {
		out.err = errors.New("no search queries")
	} else if len(failures) == len(queries) {
		out.err = errors.Join(failures...)
		out.errors = nil
	}
	return out
}

func (r *Researcher) searchOnce(ctx context.Context, query string) ([]search.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.search.Search(callCtx, query, r.limits.MaxResults)
}

func (r *Researcher) synthesize(ctx context.Context, item WorkItem, results []search.Result) (out synthesis) {
	if len(results) == 0 {
		return synthesis{
			findings:      []string{noResultsFinding},
			openQuestions: []string{noResultsOpenQuestion},
		}
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			out = r.excerptFallback(results)
		}
	}()
	if len(results) > r.limits.SynthesisResults {
		results = results[:r.limits.SynthesisResults]
	}
	messages, err := r.prompts.Researcher.Messages(struct {
		Question string
		Results  string
	}{Question: item.Question, Results: formatResults(results)})
	if err == nil {
		var text string
		text, err = r.generateJSON(ctx, r.llm, messages)
		if err == nil {
			var parsed struct {
				EvidenceBullets []string `json:"evidence_bullets"`
				Findings        []string `json:"findings"`
				OpenQuestions   []string `json:"open_questions"`
			}
			if err = decodeModelJSON(text, &parsed); err == nil {
				findings := nonEmpty(append(parsed.EvidenceBullets, parsed.Findings...))
				if len(findings) > 0 {
					return synthesis{findings: findings, openQuestions: nonEmpty(parsed.OpenQuestions)}
				}
				err = errors.New("synthesis returned no evidence bullets")
			}
		}
	}
	r.logger.Warn("synthesis fell back to excerpts",
		zap.String("work_item_id", item.ID),
		zap.Error(err),
	)
	return r.excerptFallback(results)
}

func (r *Researcher) excerptFallback(results []search.Result) synthesis {
	limit := r.limits.FallbackExcerpts
	if len(results) < limit {
		limit = len(results)
	}
	findings := make([]string, 0, limit)
	for _, result := range results[:limit] {
		findings = append(findings, truncateRunes(result.Content, r.limits.ExcerptRunes)+"...")
	}
	return synthesis{
		findings:      findings,
		openQuestions: []string{synthesisOpenQuestion},
		degraded:      true,
	}
}

func formatResults(results []search.Result) string {
	blocks := make([]string, 0, len(results))
	for _, result := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nURL: %s\nContent: %s", result.Title, result.URL, result.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func citationsFor(results []search.Result) []Citation {
	citations := make([]Citation, 0, len(results))
	for _, result := range results {
		citations = append(citations, Citation{Title: result.Title, URL: strings.TrimSpace(result.URL)})
	}
	return citations
}
