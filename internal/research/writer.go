package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
)

const (
	EmptyReport           = "Unable to generate report due to lack of research data."
	emptySummary          = "Research could not be completed."
	emptyTakeaway         = "Unable to generate insights"
	emptyLimitations      = "Research process failed to collect sufficient data."
	emptyEvidenceError    = "No research notes available to write report"
	degradedSummary       = "Report generated with limited synthesis due to processing error."
	degradedTakeaway      = "See detailed findings in report"
	degradedLimitations   = "Report generation encountered errors; synthesis may be incomplete."
	notesSeparatorWidth   = 80
	maxReportKeyTakeaways = 7
)

// Writer turns accumulated evidence into the final report.
type Writer struct {
	executor
	llm llm.Provider
}

func NewWriter(provider llm.Provider, opts ...Option) *Writer {
	return &Writer{executor: newExecutor(opts), llm: provider}
}

type writtenReport struct {
	ExecutiveSummary string   `json:"executive_summary"`
	Report           string   `json:"report"`
	KeyTakeaways     []string `json:"key_takeaways"`
	Limitations      string   `json:"limitations"`
}

func (w *Writer) Run(ctx context.Context, state RunState) (Update, error) {
	if len(state.Evidence) == 0 {
		metrics.StageDegraded.WithLabelValues(string(StageWrite)).Inc()
		return Update{
			Report:           stringPtr(EmptyReport),
			ExecutiveSummary: stringPtr(emptySummary),
			KeyTakeaways:     []string{emptyTakeaway},
			Limitations:      stringPtr(emptyLimitations),
			Errors:           []string{emptyEvidenceError},
		}, nil
	}

	written, err := w.write(ctx, state)
	if err != nil {
		metrics.StageDegraded.WithLabelValues(string(StageWrite)).Inc()
		w.logger.Warn("writer fell back to assembled report",
			zap.String("run_id", state.RunID),
			zap.Error(err),
		)
		return Update{
			Report:           stringPtr(FallbackReport(state.Query, state.Evidence)),
			ExecutiveSummary: stringPtr(degradedSummary),
			KeyTakeaways:     []string{degradedTakeaway},
			Limitations:      stringPtr(degradedLimitations),
			Errors:           []string{fmt.Sprintf("Report writer failed: %v", err)},
		}, nil
	}
	return Update{
		Report:           stringPtr(written.Report),
		ExecutiveSummary: stringPtr(written.ExecutiveSummary),
		KeyTakeaways:     written.KeyTakeaways,
		Limitations:      stringPtr(written.Limitations),
	}, nil
}

func (w *Writer) write(ctx context.Context, state RunState) (writtenReport, error) {
	messages, err := w.prompts.Writer.Messages(struct {
		Query string
		Notes string
	}{Query: state.Query, Notes: FormatNotes(state.Evidence)})
	if err != nil {
		return writtenReport{}, err
	}
	text, err := w.generateJSON(ctx, w.llm, messages)
	if err != nil {
		return writtenReport{}, err
	}
	var parsed writtenReport
	if err := decodeModelJSON(text, &parsed); err != nil {
		return writtenReport{}, err
	}
	parsed.Report = strings.TrimSpace(parsed.Report)
	parsed.ExecutiveSummary = strings.TrimSpace(parsed.ExecutiveSummary)
	parsed.Limitations = strings.TrimSpace(parsed.Limitations)
	parsed.KeyTakeaways = nonEmpty(parsed.KeyTakeaways)
	switch {
	case parsed.Report == "":
		return writtenReport{}, errors.New("response missing report")
	case parsed.ExecutiveSummary == "":
		return writtenReport{}, errors.New("response missing executive_summary")
	case len(parsed.KeyTakeaways) == 0:
		return writtenReport{}, errors.New("response missing key_takeaways")
	case parsed.Limitations == "":
		return writtenReport{}, errors.New("response missing limitations")
	}
	if len(parsed.KeyTakeaways) > maxReportKeyTakeaways {
		parsed.KeyTakeaways = parsed.KeyTakeaways[:maxReportKeyTakeaways]
	}
	return parsed, nil
}

// FormatNotes renders evidence as the plain-text context handed to the writer.
func FormatNotes(evidence []Evidence) string {
	separator := strings.Repeat("-", notesSeparatorWidth)
	var b strings.Builder
	for _, ev := range evidence {
		question := ev.Question
		if question == "" {
			question = ev.WorkItemID
		}
		fmt.Fprintf(&b, "\n## Sub-Question: %s\n\nEvidence:\n", question)
		for _, finding := range ev.Findings {
			fmt.Fprintf(&b, "- %s\n", finding)
		}
		if len(ev.OpenQuestions) > 0 {
			b.WriteString("\nOpen Questions:\n")
			for _, open := range ev.OpenQuestions {
				fmt.Fprintf(&b, "- %s\n", open)
			}
		}
		fmt.Fprintf(&b, "\nSources: %d sources\n%s\n", len(ev.Sources), separator)
	}
	return b.String()
}

// FallbackReport assembles a minimal markdown report without a model call.
func FallbackReport(query string, evidence []Evidence) string {
	lines := []string{
		fmt.Sprintf("# Research Report: %s", query),
		"",
		"## Overview",
		"",
		"This report collects the findings gathered for the question above.",
		"",
		"## Findings",
	}
	for i, ev := range evidence {
		heading := ev.Question
		if heading == "" {
			heading = ev.WorkItemID
		}
		lines = append(lines, "", fmt.Sprintf("### %d. %s", i+1, heading), "")
		for _, finding := range ev.Findings {
			lines = append(lines, "- "+finding)
		}
	}
	lines = append(lines,
		"",
		"## Conclusion",
		"",
		"The findings above have not been synthesized and should be reviewed directly.",
	)
	return strings.Join(lines, "\n")
}
