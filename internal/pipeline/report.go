package pipeline

import (
	"fmt"
	"strings"

	"github.com/aether-labs/aether/internal/core"
)

const (
	maxKeyFindings   = 8
	maxTopPriorities = 5
	verdictSeparator = " | "
)

// BuildReport assembles the final report from completed debates without
// another inference call. total is the number of extracted factors.
func BuildReport(debates []core.DebateRecord, total int) core.FinalReport {
	completed := len(debates)
	partial := completed < total

	var findings, priorities, verdicts []string
	concerning := false
	for _, d := range debates {
		s := d.Synthesis
		for _, w := range s.WhatWorked {
			findings = append(findings, "✅ "+w)
		}
		for _, f := range s.WhatFailed {
			findings = append(findings, "❌ "+f)
		}
		priorities = append(priorities, s.HowToImprove...)
		verdicts = append(verdicts, s.Verdict)
		if strings.Contains(strings.ToLower(s.Verdict), "concerning") {
			concerning = true
		}
	}

	return core.FinalReport{
		ExecutiveSummary:  executiveSummary(completed, total, partial, concerning),
		KeyFindings:       capList(findings, maxKeyFindings),
		TopPriorities:     capList(priorities, maxTopPriorities),
		OverallAssessment: strings.Join(verdicts, verdictSeparator),
		FactorsAnalyzed:   completed,
		TotalFactors:      total,
		IsPartial:         partial,
	}
}

func executiveSummary(completed, total int, partial, concerning bool) string {
	var b strings.Builder
	if partial {
		fmt.Fprintf(&b, "Analysis of %d out of %d key factors from the report. ", completed, total)
		fmt.Fprintf(&b, "⚠️ Note: Analysis stopped after factor %d due to rate limits. Results below are based on completed factors only. ", completed)
	} else {
		fmt.Fprintf(&b, "Analysis of %d key factors from the report. ", completed)
	}
	if concerning {
		b.WriteString("Several concerns identified requiring immediate attention.")
	} else {
		b.WriteString("Overall performance shows areas of strength with opportunities for improvement.")
	}
	return b.String()
}

func capList(items []string, n int) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
