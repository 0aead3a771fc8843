// Package report renders analysis sessions for people and for export.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aether-labs/aether/internal/core"
)

// Format selects an export encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", core.ErrValidation("UNKNOWN_FORMAT", fmt.Sprintf("unknown report format %q (use markdown, json or yaml)", s))
}

// Markdown renders a session with a frontmatter header.
func Markdown(snap core.SessionSnapshot) (string, error) {
	fm, err := frontmatterFor(snap).Render()
	if err != nil {
		return "", fmt.Errorf("rendering frontmatter: %w", err)
	}
	return fm + Body(snap), nil
}

// Export encodes a session in the requested format. JSON and YAML share the
// snake_case field names of the wire format.
func Export(snap core.SessionSnapshot, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		md, err := Markdown(snap)
		return []byte(md), err
	case FormatJSON:
		data, err := json.MarshalIndent(exportable(snap), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return toYAML(exportable(snap))
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// exportable drops the raw document bytes, which never belong in a report.
func exportable(snap core.SessionSnapshot) core.SessionSnapshot {
	snap.Document.Data = nil
	return snap
}

// toYAML goes through JSON so the json tags decide field names, then
// re-emits the tree in block style.
func toYAML(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	clearStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

func frontmatterFor(snap core.SessionSnapshot) *Frontmatter {
	fm := NewFrontmatter()
	fm.Set("session_id", snap.ID)
	fm.Set("state", string(snap.State))
	if snap.Document.Filename != "" {
		fm.Set("source", snap.Document.Filename)
	}
	if r := snap.FinalReport; r != nil {
		fm.Set("factors_analyzed", r.FactorsAnalyzed)
		fm.Set("total_factors", r.TotalFactors)
		fm.Set("partial", r.IsPartial)
	}
	fm.Set("created_at", snap.CreatedAt.UTC().Format(time.RFC3339))
	fm.Set("updated_at", snap.UpdatedAt.UTC().Format(time.RFC3339))
	return fm
}

// Body renders the Markdown report without frontmatter.
func Body(snap core.SessionSnapshot) string {
	var sb strings.Builder

	sb.WriteString("# Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("**Status**: %s\n\n", statusLine(snap)))
	if snap.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error**: %s\n\n", snap.Error))
	}

	if r := snap.FinalReport; r != nil {
		sb.WriteString("## Executive Summary\n\n")
		sb.WriteString(r.ExecutiveSummary + "\n\n")

		if len(r.KeyFindings) > 0 {
			sb.WriteString("## Key Findings\n\n")
			for _, f := range r.KeyFindings {
				sb.WriteString("- " + f + "\n")
			}
			sb.WriteString("\n")
		}

		if len(r.TopPriorities) > 0 {
			sb.WriteString("## Top Priorities\n\n")
			for i, p := range r.TopPriorities {
				sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, p))
			}
			sb.WriteString("\n")
		}

		if r.OverallAssessment != "" {
			sb.WriteString("## Overall Assessment\n\n")
			sb.WriteString(r.OverallAssessment + "\n\n")
		}
	}

	if len(snap.Debates) > 0 {
		sb.WriteString("## Debates\n\n")
		for i, d := range snap.Debates {
			writeDebate(&sb, i+1, d)
		}
	}

	return sb.String()
}

func writeDebate(sb *strings.Builder, n int, d core.DebateRecord) {
	sb.WriteString(fmt.Sprintf("### %d. %s\n\n", n, d.Factor.Name))
	sb.WriteString(d.Factor.Description + "\n\n")

	sb.WriteString(fmt.Sprintf("**💚 Advocate**: %s\n\n", d.Advocate.Claim))
	writeList(sb, "Evidence", d.Advocate.Evidence)

	sb.WriteString(fmt.Sprintf("**🔴 Skeptic**: %s\n\n", d.Skeptic.CounterArgument))
	writeList(sb, "Evidence", d.Skeptic.Evidence)

	sb.WriteString(fmt.Sprintf("**⚖️ Verdict**: %s", d.Synthesis.Verdict))
	if d.Synthesis.Confidence != "" {
		sb.WriteString(fmt.Sprintf(" (confidence: %s)", d.Synthesis.Confidence))
	}
	sb.WriteString("\n\n")
	writeList(sb, "Data gaps", d.Synthesis.DataGaps)
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ":\n\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	sb.WriteString("\n")
}

func statusLine(snap core.SessionSnapshot) string {
	switch snap.State {
	case core.StateComplete:
		if r := snap.FinalReport; r != nil && r.IsPartial {
			return fmt.Sprintf("⚠️ Partial (%d/%d factors analyzed)", r.FactorsAnalyzed, r.TotalFactors)
		}
		if r := snap.FinalReport; r != nil {
			return fmt.Sprintf("✅ Complete (%d/%d factors analyzed)", r.FactorsAnalyzed, r.TotalFactors)
		}
		return "✅ Complete"
	case core.StateError:
		return "❌ Failed"
	}
	return fmt.Sprintf("⏳ In progress (%s)", snap.State)
}
