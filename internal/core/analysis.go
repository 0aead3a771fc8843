package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Factor is one contested point extracted from the source document.
// It is created once by the analyst step and never modified.
type Factor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// ArgumentRecord is the advocate's output for a factor.
type ArgumentRecord struct {
	Claim           string     `json:"claim"`
	Evidence        StringList `json:"evidence"`
	Reasoning       string     `json:"reasoning"`
	DataLimitations StringList `json:"data_limitations"`
}

// CounterRecord is the skeptic's output. QuotedClaim is derived from the
// advocate's Claim for the same factor.
type CounterRecord struct {
	RespondsTo      string     `json:"responds_to"`
	QuotedClaim     string     `json:"quoted_claim"`
	CounterArgument string     `json:"counter_argument"`
	Evidence        StringList `json:"evidence"`
	Reasoning       string     `json:"reasoning"`
	DataLimitations StringList `json:"data_limitations"`
}

// SynthesisRecord is the scribe's verdict on one debate.
type SynthesisRecord struct {
	Verdict       string     `json:"verdict"`
	WhatWorked    StringList `json:"what_worked"`
	WhatFailed    StringList `json:"what_failed"`
	WhyItHappened string     `json:"why_it_happened"`
	HowToImprove  StringList `json:"how_to_improve"`
	DataGaps      StringList `json:"data_gaps"`
	Confidence    FlexString `json:"confidence"`
}

// DebateRecord bundles the three records produced for one factor.
type DebateRecord struct {
	Factor    Factor          `json:"factor"`
	Advocate  ArgumentRecord  `json:"advocate"`
	Skeptic   CounterRecord   `json:"skeptic"`
	Synthesis SynthesisRecord `json:"synthesis"`
}

// FinalReport is assembled locally from completed syntheses.
type FinalReport struct {
	ExecutiveSummary  string   `json:"executive_summary"`
	KeyFindings       []string `json:"key_findings"`
	TopPriorities     []string `json:"top_priorities"`
	OverallAssessment string   `json:"overall_assessment"`
	FactorsAnalyzed   int      `json:"factors_analyzed"`
	TotalFactors      int      `json:"total_factors"`
	IsPartial         bool     `json:"is_partial"`
}

// Validate checks the fields a factor needs to be debated.
func (f Factor) Validate() error {
	var missing []string
	if strings.TrimSpace(f.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(f.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(f.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(f.Context) == "" {
		missing = append(missing, "context")
	}
	if len(missing) > 0 {
		return fmt.Errorf("factor %q missing %s", f.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks the advocate record carries a claim.
func (a ArgumentRecord) Validate() error {
	if strings.TrimSpace(a.Claim) == "" {
		return fmt.Errorf("argument missing claim")
	}
	return nil
}

// Validate checks the skeptic record carries a counter argument.
func (c CounterRecord) Validate() error {
	if strings.TrimSpace(c.CounterArgument) == "" {
		return fmt.Errorf("counter missing counter_argument")
	}
	return nil
}

// Validate checks the synthesis carries a verdict.
func (s SynthesisRecord) Validate() error {
	if strings.TrimSpace(s.Verdict) == "" {
		return fmt.Errorf("synthesis missing verdict")
	}
	return nil
}

// StringList decodes either a JSON array or a single string. Models often
// collapse one-item lists into a bare string.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}

	var items []interface{}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("expected string or list: %w", err)
	}
	out := make(StringList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, v)
		default:
			raw, _ := json.Marshal(v)
			out = append(out, string(raw))
		}
	}
	*l = out
	return nil
}

// MarshalJSON renders nil lists as [] so clients never see null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// FlexString decodes strings, numbers and booleans into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(trimmed, &str); err == nil {
		*s = FlexString(str)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = FlexString(string(trimmed))
		return nil
	}
	return fmt.Errorf("expected scalar, got %s", trimmed)
}
