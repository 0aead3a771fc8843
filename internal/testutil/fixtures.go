// Package testutil holds fixtures and golden-file helpers shared by the
// package tests.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/inference"
)

// RevenueReport is a short quarterly report used as the sample document.
const RevenueReport = `Q3 Revenue Report

Revenue grew 15% quarter over quarter to $4.2M, driven by the new
enterprise tier. Customer acquisition cost rose 22% as paid campaigns
expanded into two new regions. Monthly churn fell from 3.1% to 2.4%
after the onboarding redesign shipped in July.

Gross margin held at 71%. Support ticket volume increased 40% and the
median first response time slipped from 2 hours to 5 hours.`

// RevenueFactors are the factors the scripted analyst extracts from
// RevenueReport.
var RevenueFactors = []core.Factor{
	{
		ID:          "revenue_growth",
		Name:        "Revenue Growth",
		Description: "Revenue grew 15% quarter over quarter",
		Context:     "Revenue grew 15% quarter over quarter to $4.2M",
	},
	{
		ID:          "acquisition_cost",
		Name:        "Customer Acquisition Cost",
		Description: "CAC rose 22% with regional expansion",
		Context:     "Customer acquisition cost rose 22%",
	},
	{
		ID:          "churn",
		Name:        "Churn Reduction",
		Description: "Monthly churn fell after the onboarding redesign",
		Context:     "Monthly churn fell from 3.1% to 2.4%",
	},
}

// FactorsReply renders factors the way a model typically answers: a short
// preamble and a fenced JSON array.
func FactorsReply(factors []core.Factor) string {
	b, err := json.MarshalIndent(factors, "", "  ")
	if err != nil {
		panic(err)
	}
	return "Here are the key factors:\n```json\n" + string(b) + "\n```"
}

// ArgumentReply is the advocate's answer for a factor.
func ArgumentReply(f core.Factor) string {
	return mustJSON(core.ArgumentRecord{
		Claim:           fmt.Sprintf("%s is a clear strength", f.Name),
		Evidence:        core.StringList{f.Context},
		Reasoning:       "The trend supports sustainable growth.",
		DataLimitations: core.StringList{"Single quarter of data"},
	})
}

// CounterReply is the skeptic's answer for a factor. It leaves QuotedClaim
// empty so the coordinator fills it from the advocate's claim.
func CounterReply(f core.Factor) string {
	return mustJSON(core.CounterRecord{
		CounterArgument: fmt.Sprintf("%s may not hold next quarter", f.Name),
		Evidence:        core.StringList{"No cohort breakdown provided"},
		Reasoning:       "One quarter does not establish a trend.",
		DataLimitations: core.StringList{"No prior year comparison"},
	})
}

// SynthesisReply is the scribe's verdict for a factor.
func SynthesisReply(f core.Factor, verdict string) string {
	return mustJSON(core.SynthesisRecord{
		Verdict:       verdict,
		WhatWorked:    core.StringList{f.Name + " improved"},
		WhatFailed:    core.StringList{f.Name + " lacks supporting detail"},
		WhyItHappened: "Execution outpaced measurement.",
		HowToImprove:  core.StringList{"Track " + f.Name + " monthly"},
		DataGaps:      core.StringList{"Segment level data"},
		Confidence:    "medium",
	})
}

// ScriptedDebate returns a provider scripted to extract factors and debate
// each of them in order. Every verdict is "Mixed results".
func ScriptedDebate(name string, factors []core.Factor) *inference.ScriptedProvider {
	p := inference.NewScriptedProvider(name).
		On(core.RoleAnalyst, inference.ScriptedReply{Text: FactorsReply(factors)})
	for _, f := range factors {
		p.On(core.RoleAdvocate, inference.ScriptedReply{Text: ArgumentReply(f)})
		p.On(core.RoleSkeptic, inference.ScriptedReply{Text: CounterReply(f)})
		p.On(core.RoleScribe, inference.ScriptedReply{Text: SynthesisReply(f, "Mixed results")})
	}
	return p
}

// Debate builds the record ScriptedDebate produces for a factor.
func Debate(f core.Factor, verdict string) core.DebateRecord {
	var d core.DebateRecord
	d.Factor = f
	mustDecode(ArgumentReply(f), &d.Advocate)
	mustDecode(CounterReply(f), &d.Skeptic)
	mustDecode(SynthesisReply(f, verdict), &d.Synthesis)
	d.Skeptic.QuotedClaim = d.Advocate.Claim
	d.Skeptic.RespondsTo = d.Advocate.Claim
	return d
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func mustDecode(s string, v interface{}) {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		panic(err)
	}
}
