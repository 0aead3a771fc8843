package cmd

import (
	"encoding/json"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/inference"
)

const dryRunProviderName = "dry-run"

var dryRunFactors = []core.Factor{
	{
		ID:          "stated_outcomes",
		Name:        "Stated Outcomes",
		Description: "The results the document reports",
		Context:     "Outcomes described in the submitted document",
	},
	{
		ID:          "supporting_evidence",
		Name:        "Supporting Evidence",
		Description: "How well the figures back the conclusions",
		Context:     "Figures and sources cited in the document",
	},
	{
		ID:          "open_risks",
		Name:        "Open Risks",
		Description: "Risks the document mentions or leaves out",
		Context:     "Risks and caveats noted in the document",
	},
}

// newDryRunProvider returns a provider with canned replies so the whole
// pipeline can be exercised without network access or API keys. Every
// factor receives the same debate.
func newDryRunProvider() *inference.ScriptedProvider {
	argument := core.ArgumentRecord{
		Claim:           "The document presents a coherent case",
		Evidence:        core.StringList{"Canned dry-run evidence"},
		Reasoning:       "Dry-run replies do not read the document.",
		DataLimitations: core.StringList{"No model was called"},
	}
	counter := core.CounterRecord{
		CounterArgument: "The case rests on unverified figures",
		Evidence:        core.StringList{"Canned dry-run counter evidence"},
		Reasoning:       "Dry-run replies do not read the document.",
		DataLimitations: core.StringList{"No model was called"},
	}
	synthesis := core.SynthesisRecord{
		Verdict:       "Mixed results",
		WhatWorked:    core.StringList{"Pipeline completed every stage"},
		WhatFailed:    core.StringList{"No real analysis was performed"},
		WhyItHappened: "The dry-run provider answered every call.",
		HowToImprove:  core.StringList{"Configure a provider API key and run without --dry-run"},
		DataGaps:      core.StringList{"Model output"},
		Confidence:    "low",
	}

	return inference.NewScriptedProvider(dryRunProviderName).
		WithVision().
		On(core.RoleAnalyst, inference.ScriptedReply{Text: "```json\n" + mustJSON(dryRunFactors) + "\n```"}).
		On(core.RoleAdvocate, inference.ScriptedReply{Text: mustJSON(argument)}).
		On(core.RoleSkeptic, inference.ScriptedReply{Text: mustJSON(counter)}).
		On(core.RoleScribe, inference.ScriptedReply{Text: mustJSON(synthesis)})
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
