package contradiction

import (
	"context"
	"fmt"
	"strings"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/common"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/llm"
)

// defaultPairsPrompt is used when no template is configured. The
// both-sides-existing suppression rule is part of the contract, not styling:
// it prevents duplicate edges between long-standing nodes that may already
// be linked.
const defaultPairsPrompt = `You are comparing new information against a person's existing knowledge.

<NEW INFORMATION>
%s
</NEW INFORMATION>

<EXISTING KNOWLEDGE>
%s
</EXISTING KNOWLEDGE>

Identify contradictions between the new information and the existing knowledge.

Rules:
- Contradictions hold between concepts, preferences, beliefs, or factual claims. Never pair a person with an unrelated concept.
- Factual corrections (a changed price, count, or date about the same thing) count as contradictions, not only sentiment reversals.
- At least one side of every pair must come from the NEW INFORMATION. Never return a pair where both sides already appear in the EXISTING KNOWLEDGE.
- An item never contradicts itself.

Return a JSON object:
{"contradictions": [{"contradicting": "<short name for the new claim>", "contradicted": "<short name of the contradicted item>", "reason": "<one sentence>"}]}

If there are no contradictions, return {"contradictions": []}.`

// RawPair is one LLM-proposed contradiction, by name. Sides may reference
// existing nodes or name brand-new cognitive objects.
type RawPair struct {
	Contradicting string `json:"contradicting"`
	Contradicted  string `json:"contradicted"`
	Reason        string `json:"reason"`
}

type pairsResponse struct {
	Contradictions []RawPair `json:"contradictions"`
}

// Detector asks an LLM for contradiction pairs. It is an injected
// capability so tests can swap a canned client for the real model.
type Detector struct {
	LLM     llm.LLMClient
	Prompts config.ContradictionPrompts
}

func NewDetector(llmClient llm.LLMClient, prompts config.ContradictionPrompts) *Detector {
	return &Detector{LLM: llmClient, Prompts: prompts}
}

// DetectPairs proposes contradiction pairs between the episode text and the
// existing nodes, then filters out anything violating the pair contract:
// self-pairs and pairs where both sides pre-exist.
func (d *Detector) DetectPairs(ctx context.Context, episodeText string, existing []model.EntityNode) ([]RawPair, error) {
	if strings.TrimSpace(episodeText) == "" {
		return nil, nil
	}

	var existingStr strings.Builder
	for _, n := range existing {
		existingStr.WriteString(fmt.Sprintf("- %s", n.Name))
		if n.Summary != "" {
			existingStr.WriteString(fmt.Sprintf(": %s", n.Summary))
		}
		existingStr.WriteString("\n")
	}

	template := d.Prompts.Pairs
	if template == "" {
		template = defaultPairsPrompt
	}
	prompt := fmt.Sprintf(template, episodeText, existingStr.String())

	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate contradiction pairs: %w", err)
	}

	result, err := common.ParseJSON[pairsResponse](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contradiction pairs: %w", err)
	}

	return filterPairs(result.Contradictions, existing), nil
}

// filterPairs enforces the contract even when the model ignores it.
func filterPairs(pairs []RawPair, existing []model.EntityNode) []RawPair {
	existingNames := make(map[string]bool, len(existing))
	for _, n := range existing {
		existingNames[strings.ToLower(n.Name)] = true
	}

	var valid []RawPair
	for _, p := range pairs {
		a := strings.ToLower(strings.TrimSpace(p.Contradicting))
		b := strings.ToLower(strings.TrimSpace(p.Contradicted))
		if a == "" || b == "" || a == b {
			continue
		}
		if existingNames[a] && existingNames[b] {
			continue
		}
		valid = append(valid, p)
	}
	return valid
}
