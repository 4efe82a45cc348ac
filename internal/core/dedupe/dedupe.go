package dedupe

import (
	"context"
	"fmt"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/common"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/llm"
)

const defaultNodesPrompt = `
<NEW NODES>
%s
</NEW NODES>

<EXISTING NODES>
%s
</EXISTING NODES>

Instructions:
Identify if any of the NEW NODES refer to the same cognitive object as one of the EXISTING NODES.
Return a JSON object with key "duplicates" which is a list of objects.
Each object should have "original_uuid" (existing node UUID), "duplicate_uuid" (new node UUID), and "confidence" (float).

Example JSON:
{
  "duplicates": [
    {"original_uuid": "existing-1", "duplicate_uuid": "new-1", "confidence": 0.9}
  ]
}
If there are no duplicates, return {"duplicates": []}.`

type Deduplicator struct {
	LLM     llm.LLMClient
	Prompts config.DeduplicationPrompts
}

func NewDeduplicator(llmClient llm.LLMClient, prompts config.DeduplicationPrompts) *Deduplicator {
	return &Deduplicator{
		LLM:     llmClient,
		Prompts: prompts,
	}
}

// ResolveDuplicates asks which of the new nodes duplicate existing ones.
func (d *Deduplicator) ResolveDuplicates(ctx context.Context, newNodes []*model.EntityNode, existingNodes []model.EntityNode) ([]model.DuplicatePair, error) {
	if len(newNodes) == 0 || len(existingNodes) == 0 {
		return nil, nil
	}

	var newStr, existingStr string
	for _, n := range newNodes {
		newStr += fmt.Sprintf("- UUID: %s, Name: %s\n", n.UUID, n.Name)
	}
	for _, n := range existingNodes {
		existingStr += fmt.Sprintf("- UUID: %s, Name: %s\n", n.UUID, n.Name)
	}

	template := d.Prompts.Nodes
	if template == "" {
		template = defaultNodesPrompt
	}
	prompt := fmt.Sprintf(template, newStr, existingStr)

	response, err := d.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate deduplication result: %w", err)
	}

	result, err := common.ParseJSON[model.DeduplicationResult](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dedupe result: %w", err)
	}

	return result.Duplicates, nil
}
