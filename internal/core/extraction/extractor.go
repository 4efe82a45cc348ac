package extraction

import (
	"context"
	"fmt"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/common"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/llm"
)

const defaultNodesPrompt = `Extract the distinct cognitive objects (preferences, beliefs, facts, concepts, people) stated or implied in the following text.

<TEXT>
%s
</TEXT>

Return a JSON object:
{"extracted_entities": [{"name": "<short name>", "summary": "<one sentence>"}]}`

const defaultEdgesPrompt = `Given these graph nodes:

%s

And this text:

<TEXT>
%s
</TEXT>

Identify relationships between the nodes that the text supports.

Return a JSON object:
{"extracted_edges": [{"source_node_uuid": "<uuid>", "target_node_uuid": "<uuid>", "relation_type": "<UPPER_SNAKE>", "fact": "<one sentence>"}]}`

type Extractor struct {
	LLM     llm.LLMClient
	Prompts config.ExtractionPrompts
}

func NewExtractor(llmClient llm.LLMClient, prompts config.ExtractionPrompts) *Extractor {
	return &Extractor{
		LLM:     llmClient,
		Prompts: prompts,
	}
}

// ExtractNodes extracts cognitive objects from the episode content.
func (e *Extractor) ExtractNodes(ctx context.Context, content string) ([]model.ExtractedEntity, error) {
	template := e.Prompts.Nodes
	if template == "" {
		template = defaultNodesPrompt
	}
	prompt := fmt.Sprintf(template, content)

	response, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entities: %w", err)
	}

	result, err := common.ParseJSON[model.ExtractedEntities](response)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}

	return result.ExtractedEntities, nil
}

// ExtractEdges identifies relationships among the episode's resolved nodes.
func (e *Extractor) ExtractEdges(ctx context.Context, content string, nodes []*model.EntityNode) ([]model.ExtractedEdge, error) {
	if len(nodes) < 2 {
		return nil, nil
	}

	var nodeContext string
	for _, n := range nodes {
		nodeContext += fmt.Sprintf("- UUID: %s, Name: %s\n", n.UUID, n.Name)
	}

	template := e.Prompts.Edges
	if template == "" {
		template = defaultEdgesPrompt
	}
	prompt := fmt.Sprintf(template, nodeContext, content)

	response, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate edges: %w", err)
	}

	result, err := common.ParseJSON[model.ExtractedEdges](response)
	if err != nil {
		return nil, fmt.Errorf("failed to extract edges: %w", err)
	}

	return result.ExtractedEdges, nil
}
