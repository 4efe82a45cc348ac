package extraction

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
)

type MockLLM struct {
	Response string
	Err      error
	Calls    int
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func TestExtractNodes(t *testing.T) {
	mockJSON := `{
		"extracted_entities": [
			{"name": "pizza", "summary": "User loves pizza"},
			{"name": "software engineer", "summary": "User's profession"}
		]
	}`
	e := NewExtractor(&MockLLM{Response: mockJSON}, config.ExtractionPrompts{})

	entities, err := e.ExtractNodes(context.Background(), "I love pizza and I work as a software engineer")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "pizza", entities[0].Name)
	assert.Equal(t, "User's profession", entities[1].Summary)
}

// Models wrap JSON in prose often enough that the parser has to cope.
func TestExtractNodesWrappedJSON(t *testing.T) {
	response := "Here are the entities I found:\n```json\n" +
		`{"extracted_entities": [{"name": "pizza"}]}` + "\n```"
	e := NewExtractor(&MockLLM{Response: response}, config.ExtractionPrompts{})

	entities, err := e.ExtractNodes(context.Background(), "I love pizza")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "pizza", entities[0].Name)
}

func TestExtractNodesLLMError(t *testing.T) {
	e := NewExtractor(&MockLLM{Err: fmt.Errorf("model timeout")}, config.ExtractionPrompts{})

	_, err := e.ExtractNodes(context.Background(), "some text")
	assert.Error(t, err)
}

func TestExtractEdges(t *testing.T) {
	mockJSON := `{
		"extracted_edges": [
			{"source_node_uuid": "n-1", "target_node_uuid": "n-2", "relation_type": "WORKS_AS", "fact": "User works as a software engineer"}
		]
	}`
	e := NewExtractor(&MockLLM{Response: mockJSON}, config.ExtractionPrompts{})

	nodes := []*model.EntityNode{
		{UUID: "n-1", Name: "user"},
		{UUID: "n-2", Name: "software engineer"},
	}
	edges, err := e.ExtractEdges(context.Background(), "I work as a software engineer", nodes)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "WORKS_AS", edges[0].RelationType)
}

func TestExtractEdgesSingleNode(t *testing.T) {
	llm := &MockLLM{Response: `{"extracted_edges": []}`}
	e := NewExtractor(llm, config.ExtractionPrompts{})

	edges, err := e.ExtractEdges(context.Background(), "I love pizza", []*model.EntityNode{{UUID: "n-1"}})
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.Zero(t, llm.Calls, "no relationships possible with one node")
}
