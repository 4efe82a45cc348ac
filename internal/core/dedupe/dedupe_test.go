package dedupe

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

func TestResolveDuplicates(t *testing.T) {
	mockJSON := `{
		"duplicates": [
			{"original_uuid": "existing-1", "duplicate_uuid": "new-1", "confidence": 0.9}
		]
	}`
	d := NewDeduplicator(&MockLLM{Response: mockJSON}, config.DeduplicationPrompts{})

	newNodes := []*model.EntityNode{{UUID: "new-1", Name: "morning coffee"}}
	existing := []model.EntityNode{{UUID: "existing-1", Name: "coffee"}}

	pairs, err := d.ResolveDuplicates(context.Background(), newNodes, existing)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "existing-1", pairs[0].OriginalUUID)
	assert.Equal(t, "new-1", pairs[0].DuplicateUUID)
	assert.InDelta(t, 0.9, pairs[0].Confidence, 1e-9)
}

func TestResolveDuplicatesSkipsEmptySides(t *testing.T) {
	llm := &MockLLM{Response: `{"duplicates": []}`}
	d := NewDeduplicator(llm, config.DeduplicationPrompts{})

	pairs, err := d.ResolveDuplicates(context.Background(), nil, []model.EntityNode{{UUID: "e-1"}})
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Zero(t, llm.Calls, "nothing to compare, no model call")
}

func TestResolveDuplicatesLLMError(t *testing.T) {
	d := NewDeduplicator(&MockLLM{Err: fmt.Errorf("model timeout")}, config.DeduplicationPrompts{})

	_, err := d.ResolveDuplicates(context.Background(),
		[]*model.EntityNode{{UUID: "new-1", Name: "coffee"}},
		[]model.EntityNode{{UUID: "existing-1", Name: "coffee"}})
	assert.Error(t, err)
}
