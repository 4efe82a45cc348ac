package contradiction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/confidence"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// mockDriver holds node confidence state keyed by uuid so the manager's
// reads observe its writes.
type mockDriver struct {
	confidences map[string]float64
	blobs       map[string]string
}

func newMockDriver() *mockDriver {
	return &mockDriver{confidences: map[string]float64{}, blobs: map[string]string{}}
}

func (m *mockDriver) setNode(uuid string, conf float64, meta *confidence.Metadata) {
	m.confidences[uuid] = conf
	if meta != nil {
		blob, _ := meta.Serialize()
		m.blobs[uuid] = blob
	}
}

func (m *mockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	switch query {
	case driver.GetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		conf, ok := m.confidences[uuid]
		if !ok {
			return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
		}
		return neo4j.EagerResult{Records: []*neo4j.Record{
			{Keys: []string{"confidence", "confidence_metadata"}, Values: []interface{}{conf, m.blobs[uuid]}},
		}}, nil
	case driver.SetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		m.confidences[uuid] = params["confidence"].(float64)
		m.blobs[uuid] = params["confidence_metadata"].(string)
	}
	return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
}

func (m *mockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *mockDriver) Close(ctx context.Context) error        { return nil }

var handlerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(llmResponse string, llmErr error, d *mockDriver) *Handler {
	mgr := confidence.NewManager(d, config.DefaultConfidence(), zap.NewNop())
	mgr.Now = func() time.Time { return handlerNow }

	det := NewDetector(&MockLLM{Response: llmResponse, Err: llmErr}, config.ContradictionPrompts{})

	h := NewHandler(det, mgr, zap.NewNop())
	h.Now = func() time.Time { return handlerNow }
	counter := 0
	h.UUIDGenerator = func() string {
		counter++
		return fmt.Sprintf("uuid-%d", counter)
	}
	return h
}

func TestProcessEpisodeBuildsEdge(t *testing.T) {
	mockJSON := `{
		"contradictions": [
			{"contradicting": "hates football", "contradicted": "loves football", "reason": "Preference reversed."}
		]
	}`
	d := newMockDriver()
	h := newTestHandler(mockJSON, nil, d)

	existing := []model.EntityNode{
		{UUID: "existing-1", Name: "loves football", GroupID: "user-1", Summary: "Big football fan"},
	}
	episodeNodes := []*model.EntityNode{
		{UUID: "ep-node-1", Name: "hates football", GroupID: "user-1"},
	}

	result := h.ProcessEpisode(context.Background(), "episode-1", "I hate football now", "user-1", existing, episodeNodes)

	require.Len(t, result.Pairs, 1)
	assert.Empty(t, result.NewNodes, "both sides resolved, nothing to materialize")

	require.Len(t, result.Edges, 1)
	edge := result.Edges[0]
	assert.Equal(t, "ep-node-1", edge.SourceUUID, "edge points from contradicting to contradicted")
	assert.Equal(t, "existing-1", edge.TargetUUID)
	assert.Equal(t, "hates football contradicts loves football", edge.Fact)
	assert.Equal(t, "episode-1", edge.DetectedInEpisode)
	assert.Equal(t, []string{"episode-1"}, edge.Episodes)

	assert.Contains(t, result.Message, "hates football")
	assert.Contains(t, result.Message, "loves football (Big football fan)")
	assert.Contains(t, result.Message, "Preference reversed.")
}

func TestProcessEpisodeMaterializesMissingNode(t *testing.T) {
	mockJSON := `{
		"contradictions": [
			{"contradicting": "works at Acme", "contradicted": "works at Initech", "reason": "Changed jobs."}
		]
	}`
	d := newMockDriver()
	h := newTestHandler(mockJSON, nil, d)

	existing := []model.EntityNode{
		{UUID: "existing-1", Name: "works at Initech", GroupID: "user-1"},
	}

	result := h.ProcessEpisode(context.Background(), "episode-1", "I work at Acme now", "user-1", existing, nil)

	require.Len(t, result.NewNodes, 1)
	assert.Equal(t, "works at Acme", result.NewNodes[0].Name)
	assert.Equal(t, "user-1", result.NewNodes[0].GroupID)

	require.Len(t, result.Edges, 1)
	assert.Equal(t, result.NewNodes[0].UUID, result.Edges[0].SourceUUID)
	assert.Equal(t, "existing-1", result.Edges[0].TargetUUID)
}

func TestProcessEpisodeLLMFailureDegrades(t *testing.T) {
	d := newMockDriver()
	h := newTestHandler("", fmt.Errorf("model timeout"), d)

	result := h.ProcessEpisode(context.Background(), "episode-1", "some text", "user-1", nil, nil)

	assert.Empty(t, result.Pairs)
	assert.Empty(t, result.Edges)
	assert.Empty(t, result.Message)
}

func TestProcessEpisodeMultiplePairsMessage(t *testing.T) {
	mockJSON := `{
		"contradictions": [
			{"contradicting": "hates football", "contradicted": "loves football", "reason": "Reversed."},
			{"contradicting": "vegetarian", "contradicted": "loves steak", "reason": "Diet changed."}
		]
	}`
	d := newMockDriver()
	h := newTestHandler(mockJSON, nil, d)

	existing := []model.EntityNode{
		{UUID: "existing-1", Name: "loves football", GroupID: "user-1"},
		{UUID: "existing-2", Name: "loves steak", GroupID: "user-1"},
	}

	result := h.ProcessEpisode(context.Background(), "episode-1", "I hate football and went vegetarian", "user-1", existing, nil)

	require.Len(t, result.Pairs, 2)
	assert.Contains(t, result.Message, "I notice 2 things that may have changed:")
	assert.Contains(t, result.Message, "- hates football conflicts with loves football.")
	assert.Contains(t, result.Message, "- vegetarian conflicts with loves steak.")
}

func TestApplyFalloutPenalizesContradicted(t *testing.T) {
	d := newMockDriver()
	h := newTestHandler("", nil, d)
	d.setNode("src", 0.8, confidence.NewMetadata(confidence.OriginInferred))
	d.setNode("dst", 0.8, confidence.NewMetadata(confidence.OriginInferred))

	result := &Result{Pairs: []Pair{{
		Contradicting: &model.EntityNode{UUID: "src", Name: "hates football"},
		Contradicted:  &model.EntityNode{UUID: "dst", Name: "loves football"},
		Reason:        "Reversed.",
	}}}

	updates := h.ApplyFallout(context.Background(), result)

	// Equal confidences: strength 0.5, penalty 0.5*0.3 = 0.15, no winner boost.
	require.Len(t, updates, 1)
	assert.Equal(t, "dst", updates[0].NodeUUID)
	assert.InDelta(t, 0.65, updates[0].NewValue, 1e-9)
	assert.InDelta(t, 0.65, d.confidences["dst"], 1e-9)
	assert.InDelta(t, 0.8, d.confidences["src"], 1e-9)
}

func TestApplyFalloutBoostsStrongerSide(t *testing.T) {
	d := newMockDriver()
	h := newTestHandler("", nil, d)
	d.setNode("src", 0.9, confidence.NewMetadata(confidence.OriginUserGiven))
	d.setNode("dst", 0.5, confidence.NewMetadata(confidence.OriginInferred))

	result := &Result{
		Pairs: []Pair{{
			Contradicting: &model.EntityNode{UUID: "src", Name: "hates football"},
			Contradicted:  &model.EntityNode{UUID: "dst", Name: "loves football"},
		}},
		Edges: []model.ContradictionEdge{{UUID: "edge-1", SourceUUID: "src", TargetUUID: "dst"}},
	}

	updates := h.ApplyFallout(context.Background(), result)

	// Diff 0.4: strength 0.9, penalty 0.9*0.3 = 0.27 on dst; src earns the
	// network support boost for prevailing, clamped at the ceiling.
	require.Len(t, updates, 2)
	assert.InDelta(t, 0.9, result.Edges[0].Strength, 1e-9)

	// The prevailing side records what earned it the boost.
	meta, err := h.Manager.GetMetadata(context.Background(), "src")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Contains(t, meta.SupportingCOIDs, "dst")
	assert.InDelta(t, 0.23, d.confidences["dst"], 1e-9)
	assert.InDelta(t, 1.0, d.confidences["src"], 1e-9)
	assert.Equal(t, confidence.TriggerNetworkSupport, updates[1].Trigger)
}

func TestApplyFalloutWeakSourceSkipsPenalty(t *testing.T) {
	d := newMockDriver()
	h := newTestHandler("", nil, d)
	d.setNode("src", 0.6, confidence.NewMetadata(confidence.OriginSystemSuggested))
	d.setNode("dst", 0.8, confidence.NewMetadata(confidence.OriginUserGiven))

	result := &Result{Pairs: []Pair{{
		Contradicting: &model.EntityNode{UUID: "src", Name: "hates football"},
		Contradicted:  &model.EntityNode{UUID: "dst", Name: "loves football"},
	}}}

	updates := h.ApplyFallout(context.Background(), result)

	assert.Empty(t, updates, "a below-threshold source cannot penalize")
	assert.InDelta(t, 0.8, d.confidences["dst"], 1e-9)
}

func TestBuildNotificationEmpty(t *testing.T) {
	assert.Empty(t, buildNotification(nil))
}
