package core

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/beliefgraph/beliefgraph/internal/core/confidence"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// MockLLM replays canned responses in call order.
type MockLLM struct {
	Response      string
	ResponseQueue []string
	Err           error
	CallCount     int
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.CallCount++
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

type MockEmbedder struct {
	Err error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type driverCall struct {
	Query  string
	Params map[string]interface{}
}

// mockDriver answers reads from in-memory state and records every write so
// tests can assert on what was persisted.
type mockDriver struct {
	groupRecords  []*neo4j.Record
	searchRecords []*neo4j.Record
	linkRecords   []*neo4j.Record

	confidences map[string]float64
	blobs       map[string]string

	failQuery string
	Calls     []driverCall
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		confidences: map[string]float64{},
		blobs:       map[string]string{},
	}
}

func record(keys []string, values []interface{}) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func (m *mockDriver) setConfidence(uuid string, conf float64, meta *confidence.Metadata) {
	m.confidences[uuid] = conf
	if meta != nil {
		blob, _ := meta.Serialize()
		m.blobs[uuid] = blob
	}
}

func (m *mockDriver) callsFor(query string) []driverCall {
	var out []driverCall
	for _, c := range m.Calls {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Calls = append(m.Calls, driverCall{Query: query, Params: params})
	if m.failQuery != "" && query == m.failQuery {
		return neo4j.EagerResult{}, fmt.Errorf("store unavailable")
	}

	switch query {
	case driver.GetGroupNodesQuery:
		return neo4j.EagerResult{Records: m.groupRecords}, nil

	case driver.GetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		conf, ok := m.confidences[uuid]
		if !ok {
			return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
		}
		return neo4j.EagerResult{Records: []*neo4j.Record{
			record([]string{"confidence", "confidence_metadata"}, []interface{}{conf, m.blobs[uuid]}),
		}}, nil

	case driver.SetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		m.confidences[uuid] = params["confidence"].(float64)
		m.blobs[uuid] = params["confidence_metadata"].(string)

	case driver.SearchNodesQuery:
		return neo4j.EagerResult{Records: m.searchRecords}, nil

	case driver.GetContradictionLinksQuery:
		return neo4j.EagerResult{Records: m.linkRecords}, nil
	}

	return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
}

func (m *mockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *mockDriver) Close(ctx context.Context) error { return nil }
