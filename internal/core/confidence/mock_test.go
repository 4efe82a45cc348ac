package confidence

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// mockDriver keeps per-node confidence state so reads observe writes, the
// way the real store does.
type mockDriver struct {
	confidences map[string]float64
	blobs       map[string]string

	scoredRecords    []*neo4j.Record
	orphanRecords    []*neo4j.Record
	connectedRecords []*neo4j.Record

	failQuery string
	Queries   []string
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		confidences: map[string]float64{},
		blobs:       map[string]string{},
	}
}

func makeRecord(keys []string, values []interface{}) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func (m *mockDriver) setNode(uuid string, conf float64, meta *Metadata) {
	m.confidences[uuid] = conf
	if meta != nil {
		blob, _ := meta.Serialize()
		m.blobs[uuid] = blob
	}
}

func (m *mockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	if m.failQuery != "" && query == m.failQuery {
		return neo4j.EagerResult{}, fmt.Errorf("store unavailable")
	}

	switch query {
	case driver.GetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		conf, ok := m.confidences[uuid]
		if !ok {
			return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
		}
		return neo4j.EagerResult{Records: []*neo4j.Record{
			makeRecord([]string{"confidence", "confidence_metadata"}, []interface{}{conf, m.blobs[uuid]}),
		}}, nil

	case driver.SetNodeConfidenceQuery:
		uuid := params["uuid"].(string)
		m.confidences[uuid] = params["confidence"].(float64)
		m.blobs[uuid] = params["confidence_metadata"].(string)
		return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil

	case driver.GetScoredNodesQuery:
		return neo4j.EagerResult{Records: m.scoredRecords}, nil

	case driver.GetOrphanedNodesQuery:
		return neo4j.EagerResult{Records: m.orphanRecords}, nil

	case driver.GetConnectedNodesQuery:
		return neo4j.EagerResult{Records: m.connectedRecords}, nil
	}

	return neo4j.EagerResult{Records: []*neo4j.Record{}}, nil
}

func (m *mockDriver) BuildIndices(ctx context.Context) error { return nil }

func (m *mockDriver) Close(ctx context.Context) error { return nil }
