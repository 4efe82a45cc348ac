package confidence

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

var schedulerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(d *mockDriver) (*Scheduler, *Manager) {
	m := NewManager(d, config.DefaultConfidence(), zap.NewNop())
	m.Now = func() time.Time { return schedulerNow }
	s := NewScheduler(m, d, config.DefaultScheduler(), zap.NewNop())
	s.Now = func() time.Time { return schedulerNow }
	return s, m
}

// seedDormant registers a node whose last validation is the given number of
// days in the past, both in the scan results and the node store.
func seedDormant(d *mockDriver, uuid string, conf float64, daysAgo int) {
	validated := schedulerNow.Add(-time.Duration(daysAgo) * 24 * time.Hour)
	meta := NewMetadata(OriginUserGiven)
	meta.LastUserValidation = &validated
	d.setNode(uuid, conf, meta)
	blob, _ := meta.Serialize()
	d.scoredRecords = append(d.scoredRecords, makeRecord(
		[]string{"uuid", "confidence", "confidence_metadata"},
		[]interface{}{uuid, conf, blob},
	))
}

func TestRunDecayCycleDormancyTiers(t *testing.T) {
	d := newMockDriver()
	s, m := newTestScheduler(d)

	seedDormant(d, "dormant-40", 0.8, 40)
	seedDormant(d, "dormant-100", 0.8, 100)
	seedDormant(d, "fresh-5", 0.8, 5)

	stats := s.RunDecayCycle(context.Background(), nil)

	assert.Empty(t, stats.Error)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.DormancyDecay)
	assert.Equal(t, 1, stats.ExtendedDormancy)
	assert.Equal(t, 0, stats.Orphaned)

	ctx := context.Background()
	conf, err := m.GetConfidence(ctx, "dormant-40")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, *conf, 1e-9) // one DORMANCY_DECAY, not both tiers

	conf, err = m.GetConfidence(ctx, "dormant-100")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, *conf, 1e-9) // EXTENDED_DORMANCY only

	conf, err = m.GetConfidence(ctx, "fresh-5")
	require.NoError(t, err)
	assert.Equal(t, 0.8, *conf)
}

func TestRunDecayCycleSkipsNodesWithoutValidation(t *testing.T) {
	d := newMockDriver()
	s, m := newTestScheduler(d)

	meta := NewMetadata(OriginInferred)
	d.setNode("unvalidated", 0.5, meta)
	blob, _ := meta.Serialize()
	d.scoredRecords = append(d.scoredRecords, makeRecord(
		[]string{"uuid", "confidence", "confidence_metadata"},
		[]interface{}{"unvalidated", 0.5, blob},
	))

	stats := s.RunDecayCycle(context.Background(), nil)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.DormancyDecay)
	assert.Equal(t, 0, stats.ExtendedDormancy)

	conf, _ := m.GetConfidence(context.Background(), "unvalidated")
	assert.Equal(t, 0.5, *conf)
}

func TestRunDecayCycleOrphans(t *testing.T) {
	d := newMockDriver()
	s, m := newTestScheduler(d)

	d.setNode("orphan", 0.6, NewMetadata(OriginInferred))
	d.orphanRecords = []*neo4j.Record{makeRecord([]string{"uuid"}, []interface{}{"orphan"})}

	stats := s.RunDecayCycle(context.Background(), nil)
	assert.Equal(t, 1, stats.Orphaned)

	conf, _ := m.GetConfidence(context.Background(), "orphan")
	assert.InDelta(t, 0.45, *conf, 1e-9)
}

// Running two cycles back to back double-penalizes the same dormant node.
// That is the current, non-deduplicated behavior; this test pins it down as
// a known limitation rather than an accident.
func TestRunDecayCycleTwiceDoublePenalizes(t *testing.T) {
	d := newMockDriver()
	s, m := newTestScheduler(d)

	seedDormant(d, "dormant-40", 0.8, 40)

	stats := s.RunDecayCycle(context.Background(), nil)
	assert.Equal(t, 1, stats.DormancyDecay)

	// The scan still reports the stale blob; the manager's record moved on.
	stats = s.RunDecayCycle(context.Background(), nil)
	assert.Equal(t, 1, stats.DormancyDecay)

	conf, _ := m.GetConfidence(context.Background(), "dormant-40")
	assert.InDelta(t, 0.7, *conf, 1e-9)
}

func TestRunDecayCycleScanFailure(t *testing.T) {
	d := newMockDriver()
	s, _ := newTestScheduler(d)
	d.failQuery = driver.GetScoredNodesQuery

	stats := s.RunDecayCycle(context.Background(), nil)
	assert.NotEmpty(t, stats.Error)
	assert.Equal(t, 0, stats.Processed)
}

func TestRunDecayCycleOrphanScanFailureKeepsDormancy(t *testing.T) {
	d := newMockDriver()
	s, _ := newTestScheduler(d)
	d.failQuery = driver.GetOrphanedNodesQuery

	seedDormant(d, "dormant-40", 0.8, 40)

	stats := s.RunDecayCycle(context.Background(), nil)
	assert.Empty(t, stats.Error)
	assert.Equal(t, 1, stats.DormancyDecay)
	assert.Equal(t, 0, stats.Orphaned)
}
