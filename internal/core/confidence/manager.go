package confidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/common"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// firstPersonIndicators mark an episode sentence as a direct user statement.
var firstPersonIndicators = []string{
	"i am", "i'm", "i was", "i have", "i like", "i love", "i hate",
	"i enjoy", "i prefer", "i work", "i live", "i want", "i believe",
	"i think", "my favorite", "my name", "my job",
}

// Manager is the single authority for a node's confidence value and
// metadata. All numeric confidence logic lives here; everything it persists
// goes through the graph driver with the cache updated on every write.
type Manager struct {
	driver driver.GraphDriver
	cfg    config.ConfidenceConfig
	cache  metadataCache
	logger *zap.Logger

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func NewManager(d driver.GraphDriver, cfg config.ConfidenceConfig, logger *zap.Logger) *Manager {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 4096
	}
	return &Manager{
		driver: d,
		cfg:    cfg,
		cache:  newLRUCache(size, ttl),
		logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Config() config.ConfidenceConfig {
	return m.cfg
}

// delta resolves the signed base delta for a trigger. The switch is
// exhaustive over the trigger set; unknown triggers resolve to (0, false).
func (m *Manager) delta(t Trigger) (float64, bool) {
	switch t {
	case TriggerUserReaffirmation:
		return m.cfg.UserReaffirmationBoost, true
	case TriggerUserReference:
		return m.cfg.UserReferenceBoost, true
	case TriggerUserReasoning:
		return m.cfg.UserReasoningBoost, true
	case TriggerNetworkSupport:
		return m.cfg.NetworkSupportBoost, true
	case TriggerReasoningUsage:
		return m.cfg.ReasoningUsageBoost, true
	case TriggerStructuralSupport:
		return m.cfg.StructuralSupportBoost, true
	case TriggerIndirectSupport:
		return m.cfg.IndirectSupportBoost, true
	case TriggerConsistencyCheck:
		return m.cfg.ConsistencyCheckBoost, true
	case TriggerExternalCorroboration:
		return m.cfg.ExternalCorroboration, true
	case TriggerContradictionDetected:
		return -m.cfg.ContradictionPenalty, true
	case TriggerRepeatedContradiction:
		return -m.cfg.RepeatedContradictionPenalty, true
	case TriggerUserCorrection:
		return -m.cfg.UserCorrectionPenalty, true
	case TriggerUserUncertainty:
		return -m.cfg.UserUncertaintyPenalty, true
	case TriggerDormancyDecay:
		return -m.cfg.DormancyDecayPenalty, true
	case TriggerExtendedDormancy:
		return -m.cfg.ExtendedDormancyPenalty, true
	case TriggerOrphanedEntity:
		return -m.cfg.OrphanedEntityPenalty, true
	case TriggerDuplicateFound:
		return m.cfg.DuplicateFoundBoost, true
	case TriggerInitialAssignment:
		return 0, false
	default:
		return 0, false
	}
}

// AssignInitialConfidence computes and persists a node's first confidence
// record. Any prior record is replaced, so callers only invoke this for
// nodes without one.
func (m *Manager) AssignInitialConfidence(ctx context.Context, node *model.EntityNode, origin OriginType, isDuplicate bool) (float64, error) {
	var base float64
	switch origin {
	case OriginUserGiven:
		base = m.cfg.InitialUserGiven
	case OriginInferred:
		base = m.cfg.InitialInferred
	case OriginSystemSuggested:
		base = m.cfg.InitialSystemSuggested
	default:
		base = m.cfg.InitialInferred
	}

	if isDuplicate {
		base += m.cfg.DuplicateFoundBoost
	}
	value := common.Clamp(base, 0, 1)

	now := m.Now()
	meta := NewMetadata(origin)
	meta.ConfidenceHistory = append(meta.ConfidenceHistory, HistoryEntry{
		Timestamp: now,
		Value:     value,
		Trigger:   TriggerInitialAssignment,
		Reason:    fmt.Sprintf("initial assignment (origin=%s, duplicate=%t)", origin, isDuplicate),
	})

	if err := m.persist(ctx, node.UUID, value, meta); err != nil {
		return 0, fmt.Errorf("failed to persist initial confidence for %s: %w", node.UUID, err)
	}

	node.Confidence = value
	return value, nil
}

// UpdateConfidence applies one trigger to a node. Returns (nil, nil) when
// the node has no confidence record or the effective delta is zero.
//
// Recognized metadata keys: "penalty" (positive float, overrides the base
// penalty for contradiction triggers), "boost" (positive float, overrides
// the base boost for support triggers), "contradicting_node_uuid",
// "supporting_node_uuid".
func (m *Manager) UpdateConfidence(ctx context.Context, nodeUUID string, trigger Trigger, reason string, metadata map[string]interface{}) (*Update, error) {
	current, meta, found, err := m.load(ctx, nodeUUID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	d, known := m.delta(trigger)
	if !known {
		return nil, nil
	}

	if override, ok := floatKey(metadata, "penalty"); ok && d < 0 {
		d = -override
	}
	if override, ok := floatKey(metadata, "boost"); ok && d > 0 {
		d = override
	}

	newValue := common.Clamp(current+d, 0, 1)
	if newValue == current {
		// Genuinely no-op; no history entry.
		return nil, nil
	}

	now := m.Now()
	switch trigger {
	case TriggerUserReaffirmation, TriggerUserReference, TriggerDuplicateFound:
		t := now
		meta.LastUserValidation = &t
	case TriggerUserCorrection:
		meta.Revisions++
	case TriggerContradictionDetected, TriggerRepeatedContradiction:
		if id, ok := stringKey(metadata, "contradicting_node_uuid"); ok {
			meta.addContradictor(id)
		}
	case TriggerNetworkSupport, TriggerStructuralSupport, TriggerIndirectSupport:
		if id, ok := stringKey(metadata, "supporting_node_uuid"); ok {
			meta.addSupporter(id)
		}
	}

	meta.ConfidenceHistory = append(meta.ConfidenceHistory, HistoryEntry{
		Timestamp: now,
		Value:     newValue,
		Trigger:   trigger,
		Reason:    reason,
		Metadata:  metadata,
	})

	if err := m.persist(ctx, nodeUUID, newValue, meta); err != nil {
		return nil, fmt.Errorf("failed to persist confidence update for %s: %w", nodeUUID, err)
	}

	return &Update{
		NodeUUID:  nodeUUID,
		OldValue:  current,
		NewValue:  newValue,
		Trigger:   trigger,
		Reason:    reason,
		Metadata:  metadata,
		Timestamp: now,
	}, nil
}

// UpdateConfidenceBatch applies requests sequentially in list order; later
// requests observe the effects of earlier ones. No-ops are skipped; store
// failures for one node are logged and that node is skipped rather than
// failing the batch.
func (m *Manager) UpdateConfidenceBatch(ctx context.Context, requests []UpdateRequest) []*Update {
	updates := make([]*Update, 0, len(requests))
	for _, req := range requests {
		u, err := m.UpdateConfidence(ctx, req.NodeUUID, req.Trigger, req.Reason, req.Metadata)
		if err != nil {
			m.logger.Warn("confidence update failed, skipping node",
				zap.String("node_uuid", req.NodeUUID),
				zap.String("trigger", string(req.Trigger)),
				zap.Error(err))
			continue
		}
		if u != nil {
			updates = append(updates, u)
		}
	}
	return updates
}

// CalculateNetworkReinforcement computes the reinforcement boost a node
// earns from its neighborhood. Capped regardless of neighbor count.
func (m *Manager) CalculateNetworkReinforcement(nodeUUID string, connected []Neighbor) float64 {
	var boost float64
	for i, n := range connected {
		if n.Confidence <= m.cfg.PropagationThreshold {
			continue
		}
		boost += n.Confidence * m.cfg.DirectConnectionBoostFactor

		others := 0
		for j, o := range connected {
			if j == i {
				continue
			}
			if o.Confidence > m.cfg.StructuralSupportThreshold {
				others++
			}
		}
		if others >= m.cfg.StructuralSupportMinConnections {
			boost += m.cfg.StructuralSupportBoost
		}
	}

	if boost > m.cfg.NetworkReinforcementCap {
		boost = m.cfg.NetworkReinforcementCap
	}
	return boost
}

// DetectOriginType classifies a node's provenance from the episode text.
// Duplicates are reaffirmations and always user-given.
func (m *Manager) DetectOriginType(nodeName, episodeText string, isDuplicate bool) OriginType {
	if isDuplicate {
		return OriginUserGiven
	}

	text := strings.ToLower(episodeText)
	if !strings.Contains(text, strings.ToLower(nodeName)) {
		// The extractor derived this name; it never appears literally.
		return OriginSystemSuggested
	}

	for _, indicator := range firstPersonIndicators {
		if strings.Contains(text, indicator) {
			return OriginUserGiven
		}
	}
	return OriginInferred
}

// ApplyContradictionPenalties penalizes the contradicted node. A
// contradicting node below the support threshold is too weak to discredit
// anything and the call is a no-op. A repeat contradictor escalates to the
// repeated-contradiction penalty.
func (m *Manager) ApplyContradictionPenalties(ctx context.Context, contradictedUUID, contradictingUUID string, strength float64) (*Update, error) {
	sourceConf, err := m.GetConfidence(ctx, contradictingUUID)
	if err != nil {
		return nil, err
	}
	if sourceConf == nil || *sourceConf < m.cfg.NetworkSupportThreshold {
		return nil, nil
	}

	base := m.cfg.ContradictionPenalty
	meta, err := m.GetMetadata(ctx, contradictedUUID)
	if err != nil {
		return nil, err
	}
	if meta != nil && meta.HasContradictor(contradictingUUID) {
		base = m.cfg.RepeatedContradictionPenalty
	}

	penalty := base * strength
	return m.UpdateConfidence(ctx, contradictedUUID, TriggerContradictionDetected,
		fmt.Sprintf("contradicted by %s", contradictingUUID),
		map[string]interface{}{
			"penalty":                penalty,
			"contradicting_node_uuid": contradictingUUID,
			"strength":               strength,
		})
}

// GetConfidence returns the node's current confidence, or nil when the node
// has no confidence record.
func (m *Manager) GetConfidence(ctx context.Context, nodeUUID string) (*float64, error) {
	conf, _, found, err := m.load(ctx, nodeUUID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &conf, nil
}

// GetMetadata returns the node's confidence metadata, or nil when absent.
func (m *Manager) GetMetadata(ctx context.Context, nodeUUID string) (*Metadata, error) {
	_, meta, found, err := m.load(ctx, nodeUUID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return meta, nil
}

// ConnectedNodes returns the confidence view of a node's RELATES_TO
// neighborhood.
func (m *Manager) ConnectedNodes(ctx context.Context, nodeUUID string) ([]Neighbor, error) {
	res, err := m.driver.ExecuteQuery(ctx, driver.GetConnectedNodesQuery, map[string]interface{}{
		"uuid": nodeUUID,
	})
	if err != nil {
		return nil, err
	}

	var neighbors []Neighbor
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		confVal, _ := rec.Get("confidence")
		id, ok := uuidVal.(string)
		if !ok {
			continue
		}
		conf, ok := confVal.(float64)
		if !ok {
			continue
		}
		neighbors = append(neighbors, Neighbor{UUID: id, Confidence: conf})
	}
	return neighbors, nil
}

// LowConfidenceNode is one row of the low-confidence scan.
type LowConfidenceNode struct {
	UUID       string  `json:"uuid"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	GroupID    string  `json:"group_id"`
}

func (m *Manager) LowConfidenceNodes(ctx context.Context, threshold float64, groupIDs []string, limit int) ([]LowConfidenceNode, error) {
	if limit <= 0 {
		limit = 50
	}
	res, err := m.driver.ExecuteQuery(ctx, driver.GetLowConfidenceNodesQuery, map[string]interface{}{
		"threshold": threshold,
		"group_ids": GroupIDsParam(groupIDs),
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}

	var nodes []LowConfidenceNode
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		nameVal, _ := rec.Get("name")
		confVal, _ := rec.Get("confidence")
		groupVal, _ := rec.Get("group_id")

		n := LowConfidenceNode{}
		n.UUID, _ = uuidVal.(string)
		n.Name, _ = nameVal.(string)
		n.Confidence, _ = confVal.(float64)
		n.GroupID, _ = groupVal.(string)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Summary aggregates confidence across a partition set.
type Summary struct {
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Low     int64   `json:"low"`
	High    int64   `json:"high"`
}

func (m *Manager) ConfidenceSummary(ctx context.Context, groupIDs []string) (*Summary, error) {
	res, err := m.driver.ExecuteQuery(ctx, driver.ConfidenceSummaryQuery, map[string]interface{}{
		"group_ids": GroupIDsParam(groupIDs),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return &Summary{}, nil
	}

	rec := res.Records[0]
	s := &Summary{}
	if v, ok := rec.Get("total"); ok {
		s.Total, _ = v.(int64)
	}
	if v, ok := rec.Get("average"); ok {
		s.Average, _ = v.(float64)
	}
	if v, ok := rec.Get("minimum"); ok {
		s.Minimum, _ = v.(float64)
	}
	if v, ok := rec.Get("maximum"); ok {
		s.Maximum, _ = v.(float64)
	}
	if v, ok := rec.Get("low"); ok {
		s.Low, _ = v.(int64)
	}
	if v, ok := rec.Get("high"); ok {
		s.High, _ = v.(int64)
	}
	return s, nil
}

// Serialized returns the persisted-form pair for a node, for callers that
// bulk-write nodes and need the current confidence fields inline.
func (m *Manager) Serialized(ctx context.Context, nodeUUID string) (float64, string, bool) {
	conf, meta, found, err := m.load(ctx, nodeUUID)
	if err != nil || !found {
		return 0, "", false
	}
	blob, err := meta.Serialize()
	if err != nil {
		return 0, "", false
	}
	return conf, blob, true
}

func (m *Manager) load(ctx context.Context, nodeUUID string) (float64, *Metadata, bool, error) {
	if rec, ok := m.cache.Get(nodeUUID); ok {
		return rec.Confidence, rec.Meta, true, nil
	}

	res, err := m.driver.ExecuteQuery(ctx, driver.GetNodeConfidenceQuery, map[string]interface{}{
		"uuid": nodeUUID,
	})
	if err != nil {
		return 0, nil, false, err
	}
	if len(res.Records) == 0 {
		return 0, nil, false, nil
	}

	confVal, _ := res.Records[0].Get("confidence")
	metaVal, _ := res.Records[0].Get("confidence_metadata")

	conf, ok := confVal.(float64)
	if !ok {
		// Node exists but has never been scored.
		return 0, nil, false, nil
	}

	blob, _ := metaVal.(string)
	var meta *Metadata
	if blob == "" {
		meta = NewMetadata(OriginInferred)
	} else {
		meta = ParseMetadata(blob)
	}

	m.cache.Put(nodeUUID, record{Confidence: conf, Meta: meta})
	return conf, meta, true, nil
}

func (m *Manager) persist(ctx context.Context, nodeUUID string, value float64, meta *Metadata) error {
	blob, err := meta.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize confidence metadata: %w", err)
	}

	_, err = m.driver.ExecuteQuery(ctx, driver.SetNodeConfidenceQuery, map[string]interface{}{
		"uuid":                nodeUUID,
		"confidence":          value,
		"confidence_metadata": blob,
	})
	if err != nil {
		return err
	}

	m.cache.Put(nodeUUID, record{Confidence: value, Meta: meta})
	return nil
}

// GroupIDsParam maps an optional partition filter onto the query parameter
// convention used by the scan queries (NULL disables the filter).
func GroupIDsParam(groupIDs []string) interface{} {
	if len(groupIDs) == 0 {
		return nil
	}
	out := make([]interface{}, len(groupIDs))
	for i, g := range groupIDs {
		out[i] = g
	}
	return out
}

func floatKey(m map[string]interface{}, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key].(float64)
	return v, ok
}

func stringKey(m map[string]interface{}, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}
