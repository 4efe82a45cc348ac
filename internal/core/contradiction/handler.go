package contradiction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/core/common"
	"github.com/beliefgraph/beliefgraph/internal/core/confidence"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// Pair is a materialized contradiction: both sides resolved to graph nodes.
type Pair struct {
	Contradicting *model.EntityNode
	Contradicted  *model.EntityNode
	Reason        string
}

// Result is everything one episode's detection run produced. NewNodes are
// contradiction partners that did not exist before and must be folded into
// the episode's node set before persistence.
type Result struct {
	Pairs    []Pair
	NewNodes []*model.EntityNode
	Edges    []model.ContradictionEdge
	Message  string
}

// Handler turns semantic conflicts into graph structure: it detects pairs,
// materializes missing nodes, builds CONTRADICTS edges, and applies the
// confidence fallout. Detection is best-effort and never blocks ingestion.
type Handler struct {
	Detector *Detector
	Manager  *confidence.Manager
	logger   *zap.Logger

	UUIDGenerator func() string
	Now           func() time.Time
}

func NewHandler(detector *Detector, manager *confidence.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		Detector:      detector,
		Manager:       manager,
		logger:        logger,
		UUIDGenerator: func() string { return uuid.New().String() },
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// ProcessEpisode runs detection for one episode. The existing set must
// exclude nodes created by this same episode; episodeNodes supplies them so
// pair sides resolve against this episode's entities first. A failing LLM
// call degrades to an empty result.
func (h *Handler) ProcessEpisode(ctx context.Context, episodeUUID, episodeText, groupID string, existing []model.EntityNode, episodeNodes []*model.EntityNode) *Result {
	result := &Result{}

	rawPairs, err := h.Detector.DetectPairs(ctx, episodeText, existing)
	if err != nil {
		h.logger.Warn("contradiction detection failed, continuing without contradictions",
			zap.String("episode_uuid", episodeUUID),
			zap.Error(err))
		return result
	}
	if len(rawPairs) == 0 {
		return result
	}

	now := h.Now()
	for _, raw := range rawPairs {
		contradicting := h.resolveNode(raw.Contradicting, groupID, now, existing, episodeNodes, result)
		contradicted := h.resolveNode(raw.Contradicted, groupID, now, existing, episodeNodes, result)
		if contradicting.UUID == contradicted.UUID {
			continue
		}

		pair := Pair{Contradicting: contradicting, Contradicted: contradicted, Reason: raw.Reason}
		result.Pairs = append(result.Pairs, pair)

		result.Edges = append(result.Edges, model.ContradictionEdge{
			UUID:              h.UUIDGenerator(),
			SourceUUID:        contradicting.UUID,
			TargetUUID:        contradicted.UUID,
			GroupID:           groupID,
			Fact:              fmt.Sprintf("%s contradicts %s", contradicting.Name, contradicted.Name),
			CreatedAt:         now,
			ValidAt:           now,
			Episodes:          []string{episodeUUID},
			Reason:            raw.Reason,
			DetectedInEpisode: episodeUUID,
		})
	}

	result.Message = buildNotification(result.Pairs)
	return result
}

// resolveNode matches a pair side by exact name against this episode's
// nodes, then the existing set, and materializes a new Entity otherwise.
func (h *Handler) resolveNode(name, groupID string, now time.Time, existing []model.EntityNode, episodeNodes []*model.EntityNode, result *Result) *model.EntityNode {
	lower := strings.ToLower(strings.TrimSpace(name))

	for _, n := range episodeNodes {
		if strings.ToLower(n.Name) == lower {
			return n
		}
	}
	for i := range existing {
		if strings.ToLower(existing[i].Name) == lower {
			return &existing[i]
		}
	}
	for _, n := range result.NewNodes {
		if strings.ToLower(n.Name) == lower {
			return n
		}
	}

	node := &model.EntityNode{
		UUID:      h.UUIDGenerator(),
		Name:      strings.TrimSpace(name),
		GroupID:   groupID,
		CreatedAt: now,
	}
	result.NewNodes = append(result.NewNodes, node)
	return node
}

// ApplyFallout applies the asymmetric confidence consequences of each pair:
// the contradicted side is penalized scaled by contradiction strength, and
// only a strictly higher-confidence contradicting side earns a boost.
func (h *Handler) ApplyFallout(ctx context.Context, result *Result) []*confidence.Update {
	var updates []*confidence.Update
	for i, pair := range result.Pairs {
		var src, dst float64
		if c, err := h.Manager.GetConfidence(ctx, pair.Contradicting.UUID); err == nil && c != nil {
			src = *c
		}
		if c, err := h.Manager.GetConfidence(ctx, pair.Contradicted.UUID); err == nil && c != nil {
			dst = *c
		}

		diff := src - dst
		if diff < 0 {
			diff = -diff
		}
		strength := common.Clamp(0.5+diff, 0.5, 1.0)
		if i < len(result.Edges) {
			result.Edges[i].Strength = strength
		}

		u, err := h.Manager.ApplyContradictionPenalties(ctx, pair.Contradicted.UUID, pair.Contradicting.UUID, strength)
		if err != nil {
			h.logger.Warn("failed to apply contradiction penalty",
				zap.String("contradicted_uuid", pair.Contradicted.UUID),
				zap.Error(err))
			continue
		}
		if u != nil {
			updates = append(updates, u)
		}

		if src > dst {
			boost, err := h.Manager.UpdateConfidence(ctx, pair.Contradicting.UUID, confidence.TriggerNetworkSupport,
				fmt.Sprintf("prevailed in contradiction with %s", pair.Contradicted.UUID),
				map[string]interface{}{"supporting_node_uuid": pair.Contradicted.UUID})
			if err != nil {
				h.logger.Warn("failed to apply contradiction winner boost",
					zap.String("contradicting_uuid", pair.Contradicting.UUID),
					zap.Error(err))
				continue
			}
			if boost != nil {
				updates = append(updates, boost)
			}
		}
	}
	return updates
}

// ContradictionSummary aggregates CONTRADICTS edges across partitions.
type ContradictionSummary struct {
	Total              int64 `json:"total"`
	ContradictedNodes  int64 `json:"contradicted_nodes"`
	ContradictingNodes int64 `json:"contradicting_nodes"`
}

func Summarize(ctx context.Context, d driver.GraphDriver, groupIDs []string) (*ContradictionSummary, error) {
	res, err := d.ExecuteQuery(ctx, driver.ContradictionSummaryQuery, map[string]interface{}{
		"group_ids": confidence.GroupIDsParam(groupIDs),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return &ContradictionSummary{}, nil
	}

	rec := res.Records[0]
	s := &ContradictionSummary{}
	if v, ok := rec.Get("total"); ok {
		s.Total, _ = v.(int64)
	}
	if v, ok := rec.Get("contradicted_nodes"); ok {
		s.ContradictedNodes, _ = v.(int64)
	}
	if v, ok := rec.Get("contradicting_nodes"); ok {
		s.ContradictingNodes, _ = v.(int64)
	}
	return s, nil
}

func buildNotification(pairs []Pair) string {
	if len(pairs) == 0 {
		return ""
	}

	describe := func(n *model.EntityNode) string {
		if n.Summary != "" {
			return fmt.Sprintf("%s (%s)", n.Name, n.Summary)
		}
		return n.Name
	}

	if len(pairs) == 1 {
		p := pairs[0]
		return fmt.Sprintf("I notice something may have changed: %s conflicts with %s. %s",
			describe(p.Contradicting), describe(p.Contradicted), p.Reason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I notice %d things that may have changed:\n", len(pairs))
	for _, p := range pairs {
		fmt.Fprintf(&b, "- %s conflicts with %s. %s\n",
			describe(p.Contradicting), describe(p.Contradicted), p.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
