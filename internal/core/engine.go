package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/core/confidence"
	"github.com/beliefgraph/beliefgraph/internal/core/contradiction"
	"github.com/beliefgraph/beliefgraph/internal/core/dedupe"
	"github.com/beliefgraph/beliefgraph/internal/core/extraction"
	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/driver"
	"github.com/beliefgraph/beliefgraph/internal/llm"
)

// Engine runs the episode ingestion pipeline: extraction, duplicate
// resolution, confidence assignment, contradiction detection, persistence,
// and an opportunistic decay pass for the episode's partition.
type Engine struct {
	Driver        driver.GraphDriver
	LLM           llm.LLMClient
	Embedder      llm.EmbedderClient
	Extractor     *extraction.Extractor
	Deduplicator  *dedupe.Deduplicator
	Confidence    *confidence.Manager
	Contradiction *contradiction.Handler
	Scheduler     *confidence.Scheduler
	Config        *config.Config

	// UUIDGenerator is injectable for deterministic tests.
	UUIDGenerator func() string

	logger *zap.Logger
}

func NewEngine(d driver.GraphDriver, llmClient llm.LLMClient, embedderClient llm.EmbedderClient, cfg *config.Config, logger *zap.Logger) *Engine {
	manager := confidence.NewManager(d, cfg.Confidence, logger)
	detector := contradiction.NewDetector(llmClient, cfg.Contradiction)
	handler := contradiction.NewHandler(detector, manager, logger)

	e := &Engine{
		Driver:        d,
		LLM:           llmClient,
		Embedder:      embedderClient,
		Extractor:     extraction.NewExtractor(llmClient, cfg.Extraction),
		Deduplicator:  dedupe.NewDeduplicator(llmClient, cfg.Deduplication),
		Confidence:    manager,
		Contradiction: handler,
		Scheduler:     confidence.NewScheduler(manager, d, cfg.Scheduler, logger),
		Config:        cfg,
		UUIDGenerator: func() string { return uuid.New().String() },
		logger:        logger,
	}
	// Contradiction node materialization shares the engine's generator so
	// tests can predict every UUID in one sequence.
	handler.UUIDGenerator = func() string { return e.UUIDGenerator() }
	return e
}

func (e *Engine) BuildIndices(ctx context.Context) error {
	return e.Driver.BuildIndices(ctx)
}

// resolvedNode tracks how one extracted entity resolved. isDuplicate means
// it matched a pre-existing node; hasRecord means that node already carries
// a confidence record (so it is known across episodes, not merely merged
// within this one).
type resolvedNode struct {
	node        *model.EntityNode
	isDuplicate bool
	hasRecord   bool
}

// EpisodeResult summarizes one ingested episode.
type EpisodeResult struct {
	EpisodeUUID          string                    `json:"episode_uuid"`
	Nodes                []*model.EntityNode       `json:"nodes"`
	CreatedNodes         int                       `json:"created_nodes"`
	DuplicateNodes       int                       `json:"duplicate_nodes"`
	EntityEdges          int                       `json:"entity_edges"`
	ContradictionEdges   []model.ContradictionEdge `json:"contradiction_edges"`
	ContradictionMessage string                    `json:"contradiction_message,omitempty"`
	ConfidenceUpdates    []*confidence.Update      `json:"confidence_updates,omitempty"`
}

// AddEpisode ingests one unit of text into the group's graph. The pipeline
// is linear with no backtracking; contradiction detection and the closing
// decay pass are best-effort, everything else fails loudly so the caller
// can retry the whole episode.
func (e *Engine) AddEpisode(ctx context.Context, groupID, name, content string) (*EpisodeResult, error) {
	now := time.Now().UTC()
	epUUID := e.UUIDGenerator()

	entities, err := e.Extractor.ExtractNodes(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	existing, err := e.groupNodes(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group nodes: %w", err)
	}

	resolved := e.resolveEntities(ctx, entities, existing, groupID, now)

	// Confidence assignment. "New to all time" is decided from the store
	// (presence of a confidence record), so restarts cannot misclassify a
	// known node as brand-new. Reaffirmation is reserved for nodes that
	// survived across episodes; mentions merged within this episode get
	// initial assignment only.
	var reaffirm []confidence.UpdateRequest
	for _, r := range resolved {
		if r.hasRecord {
			reaffirm = append(reaffirm, confidence.UpdateRequest{
				NodeUUID: r.node.UUID,
				Trigger:  confidence.TriggerUserReaffirmation,
				Reason:   fmt.Sprintf("reaffirmed in episode %s", epUUID),
			})
			continue
		}
		origin := e.Confidence.DetectOriginType(r.node.Name, content, r.isDuplicate)
		if _, err := e.Confidence.AssignInitialConfidence(ctx, r.node, origin, r.isDuplicate); err != nil {
			return nil, err
		}
	}

	episodeNodes := make([]*model.EntityNode, len(resolved))
	for i, r := range resolved {
		episodeNodes[i] = r.node
	}

	// Contradictions run against existing nodes minus anything this episode
	// resolved to, so an episode cannot contradict itself.
	candidates := excludeNodes(existing, episodeNodes)
	cres := e.Contradiction.ProcessEpisode(ctx, epUUID, content, groupID, candidates, episodeNodes)

	e.mergeContradictionPartners(ctx, cres, candidates)

	for _, n := range cres.NewNodes {
		origin := e.Confidence.DetectOriginType(n.Name, content, false)
		if _, err := e.Confidence.AssignInitialConfidence(ctx, n, origin, false); err != nil {
			return nil, err
		}
	}

	var updates []*confidence.Update
	updates = append(updates, e.Contradiction.ApplyFallout(ctx, cres)...)
	updates = append(updates, e.Confidence.UpdateConfidenceBatch(ctx, reaffirm)...)

	// Network reinforcement for cross-episode duplicates with qualifying
	// neighborhoods.
	for _, r := range resolved {
		if !r.isDuplicate {
			continue
		}
		neighbors, err := e.Confidence.ConnectedNodes(ctx, r.node.UUID)
		if err != nil {
			e.logger.Warn("failed to load neighbors for reinforcement",
				zap.String("node_uuid", r.node.UUID), zap.Error(err))
			continue
		}
		boost := e.Confidence.CalculateNetworkReinforcement(r.node.UUID, neighbors)
		if boost <= 0 {
			continue
		}
		u, err := e.Confidence.UpdateConfidence(ctx, r.node.UUID, confidence.TriggerNetworkSupport,
			"network reinforcement from connected nodes",
			map[string]interface{}{"boost": boost})
		if err != nil {
			e.logger.Warn("failed to apply network reinforcement",
				zap.String("node_uuid", r.node.UUID), zap.Error(err))
			continue
		}
		if u != nil {
			updates = append(updates, u)
		}
	}

	allNodes := append(episodeNodes, cres.NewNodes...)

	entityEdges := e.extractEntityEdges(ctx, content, allNodes, epUUID, groupID, now)

	e.embedNodes(ctx, allNodes)

	if err := e.persistEpisode(ctx, epUUID, name, groupID, content, now, allNodes, entityEdges, cres.Edges); err != nil {
		return nil, fmt.Errorf("failed to persist episode: %w", err)
	}

	// Opportunistic scoped decay for this partition; failures only log.
	stats := e.Scheduler.RunDecayCycle(ctx, []string{groupID})
	if stats.Error != "" {
		e.logger.Warn("opportunistic decay pass failed",
			zap.String("group_id", groupID), zap.String("error", stats.Error))
	}

	result := &EpisodeResult{
		EpisodeUUID:          epUUID,
		Nodes:                allNodes,
		EntityEdges:          len(entityEdges),
		ContradictionEdges:   cres.Edges,
		ContradictionMessage: cres.Message,
		ConfidenceUpdates:    updates,
	}
	for _, r := range resolved {
		if r.isDuplicate {
			result.DuplicateNodes++
		} else {
			result.CreatedNodes++
		}
	}
	result.CreatedNodes += len(cres.NewNodes)
	return result, nil
}

// resolveEntities merges same-name mentions within the episode, matches
// extracted entities against existing nodes by exact name, and runs the LLM
// deduplicator over what is left. Dedupe failures degrade to "no fuzzy
// duplicates" rather than failing the episode.
func (e *Engine) resolveEntities(ctx context.Context, entities []model.ExtractedEntity, existing []model.EntityNode, groupID string, now time.Time) []*resolvedNode {
	existingByName := make(map[string]*model.EntityNode, len(existing))
	for i := range existing {
		existingByName[strings.ToLower(existing[i].Name)] = &existing[i]
	}

	var resolved []*resolvedNode
	seen := make(map[string]*resolvedNode)
	var candidates []*resolvedNode

	for _, ent := range entities {
		key := strings.ToLower(strings.TrimSpace(ent.Name))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			// Same mention twice in one episode resolves to one node and
			// earns no reaffirmation.
			continue
		}

		var r *resolvedNode
		if match, ok := existingByName[key]; ok {
			node := *match
			node.GroupID = groupID
			r = &resolvedNode{node: &node, isDuplicate: true}
		} else {
			r = &resolvedNode{node: &model.EntityNode{
				UUID:      e.UUIDGenerator(),
				Name:      strings.TrimSpace(ent.Name),
				GroupID:   groupID,
				CreatedAt: now,
				Summary:   ent.Summary,
			}}
			candidates = append(candidates, r)
		}
		seen[key] = r
		resolved = append(resolved, r)
	}

	if len(candidates) > 0 && len(existing) > 0 {
		newNodes := make([]*model.EntityNode, len(candidates))
		for i, c := range candidates {
			newNodes[i] = c.node
		}
		pairs, err := e.Deduplicator.ResolveDuplicates(ctx, newNodes, existing)
		if err != nil {
			e.logger.Warn("deduplication failed, treating candidates as new", zap.Error(err))
		} else {
			byUUID := make(map[string]*resolvedNode, len(candidates))
			for _, c := range candidates {
				byUUID[c.node.UUID] = c
			}
			for _, p := range pairs {
				c, ok := byUUID[p.DuplicateUUID]
				if !ok {
					continue
				}
				for i := range existing {
					if existing[i].UUID == p.OriginalUUID {
						c.node.UUID = existing[i].UUID
						if c.node.Summary == "" {
							c.node.Summary = existing[i].Summary
						}
						c.isDuplicate = true
						break
					}
				}
			}
		}
	}

	// LLM dedupe can fold two differently-named mentions onto one node; keep
	// one resolvedNode per UUID so reaffirmation and persistence fire once.
	unique := resolved[:0]
	seenUUID := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		if seenUUID[r.node.UUID] {
			continue
		}
		seenUUID[r.node.UUID] = true
		unique = append(unique, r)
	}
	resolved = unique

	// A duplicate is "known across episodes" only if the store already has
	// a confidence record for it.
	for _, r := range resolved {
		if !r.isDuplicate {
			continue
		}
		conf, err := e.Confidence.GetConfidence(ctx, r.node.UUID)
		if err != nil {
			e.logger.Warn("failed to read confidence record during resolution",
				zap.String("node_uuid", r.node.UUID), zap.Error(err))
			continue
		}
		if conf != nil {
			r.hasRecord = true
			r.node.Confidence = *conf
		}
	}

	return resolved
}

// mergeContradictionPartners runs materialized contradiction partners
// through the same LLM duplicate resolution as extracted entities, so a
// partner naming an existing concept inexactly merges onto it instead of
// minting a twin node. Dedupe failures degrade to keeping the partners new.
func (e *Engine) mergeContradictionPartners(ctx context.Context, cres *contradiction.Result, existing []model.EntityNode) {
	if len(cres.NewNodes) == 0 || len(existing) == 0 {
		return
	}

	pairs, err := e.Deduplicator.ResolveDuplicates(ctx, cres.NewNodes, existing)
	if err != nil {
		e.logger.Warn("contradiction partner deduplication failed, keeping partners as new", zap.Error(err))
		return
	}

	merged := make(map[string]string, len(pairs))
	for _, p := range pairs {
		for i := range existing {
			if existing[i].UUID == p.OriginalUUID {
				merged[p.DuplicateUUID] = existing[i].UUID
				break
			}
		}
	}
	if len(merged) == 0 {
		return
	}

	// Re-pointing the node UUID in place keeps cres.Pairs consistent; the
	// fallout pass then reads the existing node's confidence record.
	var kept []*model.EntityNode
	for _, n := range cres.NewNodes {
		to, ok := merged[n.UUID]
		if !ok {
			kept = append(kept, n)
			continue
		}
		for i := range existing {
			if existing[i].UUID == to {
				if n.Summary == "" {
					n.Summary = existing[i].Summary
				}
				break
			}
		}
		n.UUID = to
	}
	cres.NewNodes = kept

	var edgesKept []model.ContradictionEdge
	var pairsKept []contradiction.Pair
	for i := range cres.Edges {
		if to, ok := merged[cres.Edges[i].SourceUUID]; ok {
			cres.Edges[i].SourceUUID = to
		}
		if to, ok := merged[cres.Edges[i].TargetUUID]; ok {
			cres.Edges[i].TargetUUID = to
		}
		// A merge can collapse both sides onto one node; such an edge is a
		// self-contradiction and is dropped, pair and all.
		if cres.Edges[i].SourceUUID == cres.Edges[i].TargetUUID {
			continue
		}
		edgesKept = append(edgesKept, cres.Edges[i])
		if i < len(cres.Pairs) {
			pairsKept = append(pairsKept, cres.Pairs[i])
		}
	}
	cres.Edges = edgesKept
	cres.Pairs = pairsKept
}

func (e *Engine) extractEntityEdges(ctx context.Context, content string, nodes []*model.EntityNode, epUUID, groupID string, now time.Time) []model.EntityEdge {
	extracted, err := e.Extractor.ExtractEdges(ctx, content, nodes)
	if err != nil {
		e.logger.Warn("edge extraction failed, continuing without entity edges",
			zap.String("episode_uuid", epUUID), zap.Error(err))
		return nil
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.UUID] = true
	}

	var edges []model.EntityEdge
	for _, ex := range extracted {
		if !known[ex.SourceNodeUUID] || !known[ex.TargetNodeUUID] || ex.SourceNodeUUID == ex.TargetNodeUUID {
			continue
		}
		edges = append(edges, model.EntityEdge{
			UUID:       e.UUIDGenerator(),
			SourceUUID: ex.SourceNodeUUID,
			TargetUUID: ex.TargetNodeUUID,
			GroupID:    groupID,
			Name:       ex.RelationType,
			Fact:       ex.Fact,
			CreatedAt:  now,
			ValidAt:    now,
			Episodes:   []string{epUUID},
		})
	}
	return edges
}

// embedNodes fans out name embeddings for nodes missing one. Embedding
// failures leave the field empty; persistence does not depend on it.
func (e *Engine) embedNodes(ctx context.Context, nodes []*model.EntityNode) {
	if e.Embedder == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, n := range nodes {
		if len(n.NameEmbedding) > 0 {
			continue
		}
		node := n
		g.Go(func() error {
			vec, err := e.Embedder.Embed(gctx, node.Name)
			if err == nil {
				node.NameEmbedding = vec
			}
			return nil
		})
	}
	_ = g.Wait()
}

// persistEpisode writes the episode, all nodes, and all edges as one bulk
// pass. Node rows carry the current confidence fields inline so the bulk
// MERGE cannot clobber what the manager already persisted.
func (e *Engine) persistEpisode(ctx context.Context, epUUID, name, groupID, content string, now time.Time, nodes []*model.EntityNode, entityEdges []model.EntityEdge, contradictionEdges []model.ContradictionEdge) error {
	_, err := e.Driver.ExecuteQuery(ctx, driver.SaveEpisodicNodeQuery, map[string]interface{}{
		"uuid":               epUUID,
		"name":               name,
		"group_id":           groupID,
		"created_at":         now.Format(time.RFC3339),
		"valid_at":           now.Format(time.RFC3339),
		"content":            content,
		"source":             "message",
		"source_description": "user message",
	})
	if err != nil {
		return err
	}

	if len(nodes) > 0 {
		rows := make([]interface{}, 0, len(nodes))
		mentionRows := make([]interface{}, 0, len(nodes))
		for _, n := range nodes {
			conf, metaBlob, ok := e.Confidence.Serialized(ctx, n.UUID)
			if !ok {
				conf = n.Confidence
			}
			rows = append(rows, map[string]interface{}{
				"uuid":                n.UUID,
				"name":                n.Name,
				"group_id":            n.GroupID,
				"created_at":          n.CreatedAt.Format(time.RFC3339),
				"summary":             n.Summary,
				"name_embedding":      n.NameEmbedding,
				"confidence":          conf,
				"confidence_metadata": metaBlob,
			})
			mentionRows = append(mentionRows, map[string]interface{}{
				"uuid":        e.UUIDGenerator(),
				"source_uuid": epUUID,
				"target_uuid": n.UUID,
				"group_id":    groupID,
				"created_at":  now.Format(time.RFC3339),
			})
		}
		if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveEntityNodesBulkQuery, map[string]interface{}{"nodes": rows}); err != nil {
			return err
		}
		if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveEpisodicEdgesBulkQuery, map[string]interface{}{"edges": mentionRows}); err != nil {
			return err
		}
	}

	if len(entityEdges) > 0 {
		rows := make([]interface{}, 0, len(entityEdges))
		for _, edge := range entityEdges {
			rows = append(rows, map[string]interface{}{
				"uuid":        edge.UUID,
				"source_uuid": edge.SourceUUID,
				"target_uuid": edge.TargetUUID,
				"group_id":    edge.GroupID,
				"name":        edge.Name,
				"fact":        edge.Fact,
				"created_at":  edge.CreatedAt.Format(time.RFC3339),
				"valid_at":    edge.ValidAt.Format(time.RFC3339),
				"episodes":    edge.Episodes,
			})
		}
		if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveEntityEdgesBulkQuery, map[string]interface{}{"edges": rows}); err != nil {
			return err
		}
	}

	if len(contradictionEdges) > 0 {
		rows := make([]interface{}, 0, len(contradictionEdges))
		for _, edge := range contradictionEdges {
			rows = append(rows, map[string]interface{}{
				"uuid":                   edge.UUID,
				"source_uuid":            edge.SourceUUID,
				"target_uuid":            edge.TargetUUID,
				"group_id":               edge.GroupID,
				"fact":                   edge.Fact,
				"created_at":             edge.CreatedAt.Format(time.RFC3339),
				"valid_at":               edge.ValidAt.Format(time.RFC3339),
				"episodes":               edge.Episodes,
				"contradiction_reason":   edge.Reason,
				"contradiction_strength": edge.Strength,
				"detected_in_episode":    edge.DetectedInEpisode,
			})
		}
		if _, err := e.Driver.ExecuteQuery(ctx, driver.SaveContradictionEdgesBulkQuery, map[string]interface{}{"edges": rows}); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) groupNodes(ctx context.Context, groupID string) ([]model.EntityNode, error) {
	res, err := e.Driver.ExecuteQuery(ctx, driver.GetGroupNodesQuery, map[string]interface{}{
		"group_id": groupID,
	})
	if err != nil {
		return nil, err
	}

	var nodes []model.EntityNode
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		nameVal, _ := rec.Get("name")
		summaryVal, _ := rec.Get("summary")

		id, ok := uuidVal.(string)
		if !ok {
			continue
		}
		n := model.EntityNode{UUID: id, GroupID: groupID}
		n.Name, _ = nameVal.(string)
		n.Summary, _ = summaryVal.(string)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func excludeNodes(existing []model.EntityNode, taken []*model.EntityNode) []model.EntityNode {
	takenUUIDs := make(map[string]bool, len(taken))
	for _, n := range taken {
		takenUUIDs[n.UUID] = true
	}
	var out []model.EntityNode
	for _, n := range existing {
		if !takenUUIDs[n.UUID] {
			out = append(out, n)
		}
	}
	return out
}
