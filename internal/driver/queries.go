package driver

const (
	SaveEntityNodeQuery = `
		MERGE (n:Entity {uuid: $uuid})
		SET n.name = $name,
			n.group_id = $group_id,
			n.created_at = $created_at,
			n.summary = $summary,
			n.name_embedding = $name_embedding,
			n.confidence = $confidence,
			n.confidence_metadata = $confidence_metadata
		RETURN n.uuid AS uuid
	`

	SaveEntityNodesBulkQuery = `
		UNWIND $nodes AS node
		MERGE (n:Entity {uuid: node.uuid})
		SET n.name = node.name,
			n.group_id = node.group_id,
			n.created_at = node.created_at,
			n.summary = node.summary,
			n.name_embedding = node.name_embedding,
			n.confidence = node.confidence,
			n.confidence_metadata = node.confidence_metadata
		RETURN n.uuid AS uuid
	`

	SaveEpisodicNodeQuery = `
		MERGE (n:Episodic {uuid: $uuid})
		SET n.name = $name,
			n.group_id = $group_id,
			n.created_at = $created_at,
			n.valid_at = $valid_at,
			n.content = $content,
			n.source = $source,
			n.source_description = $source_description
		RETURN n.uuid AS uuid
	`

	SaveEntityEdgesBulkQuery = `
		UNWIND $edges AS edge
		MATCH (source:Entity {uuid: edge.source_uuid})
		MATCH (target:Entity {uuid: edge.target_uuid})
		MERGE (source)-[e:RELATES_TO {uuid: edge.uuid}]->(target)
		SET e.name = edge.name,
			e.fact = edge.fact,
			e.group_id = edge.group_id,
			e.created_at = edge.created_at,
			e.valid_at = edge.valid_at,
			e.episodes = edge.episodes
		RETURN e.uuid AS uuid
	`

	SaveEpisodicEdgesBulkQuery = `
		UNWIND $edges AS edge
		MATCH (episode:Episodic {uuid: edge.source_uuid})
		MATCH (node:Entity {uuid: edge.target_uuid})
		MERGE (episode)-[e:MENTIONS {uuid: edge.uuid}]->(node)
		SET e.group_id = edge.group_id,
			e.created_at = edge.created_at
		RETURN e.uuid AS uuid
	`

	// CONTRADICTS is a load-bearing literal; external queries match on it.
	SaveContradictionEdgesBulkQuery = `
		UNWIND $edges AS edge
		MATCH (source:Entity {uuid: edge.source_uuid})
		MATCH (target:Entity {uuid: edge.target_uuid})
		MERGE (source)-[e:CONTRADICTS {uuid: edge.uuid}]->(target)
		SET e.fact = edge.fact,
			e.group_id = edge.group_id,
			e.created_at = edge.created_at,
			e.valid_at = edge.valid_at,
			e.episodes = edge.episodes,
			e.contradiction_reason = edge.contradiction_reason,
			e.contradiction_strength = edge.contradiction_strength,
			e.detected_in_episode = edge.detected_in_episode
		RETURN e.uuid AS uuid
	`

	GetNodeConfidenceQuery = `
		MATCH (n:Entity {uuid: $uuid})
		RETURN n.confidence AS confidence, n.confidence_metadata AS confidence_metadata
	`

	// MERGE so a confidence record can be written during ingestion before
	// the episode's bulk node save lands.
	SetNodeConfidenceQuery = `
		MERGE (n:Entity {uuid: $uuid})
		SET n.confidence = $confidence,
			n.confidence_metadata = $confidence_metadata
		RETURN n.uuid AS uuid
	`

	GetGroupNodesQuery = `
		MATCH (n:Entity {group_id: $group_id})
		RETURN n.uuid AS uuid, n.name AS name, n.summary AS summary
	`

	GetConnectedNodesQuery = `
		MATCH (n:Entity {uuid: $uuid})-[:RELATES_TO]-(m:Entity)
		RETURN DISTINCT m.uuid AS uuid, m.confidence AS confidence
	`

	// Dormancy windows live inside the metadata blob, so the scan returns
	// every node carrying a confidence record and the caller filters by age.
	GetScoredNodesQuery = `
		MATCH (n:Entity)
		WHERE n.confidence IS NOT NULL
			AND n.confidence_metadata IS NOT NULL
			AND ($group_ids IS NULL OR n.group_id IN $group_ids)
		RETURN n.uuid AS uuid, n.confidence AS confidence, n.confidence_metadata AS confidence_metadata
		LIMIT $limit
	`

	GetOrphanedNodesQuery = `
		MATCH (n:Entity)
		WHERE n.confidence IS NOT NULL
			AND ($group_ids IS NULL OR n.group_id IN $group_ids)
			AND NOT (n)--()
		RETURN n.uuid AS uuid
		LIMIT $limit
	`

	GetLowConfidenceNodesQuery = `
		MATCH (n:Entity)
		WHERE n.confidence IS NOT NULL
			AND n.confidence < $threshold
			AND ($group_ids IS NULL OR n.group_id IN $group_ids)
		RETURN n.uuid AS uuid, n.name AS name, n.confidence AS confidence, n.group_id AS group_id
		ORDER BY n.confidence ASC
		LIMIT $limit
	`

	ConfidenceSummaryQuery = `
		MATCH (n:Entity)
		WHERE n.confidence IS NOT NULL
			AND ($group_ids IS NULL OR n.group_id IN $group_ids)
		RETURN count(n) AS total,
			avg(n.confidence) AS average,
			min(n.confidence) AS minimum,
			max(n.confidence) AS maximum,
			sum(CASE WHEN n.confidence < 0.3 THEN 1 ELSE 0 END) AS low,
			sum(CASE WHEN n.confidence >= 0.7 THEN 1 ELSE 0 END) AS high
	`

	ContradictionSummaryQuery = `
		MATCH (a:Entity)-[e:CONTRADICTS]->(b:Entity)
		WHERE $group_ids IS NULL OR e.group_id IN $group_ids
		RETURN count(e) AS total,
			count(DISTINCT b) AS contradicted_nodes,
			count(DISTINCT a) AS contradicting_nodes
	`

	GetContradictionLinksQuery = `
		MATCH (n:Entity)-[e:CONTRADICTS]-(m:Entity)
		WHERE n.uuid IN $uuids
		RETURN n.uuid AS uuid,
			m.uuid AS other_uuid,
			m.name AS other_name,
			startNode(e).uuid AS source_uuid,
			e.contradiction_reason AS reason
	`

	SearchNodesQuery = `
		MATCH (n:Entity {group_id: $group_id})
		WHERE toLower(n.name) CONTAINS toLower($query)
			OR toLower(coalesce(n.summary, '')) CONTAINS toLower($query)
		RETURN n.uuid AS uuid, n.name AS name, n.summary AS summary, n.confidence AS confidence
		LIMIT $limit
	`
)
