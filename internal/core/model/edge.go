package model

import "time"

type EntityEdge struct {
	UUID       string    `json:"uuid"`
	SourceUUID string    `json:"source_node_uuid"`
	TargetUUID string    `json:"target_node_uuid"`
	GroupID    string    `json:"group_id"`
	Name       string    `json:"name"` // RELATES_TO
	Fact       string    `json:"fact"`
	CreatedAt  time.Time `json:"created_at"`
	ValidAt    time.Time `json:"valid_at"`
	Episodes   []string  `json:"episodes"`
}

type EpisodicEdge struct {
	UUID       string    `json:"uuid"`
	SourceUUID string    `json:"source_node_uuid"` // Episode
	TargetUUID string    `json:"target_node_uuid"` // Entity
	GroupID    string    `json:"group_id"`
	CreatedAt  time.Time `json:"created_at"`
	// Relationship type is MENTIONS
}

// ContradictionEdge is a directed CONTRADICTS edge: source is the
// contradicting node, target the contradicted one. Never mutated after
// creation; resolution happens downstream.
type ContradictionEdge struct {
	UUID              string    `json:"uuid"`
	SourceUUID        string    `json:"source_node_uuid"`
	TargetUUID        string    `json:"target_node_uuid"`
	GroupID           string    `json:"group_id"`
	Fact              string    `json:"fact"`
	CreatedAt         time.Time `json:"created_at"`
	ValidAt           time.Time `json:"valid_at"`
	Episodes          []string  `json:"episodes"`
	Reason            string    `json:"contradiction_reason"`
	Strength          float64   `json:"contradiction_strength"`
	DetectedInEpisode string    `json:"detected_in_episode"`
}
