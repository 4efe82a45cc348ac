package confidence

import (
	"encoding/json"
	"time"
)

// Trigger names an event kind that moves a node's confidence.
type Trigger string

const (
	TriggerInitialAssignment     Trigger = "initial_assignment"
	TriggerUserReaffirmation     Trigger = "user_reaffirmation"
	TriggerUserReference         Trigger = "user_reference"
	TriggerUserReasoning         Trigger = "user_reasoning"
	TriggerNetworkSupport        Trigger = "network_support"
	TriggerReasoningUsage        Trigger = "reasoning_usage"
	TriggerStructuralSupport     Trigger = "structural_support"
	TriggerIndirectSupport       Trigger = "indirect_support"
	TriggerConsistencyCheck      Trigger = "consistency_check"
	TriggerExternalCorroboration Trigger = "external_corroboration"
	TriggerContradictionDetected Trigger = "contradiction_detected"
	TriggerRepeatedContradiction Trigger = "repeated_contradiction"
	TriggerUserCorrection        Trigger = "user_correction"
	TriggerUserUncertainty       Trigger = "user_uncertainty"
	TriggerDormancyDecay         Trigger = "dormancy_decay"
	TriggerExtendedDormancy      Trigger = "extended_dormancy"
	TriggerOrphanedEntity        Trigger = "orphaned_entity"
	TriggerDuplicateFound        Trigger = "duplicate_found"
)

// OriginType classifies where a node's content came from. Immutable once set.
type OriginType string

const (
	OriginUserGiven       OriginType = "user_given"
	OriginInferred        OriginType = "inferred"
	OriginSystemSuggested OriginType = "system_suggested"
)

const (
	ResolutionUnresolved = "unresolved"

	// metadataSchemaVersion is stored in every blob so future field
	// additions can be migrated without breaking old records.
	metadataSchemaVersion = 1
)

// HistoryEntry is one appended confidence mutation. Entries are ordered by
// timestamp and never truncated; the latest entry's value is the node's
// current confidence.
type HistoryEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Value     float64                `json:"value"`
	Trigger   Trigger                `json:"trigger"`
	Reason    string                 `json:"reason"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Metadata is the per-node confidence record, persisted as a JSON string
// property next to the scalar confidence projection.
type Metadata struct {
	SchemaVersion                 int            `json:"schema_version"`
	OriginType                    OriginType     `json:"origin_type"`
	ConfidenceHistory             []HistoryEntry `json:"confidence_history"`
	Revisions                     int            `json:"revisions"`
	LastUserValidation            *time.Time     `json:"last_user_validation,omitempty"`
	SupportingCOIDs               []string       `json:"supporting_co_ids"`
	ContradictingCOIDs            []string       `json:"contradicting_co_ids"`
	ContradictionResolutionStatus string         `json:"contradiction_resolution_status"`
	StabilityScore                float64        `json:"stability_score"`
}

func NewMetadata(origin OriginType) *Metadata {
	return &Metadata{
		SchemaVersion:                 metadataSchemaVersion,
		OriginType:                    origin,
		SupportingCOIDs:               []string{},
		ContradictingCOIDs:            []string{},
		ContradictionResolutionStatus: ResolutionUnresolved,
	}
}

// ParseMetadata decodes a persisted blob. A malformed blob yields a fresh
// inferred record instead of an error; confidence continuity beats strict
// validation here.
func ParseMetadata(blob string) *Metadata {
	var m Metadata
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return NewMetadata(OriginInferred)
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = metadataSchemaVersion
	}
	if m.OriginType == "" {
		m.OriginType = OriginInferred
	}
	if m.SupportingCOIDs == nil {
		m.SupportingCOIDs = []string{}
	}
	if m.ContradictingCOIDs == nil {
		m.ContradictingCOIDs = []string{}
	}
	if m.ContradictionResolutionStatus == "" {
		m.ContradictionResolutionStatus = ResolutionUnresolved
	}
	return &m
}

func (m *Metadata) Serialize() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Metadata) HasContradictor(uuid string) bool {
	for _, id := range m.ContradictingCOIDs {
		if id == uuid {
			return true
		}
	}
	return false
}

func (m *Metadata) addContradictor(uuid string) {
	if !m.HasContradictor(uuid) {
		m.ContradictingCOIDs = append(m.ContradictingCOIDs, uuid)
	}
}

func (m *Metadata) addSupporter(uuid string) {
	for _, id := range m.SupportingCOIDs {
		if id == uuid {
			return
		}
	}
	m.SupportingCOIDs = append(m.SupportingCOIDs, uuid)
}

// Update is one applied confidence mutation. It is folded into the node's
// history, never persisted standalone.
type Update struct {
	NodeUUID  string                 `json:"node_uuid"`
	OldValue  float64                `json:"old_value"`
	NewValue  float64                `json:"new_value"`
	Trigger   Trigger                `json:"trigger"`
	Reason    string                 `json:"reason"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// UpdateRequest is one queued mutation for batch application.
type UpdateRequest struct {
	NodeUUID string
	Trigger  Trigger
	Reason   string
	Metadata map[string]interface{}
}

// Neighbor is a connected node's confidence view used for reinforcement.
type Neighbor struct {
	UUID       string
	Confidence float64
}
