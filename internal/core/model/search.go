package model

// ContradictionLink describes one CONTRADICTS adjacency of a search hit.
type ContradictionLink struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

type SearchResult struct {
	UUID            string              `json:"uuid"`
	Name            string              `json:"name"`
	Summary         string              `json:"summary"`
	Confidence      float64             `json:"confidence"`
	InContradiction bool                `json:"in_contradiction"`
	Contradicts     []ContradictionLink `json:"contradicts,omitempty"`
	ContradictedBy  []ContradictionLink `json:"contradicted_by,omitempty"`
}
