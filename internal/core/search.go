package core

import (
	"context"

	"github.com/beliefgraph/beliefgraph/internal/core/model"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// Search runs a text match over the group's entities and augments each hit
// with its CONTRADICTS adjacency so callers can see which results are in
// dispute.
func (e *Engine) Search(ctx context.Context, groupID, query string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	res, err := e.Driver.ExecuteQuery(ctx, driver.SearchNodesQuery, map[string]interface{}{
		"group_id": groupID,
		"query":    query,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}

	var results []model.SearchResult
	var uuids []interface{}
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		nameVal, _ := rec.Get("name")
		summaryVal, _ := rec.Get("summary")
		confVal, _ := rec.Get("confidence")

		id, ok := uuidVal.(string)
		if !ok {
			continue
		}
		r := model.SearchResult{UUID: id}
		r.Name, _ = nameVal.(string)
		r.Summary, _ = summaryVal.(string)
		r.Confidence, _ = confVal.(float64)
		results = append(results, r)
		uuids = append(uuids, id)
	}
	if len(results) == 0 {
		return results, nil
	}

	linkRes, err := e.Driver.ExecuteQuery(ctx, driver.GetContradictionLinksQuery, map[string]interface{}{
		"uuids": uuids,
	})
	if err != nil {
		return nil, err
	}

	contradicts := make(map[string][]model.ContradictionLink)
	contradictedBy := make(map[string][]model.ContradictionLink)
	for _, rec := range linkRes.Records {
		uuidVal, _ := rec.Get("uuid")
		otherUUIDVal, _ := rec.Get("other_uuid")
		otherNameVal, _ := rec.Get("other_name")
		sourceVal, _ := rec.Get("source_uuid")
		reasonVal, _ := rec.Get("reason")

		id, _ := uuidVal.(string)
		link := model.ContradictionLink{}
		link.UUID, _ = otherUUIDVal.(string)
		link.Name, _ = otherNameVal.(string)
		link.Reason, _ = reasonVal.(string)
		source, _ := sourceVal.(string)

		if source == id {
			contradicts[id] = append(contradicts[id], link)
		} else {
			contradictedBy[id] = append(contradictedBy[id], link)
		}
	}

	for i := range results {
		results[i].Contradicts = contradicts[results[i].UUID]
		results[i].ContradictedBy = contradictedBy[results[i].UUID]
		results[i].InContradiction = len(results[i].Contradicts) > 0 || len(results[i].ContradictedBy) > 0
	}
	return results, nil
}
