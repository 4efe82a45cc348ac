package confidence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/config"
	"github.com/beliefgraph/beliefgraph/internal/driver"
)

// CycleStats summarizes one decay cycle. Error carries a marker instead of
// raising; a failed cycle is retried on the next tick.
type CycleStats struct {
	Processed        int    `json:"processed"`
	DormancyDecay    int    `json:"dormancy_decay"`
	ExtendedDormancy int    `json:"extended_dormancy"`
	Orphaned         int    `json:"orphaned"`
	Error            string `json:"error,omitempty"`
}

// Scheduler drives periodic dormancy decay and orphan penalties. Decay is
// not deduplicated against the ingestion pipeline's opportunistic pass: two
// cycles on the same day double-penalize. Known gap, kept deliberately.
type Scheduler struct {
	manager *Manager
	driver  driver.GraphDriver
	cfg     config.SchedulerConfig
	logger  *zap.Logger

	Now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(manager *Manager, d driver.GraphDriver, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.IntervalHours <= 0 {
		cfg.IntervalHours = 24
	}
	return &Scheduler{
		manager: manager,
		driver:  d,
		cfg:     cfg,
		logger:  logger,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the periodic loop. Cancellation lands between cycles; a
// node's update either completes or is never started.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	interval := time.Duration(s.cfg.IntervalHours) * time.Hour

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := s.RunDecayCycle(ctx, s.cfg.GroupIDs)
				s.logger.Info("decay cycle finished",
					zap.Int("processed", stats.Processed),
					zap.Int("dormancy_decay", stats.DormancyDecay),
					zap.Int("extended_dormancy", stats.ExtendedDormancy),
					zap.Int("orphaned", stats.Orphaned),
					zap.String("error", stats.Error))
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// RunDecayCycle scans one batch of scored nodes for dormancy and orphan
// status and flushes all resulting triggers in a single batch update. It
// never panics past itself; failures come back as an error marker. Also the
// entry point for manual, operator-triggered runs.
func (s *Scheduler) RunDecayCycle(ctx context.Context, groupIDs []string) CycleStats {
	stats := CycleStats{}

	requests, processed, err := s.collectDormancy(ctx, groupIDs)
	if err != nil {
		s.logger.Error("decay cycle failed scanning dormant nodes", zap.Error(err))
		stats.Error = fmt.Sprintf("dormancy scan: %v", err)
		return stats
	}
	stats.Processed = processed

	orphanRequests, err := s.collectOrphans(ctx, groupIDs)
	if err != nil {
		// Dormancy work is still worth flushing.
		s.logger.Warn("orphan scan failed, continuing with dormancy only", zap.Error(err))
	} else {
		requests = append(requests, orphanRequests...)
	}

	updates := s.manager.UpdateConfidenceBatch(ctx, requests)
	for _, u := range updates {
		switch u.Trigger {
		case TriggerDormancyDecay:
			stats.DormancyDecay++
		case TriggerExtendedDormancy:
			stats.ExtendedDormancy++
		case TriggerOrphanedEntity:
			stats.Orphaned++
		}
	}
	return stats
}

func (s *Scheduler) collectDormancy(ctx context.Context, groupIDs []string) ([]UpdateRequest, int, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetScoredNodesQuery, map[string]interface{}{
		"group_ids": GroupIDsParam(groupIDs),
		"limit":     s.cfg.BatchSize,
	})
	if err != nil {
		return nil, 0, err
	}

	now := s.Now()
	dormantAfter := time.Duration(s.manager.Config().DormancyDays) * 24 * time.Hour
	extendedAfter := time.Duration(s.manager.Config().ExtendedDormancyDays) * 24 * time.Hour

	var requests []UpdateRequest
	processed := 0
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		metaVal, _ := rec.Get("confidence_metadata")
		nodeUUID, ok := uuidVal.(string)
		if !ok {
			continue
		}
		blob, ok := metaVal.(string)
		if !ok || blob == "" {
			continue
		}
		processed++

		meta := ParseMetadata(blob)
		if meta.LastUserValidation == nil {
			// No validation timestamp means no computable age; the node is
			// still a candidate for the orphan scan.
			continue
		}

		age := now.Sub(*meta.LastUserValidation)
		switch {
		case age > extendedAfter:
			requests = append(requests, UpdateRequest{
				NodeUUID: nodeUUID,
				Trigger:  TriggerExtendedDormancy,
				Reason:   fmt.Sprintf("no validation for %d days", int(age.Hours()/24)),
			})
		case age > dormantAfter:
			requests = append(requests, UpdateRequest{
				NodeUUID: nodeUUID,
				Trigger:  TriggerDormancyDecay,
				Reason:   fmt.Sprintf("no validation for %d days", int(age.Hours()/24)),
			})
		}
	}
	return requests, processed, nil
}

func (s *Scheduler) collectOrphans(ctx context.Context, groupIDs []string) ([]UpdateRequest, error) {
	res, err := s.driver.ExecuteQuery(ctx, driver.GetOrphanedNodesQuery, map[string]interface{}{
		"group_ids": GroupIDsParam(groupIDs),
		"limit":     s.cfg.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	var requests []UpdateRequest
	for _, rec := range res.Records {
		uuidVal, _ := rec.Get("uuid")
		nodeUUID, ok := uuidVal.(string)
		if !ok {
			continue
		}
		requests = append(requests, UpdateRequest{
			NodeUUID: nodeUUID,
			Trigger:  TriggerOrphanedEntity,
			Reason:   "no graph connections",
		})
	}
	return requests, nil
}
