package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/easycrawl/catalog-service/internal/catalog"
	"github.com/easycrawl/catalog-service/internal/metrics"
)

// RetryUnmappable re-runs the full pipeline for parked items, oldest attempt
// first. A match deletes the unmappable record; another miss bumps its
// attempt count and moves it behind the run's cutoff.
func (e *Engine) RetryUnmappable(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	cutoff := e.Now()
	snap := e.registry.Snapshot()
	result := newRunResult()
	seen := make(map[int64]struct{})

	for {
		parked, err := e.store.ListUnmappableForRetry(ctx, cutoff, e.config.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list unmappable items: %w", err)
		}

		// items that failed with an error keep their last attempt and come back
		// on every page; the seen set ends the run once only those remain
		var items []catalog.RawItem
		fresh := 0
		for _, u := range parked {
			if _, ok := seen[u.RawItemID]; ok {
				continue
			}
			seen[u.RawItemID] = struct{}{}
			fresh++

			raw, err := e.store.GetRawItem(ctx, u.RawItemID)
			if errors.Is(err, catalog.ErrNotFound) {
				if err := e.store.DeleteUnmappable(ctx, u.RawItemID); err != nil {
					return result, fmt.Errorf("delete orphaned unmappable %d: %w", u.RawItemID, err)
				}
				continue
			}
			if err != nil {
				result.add(ItemResult{RawItemID: u.RawItemID}, err)
				continue
			}
			if raw.Processed && raw.MatchedProductID != nil {
				// resolved elsewhere since it was parked
				if err := e.store.DeleteUnmappable(ctx, raw.ID); err != nil {
					return result, fmt.Errorf("delete resolved unmappable %d: %w", raw.ID, err)
				}
				result.add(ItemResult{RawItemID: raw.ID, Outcome: OutcomeSkipped}, nil)
				continue
			}
			items = append(items, *raw)
		}

		if fresh == 0 {
			break
		}
		if len(items) > 0 {
			result.Pages++
			if err := e.processPage(ctx, snap, items, true, result); err != nil {
				return result, err
			}
		}
		if len(parked) < e.config.BatchSize {
			break
		}
	}

	metrics.RecordJobDuration("retry-unmappable", time.Since(start))
	e.logger.Info().
		Int("retried", result.Processed).
		Int("resolved", result.Matched+result.Created).
		Int("still_unmappable", result.Unmappable).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("Unmappable retry completed")
	return result, nil
}
