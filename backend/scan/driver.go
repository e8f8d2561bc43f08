package scan

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchSummary aggregates the outcomes of a multi-target run.
type BatchSummary struct {
	Total             int
	Completed         int
	Failed            int
	TotalMainCalls    int
	TotalSandboxCalls int
	UsageFiles        []string
	Results           []*Result
}

// RunAll scans every target concurrently. Parallelism of 0 means unbounded.
// A failing scan never stops its siblings; failures are counted in the
// summary instead.
func (c *Coordinator) RunAll(ctx context.Context, targets []string, systemPrompt, baseUserPrompt string, parallelism int) *BatchSummary {
	c.options.Logger.Info("starting parallel scans", "targets", len(targets))

	results := make([]*Result, len(targets))

	group, groupCtx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		group.SetLimit(parallelism)
	}

	for i, target := range targets {
		group.Go(func() error {
			results[i] = c.RunScan(groupCtx, target, systemPrompt, baseUserPrompt)
			return nil
		})
	}
	// The group never returns an error; RunScan folds failures into results.
	_ = group.Wait()

	summary := &BatchSummary{
		Total:   len(targets),
		Results: results,
	}
	for _, result := range results {
		if result == nil {
			summary.Failed++
			continue
		}
		if result.Status == StatusCompleted {
			summary.Completed++
			summary.TotalMainCalls += result.Usage.MainAgentCalls
			summary.TotalSandboxCalls += result.Usage.SandboxAgentCalls
			if result.UsageFilename != "" {
				summary.UsageFiles = append(summary.UsageFiles, result.UsageFilename)
			}
		} else {
			summary.Failed++
		}
	}

	c.options.Logger.Info("all scans finished",
		"total", summary.Total,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"main_agent_calls", summary.TotalMainCalls,
		"sandbox_agent_calls", summary.TotalSandboxCalls,
	)
	return summary
}
