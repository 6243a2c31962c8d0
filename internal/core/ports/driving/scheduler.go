package driving

import (
	"context"

	"github.com/custodia-labs/quire/internal/core/domain"
)

// Scheduler re-runs the pipeline in the background.
type Scheduler interface {
	// Start schedules runs and returns immediately.
	Start(ctx context.Context) error

	// Stop cancels any run in flight and stops scheduling.
	Stop()

	// RunNow runs the pipeline once, synchronously.
	RunNow(ctx context.Context) *domain.PipelineRun

	// LastRun returns the most recent run, or nil.
	LastRun() *domain.PipelineRun
}
