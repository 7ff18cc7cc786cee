package workflow

import (
	"context"
	"time"

	"github.com/webpilot-ai/webpilot/internal/events"
	"github.com/webpilot-ai/webpilot/internal/task"
)

// reportProgress emits periodic task.progress events while the task stays
// InProgress. It only reads state and must be cancelled when the task leaves
// execution.
func (w *Workflow) reportProgress(ctx context.Context, t *task.Task) {
	if w.deps.Bus == nil {
		return
	}
	interval := w.cfg.ProgressInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.Status != task.StatusInProgress {
				return
			}
			progress := 0.0
			currentStep := ""
			if t.Plan != nil {
				progress = t.Plan.Progress()
				if step := t.Plan.CurrentStep(); step != nil {
					currentStep = step.Description
				}
			}
			w.publish(events.EventTaskProgress, t, map[string]any{
				"progress":     progress,
				"current_step": currentStep,
				"status":       t.Status.String(),
			})
		}
	}
}
