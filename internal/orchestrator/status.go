package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/collager/internal/store"
)

// setStatus is best effort; a status store outage never fails a run.
func (o *Orchestrator) setStatus(ctx context.Context, l zerolog.Logger, res *Result, state, msg string, start, end *time.Time) {
	if o.deps.Status == nil {
		return
	}
	st := store.Status{
		Status:     state,
		Message:    msg,
		Discovered: res.Discovered,
		Placed:     res.Placed,
		Dropped:    res.Dropped,
		Output:     res.Output,
		Start:      start,
		End:        end,
	}
	if state != store.StatusProcessing {
		st.Metadata = map[string]interface{}{
			"skipped":     res.Skipped,
			"scale":       res.Scale,
			"duration_ms": res.Duration.Milliseconds(),
		}
	}
	// use a fresh context so a cancelled run still records its final state
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.Status.Set(sctx, res.RunID, st); err != nil {
		l.Warn().Err(err).Str("status", state).Msg("failed to record run status")
	}
}

func (o *Orchestrator) recordPlacements(ctx context.Context, l zerolog.Logger, res *Result) {
	if o.deps.Placements == nil {
		return
	}
	if err := o.deps.Placements.Save(ctx, res.RunID, res.Placements); err != nil {
		l.Warn().Err(err).Msg("failed to record placements")
	}
}

func (o *Orchestrator) finishMetrics(l zerolog.Logger, res *Result, result string) {
	m := o.deps.Metrics
	if m == nil {
		return
	}
	m.AddImages("discovered", res.Discovered)
	m.AddImages("placed", res.Placed)
	m.AddImages("dropped", res.Dropped)
	m.AddImages("skipped", res.Skipped)
	if res.Scale > 0 {
		m.SetScale(res.Scale)
	}
	m.ObserveStage("total", res.Duration)
	m.RunFinished(result)
	l.Debug().Str("result", result).Msg("metrics recorded")
}
