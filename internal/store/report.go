package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrRunNotFound is returned when no status is stored for a run id, either
// because it never ran with REDIS_URL set or because the keys expired.
var ErrRunNotFound = errors.New("run not found")

// PlacementLoader reads back the layout recorded for a run.
type PlacementLoader interface {
	Load(ctx context.Context, runID string) ([]Placement, error)
}

// WriteRunReport prints the stored status of runID followed by its
// placements. placements may be nil.
func WriteRunReport(ctx context.Context, w io.Writer, statuses StatusStore, placements PlacementLoader, runID string) error {
	st, ok, err := statuses.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	fmt.Fprintf(w, "run:        %s\n", runID)
	fmt.Fprintf(w, "status:     %s\n", st.Status)
	if st.Message != "" {
		fmt.Fprintf(w, "message:    %s\n", st.Message)
	}
	fmt.Fprintf(w, "images:     %d discovered, %d placed, %d dropped\n", st.Discovered, st.Placed, st.Dropped)
	if st.Output != "" {
		fmt.Fprintf(w, "output:     %s\n", st.Output)
	}
	if st.Start != nil && st.End != nil {
		fmt.Fprintf(w, "duration:   %s\n", st.End.Sub(*st.Start).Round(time.Millisecond))
	}

	if placements == nil {
		return nil
	}
	placed, err := placements.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("read placements: %w", err)
	}
	for _, p := range placed {
		if _, err := fmt.Fprintf(w, "  %5d,%-5d %5dx%-5d %s\n", p.X, p.Y, p.Width, p.Height, p.Path); err != nil {
			return err
		}
	}
	return nil
}
