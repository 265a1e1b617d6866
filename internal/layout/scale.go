package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Heuristic selects how the uniform scale factor is derived.
type Heuristic string

const (
	// HeuristicArea fits the summed image area into the page area, scaled
	// down by a safety margin to leave slack for imperfect packing.
	HeuristicArea Heuristic = "area"
	// HeuristicAggregate takes min(pageW/Σw, pageH/Σh) with no margin.
	HeuristicAggregate Heuristic = "aggregate"
)

// DefaultSafetyMargin is applied by HeuristicArea.
const DefaultSafetyMargin = 0.9

// ErrNoImages is returned when a scale is requested for an empty image set.
var ErrNoImages = errors.New("no images to scale")

// ParseHeuristic maps a configuration value to a Heuristic.
func ParseHeuristic(s string) (Heuristic, error) {
	switch Heuristic(strings.ToLower(strings.TrimSpace(s))) {
	case HeuristicArea:
		return HeuristicArea, nil
	case HeuristicAggregate:
		return HeuristicAggregate, nil
	}
	return "", fmt.Errorf("invalid scale heuristic %q (use 'area' or 'aggregate')", s)
}

// EstimateScale computes the single scale factor shared by every image of
// the collage. margin is only used by HeuristicArea.
func EstimateScale(dims []Size, page PageSize, h Heuristic, margin float64) (float64, error) {
	if len(dims) == 0 {
		return 0, ErrNoImages
	}
	if page.Width <= 0 || page.Height <= 0 {
		return 0, fmt.Errorf("invalid page size %s", page)
	}

	var sumW, sumH, sumArea float64
	for i, d := range dims {
		if d.Width <= 0 || d.Height <= 0 {
			return 0, fmt.Errorf("image %d has invalid size %s", i, d)
		}
		w, ht := float64(d.Width), float64(d.Height)
		sumW += w
		sumH += ht
		sumArea += w * ht
	}

	switch h {
	case HeuristicArea:
		if margin <= 0 {
			return 0, fmt.Errorf("invalid safety margin %v", margin)
		}
		pageArea := float64(page.Width) * float64(page.Height)
		return math.Sqrt(pageArea/sumArea) * margin, nil
	case HeuristicAggregate:
		return math.Min(float64(page.Width)/sumW, float64(page.Height)/sumH), nil
	}
	return 0, fmt.Errorf("unknown scale heuristic %q", h)
}
