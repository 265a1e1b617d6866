package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/collager/internal/layout"
)

// Placement is the stored form of one placed image.
type Placement struct {
	Path   string `json:"path"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PlacementStore records the final layout of a run as a Redis list, one
// JSON entry per placed image in placement order.
type PlacementStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlacementStore shares the client of an existing status store.
func NewPlacementStore(client *redis.Client, ttl time.Duration) *PlacementStore {
	return &PlacementStore{client: client, ttl: ttl}
}

// PlacementsKey returns the list key holding a run's layout.
func PlacementsKey(runID string) string {
	return fmt.Sprintf("%s:%s:placements", KeyNamespace, runID)
}

// Save replaces the stored layout of runID.
func (s *PlacementStore) Save(ctx context.Context, runID string, placed []layout.PlacedImage) error {
	entries, err := encodePlacements(placed)
	if err != nil {
		return err
	}
	key := PlacementsKey(runID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(entries) > 0 {
		pipe.RPush(ctx, key, entries...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the stored layout of runID in placement order.
func (s *PlacementStore) Load(ctx context.Context, runID string) ([]Placement, error) {
	raw, err := s.client.LRange(ctx, PlacementsKey(runID), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePlacements(raw)
}

func encodePlacements(placed []layout.PlacedImage) ([]interface{}, error) {
	out := make([]interface{}, 0, len(placed))
	for _, p := range placed {
		b, err := json.Marshal(Placement{Path: p.Ref.Path, X: p.X, Y: p.Y, Width: p.Width, Height: p.Height})
		if err != nil {
			return nil, fmt.Errorf("encode placement %s: %w", p.Ref.Path, err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func decodePlacements(raw []string) ([]Placement, error) {
	out := make([]Placement, 0, len(raw))
	for i, r := range raw {
		var p Placement
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			return nil, fmt.Errorf("decode placement %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
