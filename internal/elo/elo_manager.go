package elo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRating is the bootstrap rating for players with no history.
	DefaultRating = 1200.0

	// Ratings are clamped to a sane band so a burst of replayed or buggy
	// deltas cannot run away.
	MinRating = 500.0
	MaxRating = 3000.0

	ratingKeyPrefix = "battle_elo:"
	ratingTTL       = 90 * 24 * time.Hour
)

// Store keeps battle ratings in redis.
type Store struct {
	ctx context.Context
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{
		ctx: context.Background(),
		rdb: rdb,
	}
}

// RatingInfo is a player's stored rating and battle count.
type RatingInfo struct {
	PlayerID string  `json:"playerId"`
	Rating   float64 `json:"rating"`
	Battles  int     `json:"battles"`
}

// GetRating retrieves a player's rating, falling back to the default for
// unknown players.
func (s *Store) GetRating(playerID string) (*RatingInfo, error) {
	key := ratingKeyPrefix + playerID

	data, err := s.rdb.HGetAll(s.ctx, key).Result()
	if err == redis.Nil || len(data) == 0 {
		return &RatingInfo{PlayerID: playerID, Rating: DefaultRating}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}

	info := &RatingInfo{PlayerID: playerID, Rating: DefaultRating}
	if ratingStr, ok := data["rating"]; ok {
		fmt.Sscanf(ratingStr, "%f", &info.Rating)
	}
	if battlesStr, ok := data["battles"]; ok {
		fmt.Sscanf(battlesStr, "%d", &info.Battles)
	}
	return info, nil
}

// SetRating stores a player's rating with a rolling expiry.
func (s *Store) SetRating(playerID string, rating float64, battles int) error {
	key := ratingKeyPrefix + playerID

	err := s.rdb.HSet(s.ctx, key, map[string]interface{}{
		"rating":       rating,
		"battles":      battles,
		"last_updated": time.Now().Unix(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}

	s.rdb.Expire(s.ctx, key, ratingTTL)
	return nil
}

// ApplyDelta adjusts a player's rating by a settled delta, clamped to the
// allowed band, and increments their battle count. Returns the new rating.
func (s *Store) ApplyDelta(playerID string, delta int) (float64, error) {
	info, err := s.GetRating(playerID)
	if err != nil {
		return 0, err
	}

	newRating := info.Rating + float64(delta)
	if newRating < MinRating {
		newRating = MinRating
	}
	if newRating > MaxRating {
		newRating = MaxRating
	}

	if err := s.SetRating(playerID, newRating, info.Battles+1); err != nil {
		return 0, err
	}
	return newRating, nil
}
