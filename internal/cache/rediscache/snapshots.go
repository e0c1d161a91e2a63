package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// AnchorSnapshot is the point where the driver was first seen for the current stationary streak.
type AnchorSnapshot struct {
	Lat   float64   `json:"lat"`
	Lng   float64   `json:"lng"`
	Since time.Time `json:"since"`
}

// SnapshotStore keeps one anchor per order for stationary detection in the worker.
type SnapshotStore struct {
	c   *redis.Client
	ttl time.Duration
}

func NewSnapshotStore(c *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{c: c, ttl: ttl}
}

func snapshotKey(orderID string) string {
	return "livetrack:stationary:" + orderID
}

func (s *SnapshotStore) GetAnchor(ctx context.Context, orderID string) (*AnchorSnapshot, error) {
	b, err := s.c.Get(ctx, snapshotKey(orderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get anchor")
	}
	var a AnchorSnapshot
	if err := json.Unmarshal(b, &a); err != nil {
		// битый снапшот считаем отсутствующим
		return nil, nil
	}
	return &a, nil
}

func (s *SnapshotStore) SetAnchor(ctx context.Context, orderID string, a AnchorSnapshot) error {
	b, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal anchor")
	}
	if err := s.c.Set(ctx, snapshotKey(orderID), b, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set anchor")
	}
	return nil
}

// Touch продлевает TTL якоря, не меняя Since.
func (s *SnapshotStore) Touch(ctx context.Context, orderID string) error {
	if err := s.c.Expire(ctx, snapshotKey(orderID), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis expire anchor")
	}
	return nil
}

func (s *SnapshotStore) DeleteAnchor(ctx context.Context, orderID string) error {
	if err := s.c.Del(ctx, snapshotKey(orderID)).Err(); err != nil {
		return errors.Wrap(err, "redis del anchor")
	}
	return nil
}
