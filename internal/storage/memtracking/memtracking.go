// Package memtracking is an in-process Tracking Record Store for local runs and tests.
// It keeps deep copies, so callers never share record state with the store.
package memtracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/keylock"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/pkg/errors"
)

type Storage struct {
	mu      sync.RWMutex
	records map[string]*models.TrackingRecord
	locks   *keylock.KeyLock
}

func New() *Storage {
	return &Storage{
		records: make(map[string]*models.TrackingRecord),
		locks:   keylock.New(),
	}
}

func (s *Storage) GetTracking(_ context.Context, orderID string) (*models.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[orderID]
	if !ok {
		return nil, notFound(orderID)
	}
	return rec.Clone(), nil
}

func (s *Storage) CreateTracking(_ context.Context, rec *models.TrackingRecord) (*models.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.records[rec.OrderID]; ok {
		return cur.Clone(), nil
	}
	s.records[rec.OrderID] = rec.Clone()
	return rec.Clone(), nil
}

func (s *Storage) UpdateTracking(
	ctx context.Context,
	orderID string,
	fn func(cur *models.TrackingRecord) (*models.TrackingRecord, error),
) (*models.TrackingRecord, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	cur, err := s.GetTracking(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur.Clone())
	if err != nil {
		return nil, err
	}
	if next.OrderID != orderID {
		return nil, errors.Errorf("update changed order id %q -> %q", orderID, next.OrderID)
	}
	if len(next.Timeline) < len(cur.Timeline) {
		return nil, errors.New("timeline is append-only")
	}

	s.mu.Lock()
	s.records[orderID] = next.Clone()
	s.mu.Unlock()
	return next, nil
}

func (s *Storage) SetDriverStationary(ctx context.Context, orderID string, stationary bool, at time.Time) error {
	_, err := s.UpdateTracking(ctx, orderID, func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.WithDriverStationary(stationary, at), nil
	})
	return err
}

func (s *Storage) ListActiveTrackings(_ context.Context, limit int) ([]*models.TrackingRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	s.mu.RLock()
	out := make([]*models.TrackingRecord, 0)
	for _, rec := range s.records {
		if rec.Status.IsActive() {
			out = append(out, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].LastUpdate.Before(out[j].LastUpdate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() {}

func notFound(orderID string) error {
	return errs.Newf(errs.KindNotFound, "tracking for order %s not found", orderID)
}
