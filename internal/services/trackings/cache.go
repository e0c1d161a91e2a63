package trackings

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BearBump/LiveTrack/internal/models"
)

// Кэш текущего состояния - лучшее усилие: ошибки Redis не ломают запрос.

func currentKey(orderID string) string {
	return "livetrack:tracking:" + orderID + ":current"
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) cacheGet(ctx context.Context, orderID string) *models.TrackingRecord {
	if !s.cacheEnabled() {
		return nil
	}
	b, ok, err := s.cache.Get(ctx, currentKey(orderID))
	if err != nil || !ok {
		return nil
	}
	var rec models.TrackingRecord
	if json.Unmarshal(b, &rec) != nil || rec.OrderID != orderID {
		return nil
	}
	return &rec
}

func (s *Service) cacheSet(ctx context.Context, rec *models.TrackingRecord) {
	if !s.cacheEnabled() || rec == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, currentKey(rec.OrderID), b, s.cacheTTL); err != nil {
		slog.Debug("cache set failed", "order_id", rec.OrderID, "error", err)
	}
}

func (s *Service) cacheDelete(ctx context.Context, orderID string) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Delete(ctx, currentKey(orderID)); err != nil {
		slog.Debug("cache delete failed", "order_id", orderID, "error", err)
	}
}
