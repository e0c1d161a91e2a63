package pgtracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS order_trackings (
  order_id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  staff_location JSONB NULL,
  driver_location JSONB NULL,
  user_location JSONB NULL,
  eta JSONB NULL,
  is_driver_stationary BOOLEAN NOT NULL DEFAULT FALSE,
  last_update TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_order_trackings_status_last_update ON order_trackings(status, last_update)`,
		`
CREATE TABLE IF NOT EXISTS order_tracking_timeline (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES order_trackings(order_id) ON DELETE CASCADE,
  seq INT NOT NULL,
  stage TEXT NOT NULL,
  time TIMESTAMPTZ NOT NULL,
  message TEXT NULL,
  UNIQUE (order_id, seq)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
