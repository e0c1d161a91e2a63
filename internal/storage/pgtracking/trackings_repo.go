package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Storage) GetTracking(ctx context.Context, orderID string) (*models.TrackingRecord, error) {
	return getTracking(ctx, s.db, orderID, false)
}

// CreateTracking вставляет запись, если её ещё нет, и возвращает то, что лежит в БД.
// При гонке двух создателей побеждает первый, второй получает его запись.
func (s *Storage) CreateTracking(ctx context.Context, rec *models.TrackingRecord) (*models.TrackingRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	args, err := recordArgs(rec)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO order_trackings (`+trackingColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (order_id) DO NOTHING
`, append(append([]any{rec.OrderID}, args...), rec.CreatedAt.UTC())...)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracking")
	}

	if tag.RowsAffected() == 1 {
		if err := insertTimeline(ctx, tx, rec.OrderID, rec.Timeline, 0); err != nil {
			return nil, err
		}
	}

	out, err := getTracking(ctx, tx, rec.OrderID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return out, nil
}

// UpdateTracking - read-modify-write под блокировкой строки.
// Если fn вернула ошибку, транзакция откатывается и ничего не меняется.
// Таймлайн только дописывается: fn обязана вернуть текущие записи префиксом.
func (s *Storage) UpdateTracking(
	ctx context.Context,
	orderID string,
	fn func(cur *models.TrackingRecord) (*models.TrackingRecord, error),
) (*models.TrackingRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := getTracking(ctx, tx, orderID, true)
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

	args, err := recordArgs(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
UPDATE order_trackings
SET
  status = $2,
  staff_location = $3,
  driver_location = $4,
  user_location = $5,
  eta = $6,
  is_driver_stationary = $7,
  last_update = $8
WHERE order_id = $1
`, append([]any{orderID}, args...)...)
	if err != nil {
		return nil, errors.Wrap(err, "update tracking")
	}

	if err := insertTimeline(ctx, tx, orderID, next.Timeline[len(cur.Timeline):], len(cur.Timeline)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return next, nil
}

// SetDriverStationary меняет только флаг, не трогая остальные поля записи.
func (s *Storage) SetDriverStationary(ctx context.Context, orderID string, stationary bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE order_trackings
SET is_driver_stationary = $2, last_update = $3
WHERE order_id = $1
`, orderID, stationary, at.UTC())
	if err != nil {
		return errors.Wrap(err, "update stationary")
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.KindNotFound, "tracking for order %s not found", orderID)
	}
	return nil
}

// ListActiveTrackings отдаёт заказы в доставке, давно не обновлявшиеся первыми.
func (s *Storage) ListActiveTrackings(ctx context.Context, limit int) ([]*models.TrackingRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	active := models.ActiveStatuses()
	statuses := make([]string, 0, len(active))
	for _, st := range active {
		statuses = append(statuses, string(st))
	}

	rows, err := s.db.Query(ctx, `
SELECT `+trackingColumns+`
FROM order_trackings
WHERE status = ANY($1)
ORDER BY last_update ASC
LIMIT $2
`, statuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select active trackings")
	}

	var out []*models.TrackingRecord
	var ids []string
	byID := make(map[string]*models.TrackingRecord)
	for rows.Next() {
		var r row
		if err := rows.Scan(r.scanTargets()...); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan tracking")
		}
		rec, err := r.toRecord()
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, rec)
		byID[rec.OrderID] = rec
		ids = append(ids, rec.OrderID)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	if len(ids) == 0 {
		return out, nil
	}

	trows, err := s.db.Query(ctx, `
SELECT order_id, stage, time, message
FROM order_tracking_timeline
WHERE order_id = ANY($1)
ORDER BY order_id, seq
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select timelines")
	}
	defer trows.Close()
	for trows.Next() {
		var (
			orderID string
			e       models.TimelineEntry
			stage   string
		)
		if err := trows.Scan(&orderID, &stage, &e.Time, &e.Message); err != nil {
			return nil, errors.Wrap(err, "scan timeline")
		}
		e.Stage = models.Status(stage)
		e.Time = e.Time.UTC()
		if rec, ok := byID[orderID]; ok {
			rec.Timeline = append(rec.Timeline, e)
		}
	}
	if trows.Err() != nil {
		return nil, errors.Wrap(trows.Err(), "rows")
	}
	return out, nil
}

func getTracking(ctx context.Context, q querier, orderID string, forUpdate bool) (*models.TrackingRecord, error) {
	sql := `SELECT ` + trackingColumns + ` FROM order_trackings WHERE order_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var r row
	if err := q.QueryRow(ctx, sql, orderID).Scan(r.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.Newf(errs.KindNotFound, "tracking for order %s not found", orderID)
		}
		return nil, errors.Wrap(err, "select tracking")
	}
	rec, err := r.toRecord()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
SELECT stage, time, message
FROM order_tracking_timeline
WHERE order_id = $1
ORDER BY seq
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select timeline")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e     models.TimelineEntry
			stage string
		)
		if err := rows.Scan(&stage, &e.Time, &e.Message); err != nil {
			return nil, errors.Wrap(err, "scan timeline")
		}
		e.Stage = models.Status(stage)
		e.Time = e.Time.UTC()
		rec.Timeline = append(rec.Timeline, e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return rec, nil
}

func insertTimeline(ctx context.Context, tx pgx.Tx, orderID string, entries []models.TimelineEntry, startSeq int) error {
	for i, e := range entries {
		_, err := tx.Exec(ctx, `
INSERT INTO order_tracking_timeline (order_id, seq, stage, time, message)
VALUES ($1,$2,$3,$4,$5)
`, orderID, startSeq+i, string(e.Stage), e.Time.UTC(), e.Message)
		if err != nil {
			return errors.Wrap(err, "insert timeline entry")
		}
	}
	return nil
}
