package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/LiveTrack/internal/broker/messages"
	"github.com/BearBump/LiveTrack/internal/cache/rediscache"
	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/BearBump/LiveTrack/internal/services/eta"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Repository interface {
	ListActiveTrackings(ctx context.Context, limit int) ([]*models.TrackingRecord, error)
	UpdateTracking(
		ctx context.Context,
		orderID string,
		fn func(cur *models.TrackingRecord) (*models.TrackingRecord, error),
	) (*models.TrackingRecord, error)
	SetDriverStationary(ctx context.Context, orderID string, stationary bool, at time.Time) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type SnapshotStore interface {
	GetAnchor(ctx context.Context, orderID string) (*rediscache.AnchorSnapshot, error)
	SetAnchor(ctx context.Context, orderID string, a rediscache.AnchorSnapshot) error
	Touch(ctx context.Context, orderID string) error
	DeleteAnchor(ctx context.Context, orderID string) error
}

var errNoLongerActive = errors.New("order is no longer active")

type Poller struct {
	repo      Repository
	producer  Producer
	snapshots SnapshotStore

	topic      string
	instanceID string

	planner   *Planner
	estimator *eta.Estimator
	now       func() time.Time

	pollInterval   time.Duration
	batchSize      int
	concurrency    int
	publishRetries int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalScanned        atomic.Int64
	totalETAUpdates     atomic.Int64
	totalStationaryFlip atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

// New builds a worker. snapshots may be nil, then stationary detection is off.
func New(repo Repository, producer Producer, snapshots SnapshotStore, topic, instanceID string) *Poller {
	p := &Poller{
		repo:              repo,
		producer:          producer,
		snapshots:         snapshots,
		topic:             topic,
		instanceID:        instanceID,
		planner:           NewPlanner(DefaultPlannerConfig()),
		now:               func() time.Time { return time.Now().UTC() },
		pollInterval:      5 * time.Second,
		batchSize:         100,
		concurrency:       10,
		publishRetries:    5,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
	p.estimator = eta.NewWithClock(func() time.Time { return p.now() })
	return p
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg)
	return p
}

func (p *Poller) WithClock(now func() time.Time) *Poller {
	if now != nil {
		p.now = now
	}
	return p
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastCycleAt     *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalScanned    int64      `json:"totalScanned"`
	TotalETAUpdates int64      `json:"totalEtaUpdates"`
	TotalStationary int64      `json:"totalStationaryChanges"`
	TotalErrors     int64      `json:"totalErrors"`
	InFlight        int64      `json:"inFlight"`
	LastError       string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalScanned:    p.totalScanned.Load(),
		TotalETAUpdates: p.totalETAUpdates.Load(),
		TotalStationary: p.totalStationaryFlip.Load(),
		TotalErrors:     p.totalErrors.Load(),
		InFlight:        p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	p.lastCycleUnixNano.Store(p.now().UnixNano())

	items, err := p.repo.ListActiveTrackings(ctx, p.batchSize)
	if err != nil {
		slog.Error("list active trackings", "error", err.Error())
		p.setLastError(err)
		return
	}
	p.totalScanned.Add(int64(len(items)))

	// ошибки по отдельным заказам не прерывают цикл, поэтому горутины всегда возвращают nil
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, rec := range items {
		p.inFlight.Add(1)
		g.Go(func() error {
			defer p.inFlight.Add(-1)
			if err := p.processOne(gctx, rec); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				slog.Error("process tracking", "order_id", rec.OrderID, "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func (p *Poller) processOne(ctx context.Context, rec *models.TrackingRecord) error {
	if rec.DriverLocation == nil {
		return nil
	}
	now := p.now()

	if p.planner.NeedsETA(rec) {
		if err := p.refreshETA(ctx, rec, now); err != nil {
			if errors.Is(err, errNoLongerActive) {
				return p.forgetAnchor(ctx, rec.OrderID)
			}
			return err
		}
	}

	if p.snapshots == nil {
		return nil
	}
	return p.detectStationary(ctx, rec, now)
}

func (p *Poller) refreshETA(ctx context.Context, rec *models.TrackingRecord, now time.Time) error {
	estimate, err := p.estimator.Estimate(rec.DriverLocation.Coordinate(), rec.UserLocation.Coordinate())
	if err != nil {
		return err
	}

	_, err = p.repo.UpdateTracking(ctx, rec.OrderID, func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		// статус мог смениться между выборкой и записью
		if !cur.Status.IsActive() {
			return nil, errNoLongerActive
		}
		return cur.WithETA(estimate, now), nil
	})
	if err != nil {
		if errors.Is(err, errNoLongerActive) || errs.Is(err, errs.KindNotFound) {
			return errNoLongerActive
		}
		return errors.Wrap(err, "store eta")
	}
	p.totalETAUpdates.Add(1)

	return p.publish(ctx, rec.OrderID, realtime.EventETAUpdate, realtime.NewETAPayload(rec.OrderID, estimate, now), now)
}

func (p *Poller) detectStationary(ctx context.Context, rec *models.TrackingRecord, now time.Time) error {
	anchor, err := p.snapshots.GetAnchor(ctx, rec.OrderID)
	if err != nil {
		return err
	}

	d := p.planner.Stationary(anchor, *rec.DriverLocation, now)
	if d.ResetAnchor {
		if err := p.snapshots.SetAnchor(ctx, rec.OrderID, d.Anchor); err != nil {
			return err
		}
	} else if err := p.snapshots.Touch(ctx, rec.OrderID); err != nil {
		slog.Warn("touch stationary anchor", "order_id", rec.OrderID, "error", err.Error())
	}

	if d.Stationary == rec.IsDriverStationary {
		return nil
	}
	if err := p.repo.SetDriverStationary(ctx, rec.OrderID, d.Stationary, now); err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return p.forgetAnchor(ctx, rec.OrderID)
		}
		return errors.Wrap(err, "store stationary flag")
	}
	p.totalStationaryFlip.Add(1)
	slog.Info("driver stationary changed", "order_id", rec.OrderID, "stationary", d.Stationary)

	return p.publish(ctx, rec.OrderID, realtime.EventDriverStationary, realtime.DriverStationaryPayload{
		OrderID:            rec.OrderID,
		IsDriverStationary: d.Stationary,
		Timestamp:          now,
	}, now)
}

func (p *Poller) forgetAnchor(ctx context.Context, orderID string) error {
	if p.snapshots == nil {
		return nil
	}
	return p.snapshots.DeleteAnchor(ctx, orderID)
}

func (p *Poller) publish(ctx context.Context, orderID string, kind realtime.EventKind, payload any, now time.Time) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	msg, err := messages.TrackingEvent{
		OrderID:    orderID,
		Kind:       string(kind),
		Origin:     p.instanceID,
		OccurredAt: now,
		Payload:    body,
	}.Encode()
	if err != nil {
		return err
	}

	// Kafka может быть не готова сразу после старта docker compose, поэтому несколько попыток.
	var pubErr error
	for i := 0; i < p.publishRetries; i++ {
		if pubErr = p.producer.Publish(ctx, p.topic, []byte(orderID), msg); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}

// PlannerConfig returns the effective stationary settings, defaults applied.
func (p *Poller) PlannerConfig() PlannerConfig {
	return p.planner.Config()
}
