package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/broker/messages"
	"github.com/BearBump/LiveTrack/internal/cache/rediscache"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/BearBump/LiveTrack/internal/storage/memtracking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu     sync.Mutex
	events []messages.TrackingEvent
	keys   []string
	err    error
	calls  int
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	ev, err := messages.Decode(value)
	if err != nil {
		return err
	}
	p.events = append(p.events, ev)
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *fakeProducer) ofKind(kind realtime.EventKind) []messages.TrackingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []messages.TrackingEvent
	for _, ev := range p.events {
		if ev.Kind == string(kind) {
			out = append(out, ev)
		}
	}
	return out
}

type pollerEnv struct {
	store     *memtracking.Storage
	producer  *fakeProducer
	snapshots *rediscache.SnapshotStore
	poller    *Poller
	now       time.Time
}

func newPollerEnv(t *testing.T) *pollerEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &pollerEnv{
		store:     memtracking.New(),
		producer:  &fakeProducer{},
		snapshots: rediscache.NewSnapshotStore(client, 10*time.Minute),
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	e.poller = New(e.store, e.producer, e.snapshots, "livetrack.events", "worker-1").
		WithSettings(time.Hour, 50, 4).
		WithPlanner(PlannerConfig{StationaryWindow: 3 * time.Minute, StationaryRadiusMeters: 30}).
		WithClock(func() time.Time { return e.now })
	return e
}

func (e *pollerEnv) seed(t *testing.T, orderID string, status models.Status, driver, user *models.Location) {
	t.Helper()
	rec := models.NewSeedRecord(&models.Order{ID: orderID, Status: status, CreatedAt: e.now}, e.now)
	rec.DriverLocation = driver
	rec.UserLocation = user
	_, err := e.store.CreateTracking(context.Background(), rec)
	require.NoError(t, err)
}

func TestPoller_RefreshesETAAndPublishes(t *testing.T) {
	e := newPollerEnv(t)
	ctx := context.Background()
	e.seed(t, "ord-1", models.StatusOnTheWay,
		&models.Location{Lat: 0, Lng: 0, UpdatedAt: e.now},
		&models.Location{Lat: 0, Lng: 1, UpdatedAt: e.now})
	e.seed(t, "ord-2", models.StatusPreparing,
		&models.Location{Lat: 0, Lng: 0, UpdatedAt: e.now},
		&models.Location{Lat: 0, Lng: 1, UpdatedAt: e.now})

	e.poller.runOnce(ctx)

	rec, err := e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, rec.ETA)
	require.Equal(t, int64(167*60), rec.ETA.DurationSeconds)
	require.Equal(t, e.now.Add(167*time.Minute), rec.ETA.WindowStart)

	rec, err = e.store.GetTracking(ctx, "ord-2")
	require.NoError(t, err)
	require.Nil(t, rec.ETA)

	evs := e.producer.ofKind(realtime.EventETAUpdate)
	require.Len(t, evs, 1)
	require.Equal(t, "ord-1", evs[0].OrderID)
	require.Equal(t, "worker-1", evs[0].Origin)
	require.Equal(t, []string{"ord-1"}, e.producer.keys)

	st := e.poller.Stats()
	require.Equal(t, int64(1), st.TotalScanned)
	require.Equal(t, int64(1), st.TotalETAUpdates)
	require.Equal(t, int64(0), st.TotalErrors)
	require.NotNil(t, st.LastCycleAt)
}

func TestPoller_NoUserLocation_OnlyStationary(t *testing.T) {
	e := newPollerEnv(t)
	ctx := context.Background()
	e.seed(t, "ord-1", models.StatusArriving, &models.Location{Lat: 25.2, Lng: 55.3, UpdatedAt: e.now}, nil)

	e.poller.runOnce(ctx)

	rec, err := e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.Nil(t, rec.ETA)
	require.Empty(t, e.producer.events)

	anchor, err := e.snapshots.GetAnchor(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, anchor)
	require.Equal(t, e.now, anchor.Since)
}

func TestPoller_StationaryDetection(t *testing.T) {
	e := newPollerEnv(t)
	ctx := context.Background()
	e.seed(t, "ord-1", models.StatusPickedByDriver, &models.Location{Lat: 25.2, Lng: 55.3, UpdatedAt: e.now}, nil)

	e.poller.runOnce(ctx)
	rec, err := e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.False(t, rec.IsDriverStationary)

	// водитель стоит на месте дольше окна
	e.now = e.now.Add(4 * time.Minute)
	e.poller.runOnce(ctx)

	rec, err = e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.True(t, rec.IsDriverStationary)
	evs := e.producer.ofKind(realtime.EventDriverStationary)
	require.Len(t, evs, 1)
	require.JSONEq(t, `{"orderId":"ord-1","isDriverStationary":true,"timestamp":"2025-03-01T12:04:00Z"}`, string(evs[0].Payload))

	// повторный цикл без движения ничего не публикует
	e.now = e.now.Add(time.Minute)
	e.poller.runOnce(ctx)
	require.Len(t, e.producer.ofKind(realtime.EventDriverStationary), 1)

	// поехал: ~111 м
	_, err = e.store.UpdateTracking(ctx, "ord-1", func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.WithDriverLocation(models.Location{Lat: 25.201, Lng: 55.3}, e.now)
	})
	require.NoError(t, err)
	e.now = e.now.Add(time.Minute)
	e.poller.runOnce(ctx)

	rec, err = e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.False(t, rec.IsDriverStationary)
	require.Len(t, e.producer.ofKind(realtime.EventDriverStationary), 2)

	anchor, err := e.snapshots.GetAnchor(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, 25.201, anchor.Lat)
	require.Equal(t, int64(2), e.poller.Stats().TotalStationary)
}

func TestPoller_StatusChangedAfterListing(t *testing.T) {
	e := newPollerEnv(t)
	ctx := context.Background()
	loc := &models.Location{Lat: 0, Lng: 0, UpdatedAt: e.now}
	e.seed(t, "ord-1", models.StatusOnTheWay, loc, &models.Location{Lat: 0, Lng: 1})

	listed, err := e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.NoError(t, e.snapshots.SetAnchor(ctx, "ord-1", rediscache.AnchorSnapshot{Lat: 0, Lng: 0, Since: e.now}))

	_, err = e.store.UpdateTracking(ctx, "ord-1", func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.Transition(models.StatusDelivered, nil, e.now)
	})
	require.NoError(t, err)

	require.NoError(t, e.poller.processOne(ctx, listed))

	rec, err := e.store.GetTracking(ctx, "ord-1")
	require.NoError(t, err)
	require.Nil(t, rec.ETA)
	require.Empty(t, e.producer.events)

	anchor, err := e.snapshots.GetAnchor(ctx, "ord-1")
	require.NoError(t, err)
	require.Nil(t, anchor)
}

func TestPoller_PublishFailureCountsError(t *testing.T) {
	e := newPollerEnv(t)
	e.producer.err = errors.New("kafka down")
	e.poller.publishRetries = 2
	e.seed(t, "ord-1", models.StatusOnTheWay,
		&models.Location{Lat: 0, Lng: 0, UpdatedAt: e.now},
		&models.Location{Lat: 0, Lng: 0.1})

	e.poller.runOnce(context.Background())

	st := e.poller.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "kafka down", st.LastError)
	require.Equal(t, 2, e.producer.calls)
	require.Equal(t, int64(0), st.InFlight)
}

func TestPoller_NoProducerOrSnapshots(t *testing.T) {
	store := memtracking.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := models.NewSeedRecord(&models.Order{ID: "ord-1", Status: models.StatusOnTheWay}, now)
	rec.DriverLocation = &models.Location{Lat: 0, Lng: 0}
	rec.UserLocation = &models.Location{Lat: 0, Lng: 0}
	_, err := store.CreateTracking(context.Background(), rec)
	require.NoError(t, err)

	p := New(store, nil, nil, "", "worker-1").WithClock(func() time.Time { return now })
	p.runOnce(context.Background())

	got, err := store.GetTracking(context.Background(), "ord-1")
	require.NoError(t, err)
	require.NotNil(t, got.ETA)
	require.Equal(t, now, got.ETA.WindowStart)
	require.Equal(t, int64(0), p.Stats().TotalErrors)
}
