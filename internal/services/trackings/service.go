package trackings

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/LiveTrack/internal/broker/messages"
	"github.com/BearBump/LiveTrack/internal/cache"
	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/integrations/orders"
	"github.com/BearBump/LiveTrack/internal/keylock"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/BearBump/LiveTrack/internal/services/eta"
)

type Repository interface {
	GetTracking(ctx context.Context, orderID string) (*models.TrackingRecord, error)
	CreateTracking(ctx context.Context, rec *models.TrackingRecord) (*models.TrackingRecord, error)
	UpdateTracking(
		ctx context.Context,
		orderID string,
		fn func(cur *models.TrackingRecord) (*models.TrackingRecord, error),
	) (*models.TrackingRecord, error)
}

// Broadcaster is the local fan-out to websocket rooms.
type Broadcaster interface {
	Publish(ctx context.Context, orderID string, kind realtime.EventKind, payload any) (int, error)
}

// EventProducer publishes to the cross-instance events topic.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Options struct {
	Cache    cache.BytesCache
	CacheTTL time.Duration

	Producer   EventProducer
	Topic      string
	InstanceID string

	Estimator *eta.Estimator
	Now       func() time.Time
}

type Service struct {
	repo        Repository
	orders      orders.Client
	broadcaster Broadcaster

	cache    cache.BytesCache
	cacheTTL time.Duration

	producer   EventProducer
	topic      string
	instanceID string

	estimator *eta.Estimator
	locks     *keylock.KeyLock
	now       func() time.Time
}

func New(repo Repository, orderClient orders.Client, broadcaster Broadcaster, opts Options) *Service {
	s := &Service{
		repo:        repo,
		orders:      orderClient,
		broadcaster: broadcaster,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		producer:    opts.Producer,
		topic:       opts.Topic,
		instanceID:  opts.InstanceID,
		estimator:   opts.Estimator,
		locks:       keylock.New(),
		now:         opts.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.estimator == nil {
		s.estimator = eta.NewWithClock(s.now)
	}
	return s
}

// GetTracking returns the order's tracking state, creating the record on first access.
func (s *Service) GetTracking(ctx context.Context, caller models.Identity, orderID string) (*models.TrackingView, error) {
	user, ok := caller.(models.Authenticated)
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "authentication required")
	}
	if orderID == "" {
		return nil, errs.New(errs.KindMissingData, "orderId is required")
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if user.UserID != order.CustomerID && !user.IsOperator() {
		return nil, errs.New(errs.KindForbidden, "access denied")
	}

	if rec := s.cacheGet(ctx, orderID); rec != nil {
		return &models.TrackingView{Order: order, Record: rec}, nil
	}

	// под блокировкой заказа, чтобы не положить в кэш состояние старее параллельной записи
	unlock := s.locks.Lock(orderID)
	defer unlock()

	rec, err := s.repo.GetTracking(ctx, orderID)
	if errs.Is(err, errs.KindNotFound) {
		rec, err = s.repo.CreateTracking(ctx, models.NewSeedRecord(order, s.now()))
		if err == nil {
			slog.Info("tracking seeded", "order_id", orderID, "status", string(rec.Status))
		}
	}
	if err != nil {
		return nil, storeFailure(err, "load tracking")
	}

	s.cacheSet(ctx, rec)
	return &models.TrackingView{Order: order, Record: rec}, nil
}

// UpdateStatus applies a status transition, seeding the record first when the order has none.
func (s *Service) UpdateStatus(ctx context.Context, caller models.Identity, orderID, status string, message *string) (*models.TrackingRecord, error) {
	user, ok := caller.(models.Authenticated)
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "authentication required")
	}
	if orderID == "" {
		return nil, errs.New(errs.KindMissingData, "orderId is required")
	}
	newStatus, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if !user.IsOperator() {
		return nil, errs.New(errs.KindForbidden, "only staff, drivers or admins can change order status")
	}
	if s.broadcaster == nil {
		return nil, errs.New(errs.KindUnavailable, "broadcaster is not initialized")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	transition := func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.Transition(newStatus, message, s.now())
	}
	rec, err := s.repo.UpdateTracking(ctx, orderID, transition)
	if errs.Is(err, errs.KindNotFound) {
		if err = s.seed(ctx, orderID); err == nil {
			rec, err = s.repo.UpdateTracking(ctx, orderID, transition)
		}
	}
	if err != nil {
		return nil, storeFailure(err, "update status")
	}

	s.cacheSet(ctx, rec)

	if s.orders != nil {
		if err := s.orders.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
			slog.Warn("order status sync failed", "order_id", orderID, "status", string(newStatus), "error", err)
		}
	}

	s.emit(ctx, orderID, realtime.EventOrderStatus, realtime.NewOrderStatusPayload(orderID, newStatus, message, s.now()))
	slog.Info("order status updated", "order_id", orderID, "status", string(newStatus), "user_id", user.UserID)
	return rec, nil
}

type DriverLocationInput struct {
	OrderID string
	Lat     *float64
	Lng     *float64
	Speed   *float64
	Heading *float64
}

// PushDriverLocation replaces the stored driver location. Unlike status updates it never creates a record.
func (s *Service) PushDriverLocation(ctx context.Context, caller models.Identity, in DriverLocationInput) (*models.TrackingRecord, error) {
	user, ok := caller.(models.Authenticated)
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "authentication required")
	}
	if in.OrderID == "" || in.Lat == nil || in.Lng == nil {
		return nil, errs.New(errs.KindMissingData, "orderId, lat and lng are required")
	}
	loc := models.Location{Lat: *in.Lat, Lng: *in.Lng, Speed: in.Speed, Heading: in.Heading}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if !user.IsOperator() {
		return nil, errs.New(errs.KindForbidden, "only drivers, staff or admins can push locations")
	}
	if s.broadcaster == nil {
		return nil, errs.New(errs.KindUnavailable, "broadcaster is not initialized")
	}

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	now := s.now()
	loc.UpdatedAt = now
	rec, err := s.repo.UpdateTracking(ctx, in.OrderID, func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.WithDriverLocation(loc, now)
	})
	if err != nil {
		return nil, storeFailure(err, "update driver location")
	}

	s.cacheSet(ctx, rec)
	s.emit(ctx, in.OrderID, realtime.EventDriverLocation, realtime.NewDriverLocationPayload(in.OrderID, loc, now))
	return rec, nil
}

type ETAInput struct {
	OrderID        string
	DriverLocation *models.Coordinate
	UserLocation   *models.Coordinate
}

// CalculateETA estimates the arrival window and stores it when the order has a record.
// persisted is false when there was no record to store it on.
func (s *Service) CalculateETA(ctx context.Context, caller models.Identity, in ETAInput) (estimate models.ETA, persisted bool, err error) {
	if _, ok := caller.(models.Authenticated); !ok {
		return models.ETA{}, false, errs.New(errs.KindUnauthorized, "authentication required")
	}
	if in.DriverLocation == nil || in.UserLocation == nil {
		return models.ETA{}, false, errs.New(errs.KindMissingData, "driverLocation and userLocation are required")
	}
	estimate, err = s.estimator.Estimate(*in.DriverLocation, *in.UserLocation)
	if err != nil {
		return models.ETA{}, false, err
	}
	if in.OrderID == "" {
		return estimate, false, nil
	}

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	rec, err := s.repo.UpdateTracking(ctx, in.OrderID, func(cur *models.TrackingRecord) (*models.TrackingRecord, error) {
		return cur.WithETA(estimate, s.now()), nil
	})
	if errs.Is(err, errs.KindNotFound) {
		return estimate, false, nil
	}
	if err != nil {
		return models.ETA{}, false, storeFailure(err, "store eta")
	}

	s.cacheSet(ctx, rec)
	s.emit(ctx, in.OrderID, realtime.EventETAUpdate, realtime.NewETAPayload(in.OrderID, estimate, s.now()))
	return estimate, true, nil
}

// ApplyRemoteEvent relays an event published by another instance (or the worker) to local rooms.
func (s *Service) ApplyRemoteEvent(ctx context.Context, ev messages.TrackingEvent) error {
	if ev.Origin != "" && ev.Origin == s.instanceID {
		return nil
	}

	// под блокировкой: иначе GetTracking, уже прочитавший старую строку, вернёт её в кэш
	unlock := s.locks.Lock(ev.OrderID)
	defer unlock()
	s.cacheDelete(ctx, ev.OrderID)
	if s.broadcaster == nil {
		return nil
	}
	if _, err := s.broadcaster.Publish(ctx, ev.OrderID, realtime.EventKind(ev.Kind), ev.Payload); err != nil {
		slog.Warn("remote event relay failed", "order_id", ev.OrderID, "kind", ev.Kind, "error", err)
	}
	return nil
}

func (s *Service) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if s.orders == nil {
		return nil, errs.New(errs.KindUnavailable, "order service is not configured")
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindUnavailable, err, "fetch order")
	}
	return order, nil
}

// seed must be called with the order lock held.
func (s *Service) seed(ctx context.Context, orderID string) error {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	rec, err := s.repo.CreateTracking(ctx, models.NewSeedRecord(order, s.now()))
	if err != nil {
		return err
	}
	slog.Info("tracking seeded", "order_id", orderID, "status", string(rec.Status))
	return nil
}

// emit runs after a successful write with the order lock held, so local subscribers
// see events of one order in write order.
func (s *Service) emit(ctx context.Context, orderID string, kind realtime.EventKind, payload any) {
	if _, err := s.broadcaster.Publish(ctx, orderID, kind, payload); err != nil {
		slog.Warn("broadcast failed", "order_id", orderID, "kind", string(kind), "error", err)
	}
	if s.producer == nil || s.topic == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "order_id", orderID, "kind", string(kind), "error", err)
		return
	}
	msg, err := messages.TrackingEvent{
		OrderID:    orderID,
		Kind:       string(kind),
		Origin:     s.instanceID,
		OccurredAt: s.now(),
		Payload:    body,
	}.Encode()
	if err != nil {
		slog.Error("encode tracking event", "order_id", orderID, "error", err)
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(orderID), msg); err != nil {
		slog.Warn("kafka publish failed", "order_id", orderID, "kind", string(kind), "error", err)
	}
}

func storeFailure(err error, msg string) error {
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}
	return errs.Wrap(errs.KindStoreFailure, err, msg)
}
