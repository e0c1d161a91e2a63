package trackings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/broker/messages"
	cachemocks "github.com/BearBump/LiveTrack/internal/cache/mocks"
	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/integrations/orders/fake"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	trackingsmocks "github.com/BearBump/LiveTrack/internal/services/trackings/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo        *trackingsmocks.MockRepository
	cache       *cachemocks.MockBytesCache
	broadcaster *trackingsmocks.MockBroadcaster
	producer    *trackingsmocks.MockEventProducer
	now         time.Time
	svc         *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &trackingsmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.broadcaster = &trackingsmocks.MockBroadcaster{}
	s.producer = &trackingsmocks.MockEventProducer{}
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	orders := fake.New(&models.Order{ID: "ord-1", CustomerID: "cust-1", Status: models.StatusPreparing, CreatedAt: s.now})
	s.svc = New(s.repo, orders, s.broadcaster, Options{
		Cache:      s.cache,
		CacheTTL:   10 * time.Minute,
		Producer:   s.producer,
		Topic:      "livetrack.events",
		InstanceID: "api-1",
		Now:        func() time.Time { return s.now },
	})
}

func (s *ServiceSuite) record() *models.TrackingRecord {
	return models.NewSeedRecord(&models.Order{ID: "ord-1", Status: models.StatusPreparing, CreatedAt: s.now}, s.now)
}

// applyFn makes the UpdateTracking mock run the mutation against base.
func applyFn(base *models.TrackingRecord) func(context.Context, string, func(*models.TrackingRecord) (*models.TrackingRecord, error)) *models.TrackingRecord {
	return func(_ context.Context, _ string, fn func(*models.TrackingRecord) (*models.TrackingRecord, error)) *models.TrackingRecord {
		out, _ := fn(base)
		return out
	}
}

func (s *ServiceSuite) TestGetTracking_CacheHit_NoRepo() {
	b, err := json.Marshal(s.record())
	s.Require().NoError(err)
	s.cache.On("Get", mock.Anything, "livetrack:tracking:ord-1:current").Return(b, true, nil).Once()

	view, err := s.svc.GetTracking(context.Background(), customer, "ord-1")
	s.Require().NoError(err)
	s.Require().Equal("ord-1", view.Record.OrderID)
	s.Require().Equal(models.StatusPreparing, view.Record.Status)

	// БД не трогаем
	s.repo.AssertNotCalled(s.T(), "GetTracking", mock.Anything, mock.Anything)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetTracking_CacheMiss_LoadsAndSets() {
	s.cache.On("Get", mock.Anything, "livetrack:tracking:ord-1:current").Return([]byte(nil), false, errors.New("redis down")).Once()
	s.repo.On("GetTracking", mock.Anything, "ord-1").Return(s.record(), nil).Once()
	// ошибки Set игнорируются
	s.cache.On("Set", mock.Anything, "livetrack:tracking:ord-1:current", mock.Anything, 10*time.Minute).
		Return(errors.New("set failed")).
		Once()

	view, err := s.svc.GetTracking(context.Background(), customer, "ord-1")
	s.Require().NoError(err)
	s.Require().Len(view.Record.Timeline, 1)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetTracking_RepoError_IsStoreFailure() {
	s.cache.On("Get", mock.Anything, mock.Anything).Return([]byte(nil), false, nil).Once()
	s.repo.On("GetTracking", mock.Anything, "ord-1").Return(nil, errors.New("conn reset")).Once()

	_, err := s.svc.GetTracking(context.Background(), staff, "ord-1")
	s.Require().Error(err)
	s.Require().Equal(errs.KindStoreFailure, errs.KindOf(err))
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetTracking_CacheDisabledWithZeroTTL() {
	svc := New(s.repo, fake.New(&models.Order{ID: "ord-1", CustomerID: "cust-1"}), s.broadcaster, Options{Cache: s.cache})
	s.repo.On("GetTracking", mock.Anything, "ord-1").Return(s.record(), nil).Once()

	_, err := svc.GetTracking(context.Background(), customer, "ord-1")
	s.Require().NoError(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateStatus_StoreFailure_NoEvents() {
	s.repo.On("UpdateTracking", mock.Anything, "ord-1", mock.Anything).Return(nil, errors.New("tx aborted")).Once()

	_, err := s.svc.UpdateStatus(context.Background(), staff, "ord-1", "on_the_way", nil)
	s.Require().Error(err)
	s.Require().Equal(errs.KindStoreFailure, errs.KindOf(err))

	s.broadcaster.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.producer.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestUpdateStatus_PublishesKafkaEvent() {
	s.repo.On("UpdateTracking", mock.Anything, "ord-1", mock.Anything).Return(applyFn(s.record()), nil).Once()
	s.cache.On("Set", mock.Anything, "livetrack:tracking:ord-1:current", mock.Anything, 10*time.Minute).Return(nil).Once()
	s.broadcaster.On("Publish", mock.Anything, "ord-1", realtime.EventOrderStatus, mock.AnythingOfType("realtime.OrderStatusPayload")).
		Return(2, nil).
		Once()
	s.producer.On("Publish", mock.Anything, "livetrack.events", []byte("ord-1"), mock.MatchedBy(func(v []byte) bool {
		ev, err := messages.Decode(v)
		if err != nil {
			return false
		}
		var p realtime.OrderStatusPayload
		if json.Unmarshal(ev.Payload, &p) != nil {
			return false
		}
		return ev.OrderID == "ord-1" && ev.Kind == "order_status" && ev.Origin == "api-1" && p.Status == models.StatusOnTheWay
	})).Return(nil).Once()

	rec, err := s.svc.UpdateStatus(context.Background(), staff, "ord-1", "on_the_way", nil)
	s.Require().NoError(err)
	s.Require().Equal(models.StatusOnTheWay, rec.Status)
	s.Require().Len(rec.Timeline, 2)

	s.repo.AssertExpectations(s.T())
	s.broadcaster.AssertExpectations(s.T())
	s.producer.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestPushDriverLocation_ProducerFailureIgnored() {
	s.repo.On("UpdateTracking", mock.Anything, "ord-1", mock.Anything).Return(applyFn(s.record()), nil).Once()
	s.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.broadcaster.On("Publish", mock.Anything, "ord-1", realtime.EventDriverLocation, mock.Anything).
		Return(0, errors.New("closed")).
		Once()
	s.producer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("kafka down")).
		Once()

	lat, lng := 25.0, 55.0
	rec, err := s.svc.PushDriverLocation(context.Background(), driver, DriverLocationInput{OrderID: "ord-1", Lat: &lat, Lng: &lng})
	s.Require().NoError(err)
	s.Require().Equal(25.0, rec.DriverLocation.Lat)
	s.producer.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestPushDriverLocation_NotFoundPassesThrough() {
	s.repo.On("UpdateTracking", mock.Anything, "ord-1", mock.Anything).
		Return(nil, errs.New(errs.KindNotFound, "tracking not found")).
		Once()

	lat, lng := 25.0, 55.0
	_, err := s.svc.PushDriverLocation(context.Background(), driver, DriverLocationInput{OrderID: "ord-1", Lat: &lat, Lng: &lng})
	s.Require().True(errs.Is(err, errs.KindNotFound))
	s.repo.AssertNotCalled(s.T(), "CreateTracking", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCalculateETA_StoreFailure() {
	s.repo.On("UpdateTracking", mock.Anything, "ord-1", mock.Anything).Return(nil, errors.New("disk full")).Once()

	_, persisted, err := s.svc.CalculateETA(context.Background(), customer, ETAInput{
		OrderID:        "ord-1",
		DriverLocation: &models.Coordinate{Lat: 25.2, Lng: 55.2},
		UserLocation:   &models.Coordinate{Lat: 25.3, Lng: 55.3},
	})
	s.Require().Error(err)
	s.Require().False(persisted)
	s.Require().Equal(errs.KindStoreFailure, errs.KindOf(err))
	s.broadcaster.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestCalculateETA_WithoutOrderID_NoStore() {
	got, persisted, err := s.svc.CalculateETA(context.Background(), customer, ETAInput{
		DriverLocation: &models.Coordinate{Lat: 0, Lng: 0},
		UserLocation:   &models.Coordinate{Lat: 0, Lng: 1},
	})
	s.Require().NoError(err)
	s.Require().False(persisted)
	// 111 км при 40 км/ч = 167 минут
	s.Require().Equal(int64(167*60), got.DurationSeconds)
	s.Require().Equal(s.now.Add(167*time.Minute), got.WindowStart)
	s.repo.AssertNotCalled(s.T(), "UpdateTracking", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApplyRemoteEvent_InvalidatesCacheAndRelays() {
	payload := json.RawMessage(`{"orderId":"ord-1","status":"arriving"}`)
	s.cache.On("Delete", mock.Anything, "livetrack:tracking:ord-1:current").Return(nil).Once()
	s.broadcaster.On("Publish", mock.Anything, "ord-1", realtime.EventOrderStatus, payload).Return(1, nil).Once()

	err := s.svc.ApplyRemoteEvent(context.Background(), messages.TrackingEvent{
		OrderID: "ord-1",
		Kind:    "order_status",
		Origin:  "worker-1",
		Payload: payload,
	})
	s.Require().NoError(err)
	s.cache.AssertExpectations(s.T())
	s.broadcaster.AssertExpectations(s.T())
	s.producer.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
