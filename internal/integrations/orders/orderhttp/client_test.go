package orderhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_GetOrder_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/internal/orders/ord-1", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "ord-1",
  "customerId": "u-1",
  "status": "preparing",
  "createdAt": "2025-03-01T10:00:00Z",
  "driver": {"id":"d-1","name":"Sam","phone":"+971","vehicleModel":"Civic","vehiclePlate":"A 123","photoUrl":"http://p","rating":4.8},
  "staff": {"id":"s-1","name":"Kim","phone":"+972","photoUrl":"http://s"},
  "deliveryAddress": {"label":"Work","address":"Tower 1","buildingName":"T1","streetName":"SZR","area":"DIFC","city":"Dubai","gps":{"lat":25.2,"lng":55.27}}
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	o, err := c.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)

	require.Equal(t, "ord-1", o.ID)
	require.Equal(t, "u-1", o.CustomerID)
	require.Equal(t, models.StatusPreparing, o.Status)
	require.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), o.CreatedAt)

	require.NotNil(t, o.Driver)
	require.Equal(t, "Civic", o.Driver.VehicleModel)
	require.Equal(t, 4.8, *o.Driver.Rating)
	require.NotNil(t, o.Staff)
	require.Equal(t, "Kim", o.Staff.Name)

	a := o.DeliveryAddress
	require.NotNil(t, a)
	require.Equal(t, "Tower 1", a.FullAddress)
	require.Equal(t, "T1", a.Building)
	require.Equal(t, "SZR", a.Street)
	require.Equal(t, &models.Coordinate{Lat: 25.2, Lng: 55.27}, a.Location)
}

func TestClient_GetOrder_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetOrder(context.Background(), "nope")
	require.True(t, errs.Is(err, errs.KindNotFound))
}

func TestClient_GetOrder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetOrder(context.Background(), "ord-1")
	require.Error(t, err)
	require.Equal(t, errs.KindInternal, errs.KindOf(err))
}

func TestClient_GetOrder_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").GetOrder(context.Background(), "ord-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode")
}

func TestClient_UpdateOrderStatus(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/internal/orders/ord-1/status", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Empty(t, r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "").UpdateOrderStatus(context.Background(), "ord-1", models.StatusOnTheWay))
	require.Equal(t, "on_the_way", got["status"])
}

func TestClient_UpdateOrderStatus_Errors(t *testing.T) {
	code := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	err := c.UpdateOrderStatus(context.Background(), "ord-1", models.StatusDelivered)
	require.True(t, errs.Is(err, errs.KindNotFound))

	code = http.StatusInternalServerError
	err = c.UpdateOrderStatus(context.Background(), "ord-1", models.StatusDelivered)
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 500")
}

func TestNew_DefaultBaseURL(t *testing.T) {
	c := New("", "")
	require.Equal(t, "http://localhost:8081", c.baseURL)

	u, err := c.orderURL("a/b", "/status")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8081/internal/orders/a%2Fb/status", u)
}
