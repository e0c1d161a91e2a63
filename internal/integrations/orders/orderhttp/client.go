package orderhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/pkg/errors"
)

// Client ходит во внутренний API сервиса заказов.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8081"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type coordBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type addressBody struct {
	ID                   string     `json:"id"`
	Label                string     `json:"label"`
	FullAddress          string     `json:"fullAddress"`
	Address              string     `json:"address"`
	Building             string     `json:"building"`
	BuildingName         string     `json:"buildingName"`
	Street               string     `json:"street"`
	StreetName           string     `json:"streetName"`
	Area                 string     `json:"area"`
	City                 string     `json:"city"`
	DeliveryInstructions string     `json:"deliveryInstructions"`
	Location             *coordBody `json:"location"`
	GPS                  *coordBody `json:"gps"`
}

type orderBody struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	Driver     *struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Phone        string   `json:"phone"`
		VehicleModel string   `json:"vehicleModel"`
		VehiclePlate string   `json:"vehiclePlate"`
		PhotoURL     string   `json:"photoUrl"`
		Rating       *float64 `json:"rating"`
	} `json:"driver"`
	Staff *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		PhotoURL string `json:"photoUrl"`
	} `json:"staff"`
	DeliveryAddress *addressBody `json:"deliveryAddress"`
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	u, err := c.orderURL(orderID, "")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.Newf(errs.KindNotFound, "order %s not found", orderID)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("orders api http %d", resp.StatusCode)
	}

	var body orderBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if body.ID == "" {
		body.ID = orderID
	}
	return body.toModel(), nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.Status) error {
	u, err := c.orderURL(orderID, "/status")
	if err != nil {
		return err
	}

	b, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.Newf(errs.KindNotFound, "order %s not found", orderID)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("orders api http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) orderURL(orderID, suffix string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = "/internal/orders/" + orderID + suffix
	u.RawPath = "/internal/orders/" + url.PathEscape(orderID) + suffix
	return u.String(), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (b orderBody) toModel() *models.Order {
	o := &models.Order{
		ID:         b.ID,
		CustomerID: b.CustomerID,
		Status:     models.Status(b.Status),
		CreatedAt:  b.CreatedAt.UTC(),
	}
	if b.Driver != nil {
		o.Driver = &models.DriverSummary{
			ID:           b.Driver.ID,
			Name:         b.Driver.Name,
			Phone:        b.Driver.Phone,
			VehicleModel: b.Driver.VehicleModel,
			VehiclePlate: b.Driver.VehiclePlate,
			PhotoURL:     b.Driver.PhotoURL,
			Rating:       b.Driver.Rating,
		}
	}
	if b.Staff != nil {
		o.Staff = &models.StaffSummary{
			ID:       b.Staff.ID,
			Name:     b.Staff.Name,
			Phone:    b.Staff.Phone,
			PhotoURL: b.Staff.PhotoURL,
		}
	}
	if a := b.DeliveryAddress; a != nil {
		// старые записи адресов хранят поля под другими именами
		addr := &models.Address{
			ID:                   a.ID,
			Label:                a.Label,
			FullAddress:          firstNonEmpty(a.FullAddress, a.Address),
			Building:             firstNonEmpty(a.Building, a.BuildingName),
			Street:               firstNonEmpty(a.Street, a.StreetName),
			Area:                 a.Area,
			City:                 a.City,
			DeliveryInstructions: a.DeliveryInstructions,
		}
		loc := a.Location
		if loc == nil {
			loc = a.GPS
		}
		if loc != nil {
			addr.Location = &models.Coordinate{Lat: loc.Lat, Lng: loc.Lng}
		}
		o.DeliveryAddress = addr
	}
	return o
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
