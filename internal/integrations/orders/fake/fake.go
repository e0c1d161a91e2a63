package fake

import (
	"context"
	"sync"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
)

// Client - заказы в памяти, для локального запуска без сервиса заказов и для тестов.
type Client struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func New(orders ...*models.Order) *Client {
	c := &Client{orders: make(map[string]*models.Order, len(orders))}
	for _, o := range orders {
		c.Put(o)
	}
	return c
}

func (c *Client) Put(o *models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ID] = copyOrder(o)
}

func (c *Client) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[orderID]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "order %s not found", orderID)
	}
	return copyOrder(o), nil
}

func (c *Client) UpdateOrderStatus(_ context.Context, orderID string, status models.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[orderID]
	if !ok {
		return errs.Newf(errs.KindNotFound, "order %s not found", orderID)
	}
	o.Status = status
	return nil
}

func copyOrder(o *models.Order) *models.Order {
	out := *o
	if o.Driver != nil {
		d := *o.Driver
		out.Driver = &d
	}
	if o.Staff != nil {
		s := *o.Staff
		out.Staff = &s
	}
	if o.DeliveryAddress != nil {
		a := *o.DeliveryAddress
		if a.Location != nil {
			l := *a.Location
			a.Location = &l
		}
		out.DeliveryAddress = &a
	}
	return &out
}
