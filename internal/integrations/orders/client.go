package orders

import (
	"context"

	"github.com/BearBump/LiveTrack/internal/models"
)

// Client is the external order-record collaborator.
// GetOrder returns an errs.KindNotFound error when the order does not exist.
type Client interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.Status) error
}
