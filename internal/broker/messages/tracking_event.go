package messages

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// TrackingEvent is the record on the tracking events topic. One message per persisted mutation;
// Payload is the same JSON body that local subscribers receive for Kind.
type TrackingEvent struct {
	OrderID    string          `json:"order_id"`
	Kind       string          `json:"kind"`
	Origin     string          `json:"origin"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func (e TrackingEvent) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tracking event")
	}
	return b, nil
}

// Decode парсит сообщение и отбрасывает записи без order_id или kind.
func Decode(b []byte) (TrackingEvent, error) {
	var e TrackingEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return TrackingEvent{}, errors.Wrap(err, "unmarshal tracking event")
	}
	if e.OrderID == "" {
		return TrackingEvent{}, errors.New("order_id is required")
	}
	if e.Kind == "" {
		return TrackingEvent{}, errors.New("kind is required")
	}
	return e, nil
}
