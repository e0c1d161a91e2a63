package models

import (
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
)

// Status of an order along the delivery flow.
//
//	accepted_by_staff -> preparing -> ready_for_handover -> picked_by_driver
//	  -> on_the_way -> arriving -> delivered
//
// cancelled is reachable from any state. The order above is the expected path only:
// Transition records any recognized status, including moves backwards and moves out of
// delivered/cancelled, so staff can correct mistakes.
type Status string

const (
	StatusAcceptedByStaff  Status = "accepted_by_staff"
	StatusPreparing        Status = "preparing"
	StatusReadyForHandover Status = "ready_for_handover"
	StatusPickedByDriver   Status = "picked_by_driver"
	StatusOnTheWay         Status = "on_the_way"
	StatusArriving         Status = "arriving"
	StatusDelivered        Status = "delivered"
	StatusCancelled        Status = "cancelled"
)

var allStatuses = []Status{
	StatusAcceptedByStaff,
	StatusPreparing,
	StatusReadyForHandover,
	StatusPickedByDriver,
	StatusOnTheWay,
	StatusArriving,
	StatusDelivered,
	StatusCancelled,
}

// AllStatuses returns the recognized statuses in happy-path order, cancelled last.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errs.Newf(errs.KindInvalidStatus, "unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal is a display hint; terminal statuses are not enforced by Transition.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// IsActive - заказ у курьера, имеет смысл пересчитывать ETA.
func (s Status) IsActive() bool {
	return s == StatusPickedByDriver || s == StatusOnTheWay || s == StatusArriving
}

// ActiveStatuses lists the statuses for which IsActive is true.
func ActiveStatuses() []Status {
	return []Status{StatusPickedByDriver, StatusOnTheWay, StatusArriving}
}

// Transition sets the status and appends a timeline entry. The receiver is not modified.
// Entry times never go backwards: if the clock reads earlier than the last entry,
// the last entry's time is reused.
func (r *TrackingRecord) Transition(newStatus Status, message *string, now time.Time) (*TrackingRecord, error) {
	if !newStatus.Valid() {
		return nil, errs.Newf(errs.KindInvalidStatus, "unknown status %q", string(newStatus))
	}

	out := r.Clone()
	at := now
	if n := len(out.Timeline); n > 0 && out.Timeline[n-1].Time.After(at) {
		at = out.Timeline[n-1].Time
	}
	out.Timeline = append(out.Timeline, TimelineEntry{
		Stage:   newStatus,
		Time:    at,
		Message: cloneString(message),
	})
	out.Status = newStatus
	out.LastUpdate = now
	return out, nil
}
