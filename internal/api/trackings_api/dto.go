package trackings_api

import (
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
)

type coordinateDTO struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// coordinateRequest: pointers so that a missing lat/lng is not read as zero.
type coordinateRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (c *coordinateRequest) toModel() *models.Coordinate {
	return &models.Coordinate{Lat: *c.Lat, Lng: *c.Lng}
}

type updateStatusRequest struct {
	Status  string  `json:"status"`
	Message *string `json:"message,omitempty"`
}

type driverLocationRequest struct {
	OrderID string   `json:"orderId" validate:"required"`
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Speed   *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
}

type calculateETARequest struct {
	OrderID        string             `json:"orderId"`
	DriverLocation *coordinateRequest `json:"driverLocation" validate:"required"`
	UserLocation   *coordinateRequest `json:"userLocation" validate:"required"`
}

type locationDTO struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

type etaDTO struct {
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
	DistanceMeters  int64     `json:"distanceMeters"`
	DurationSeconds int64     `json:"durationSeconds"`
}

type timelineEntryDTO struct {
	Stage   models.Status `json:"stage"`
	Time    time.Time     `json:"time"`
	Message *string       `json:"message,omitempty"`
}

type driverDTO struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	VehicleModel string   `json:"vehicleModel"`
	VehiclePlate string   `json:"vehiclePlate"`
	PhotoURL     string   `json:"photoUrl"`
	Rating       *float64 `json:"rating"`
}

type staffDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	PhotoURL string `json:"photoUrl"`
}

type addressDTO struct {
	ID                   string         `json:"id"`
	Label                string         `json:"label"`
	FullAddress          string         `json:"fullAddress,omitempty"`
	Building             string         `json:"building,omitempty"`
	Street               string         `json:"street,omitempty"`
	Area                 string         `json:"area,omitempty"`
	City                 string         `json:"city,omitempty"`
	DeliveryInstructions string         `json:"deliveryInstructions,omitempty"`
	Location             *coordinateDTO `json:"location"`
}

type trackingResponse struct {
	OrderID            string             `json:"orderId"`
	Status             models.Status      `json:"status"`
	ETA                *etaDTO            `json:"eta"`
	StaffLocation      *locationDTO       `json:"staffLocation"`
	DriverLocation     *locationDTO       `json:"driverLocation"`
	UserLocation       *locationDTO       `json:"userLocation"`
	Driver             *driverDTO         `json:"driver"`
	Staff              *staffDTO          `json:"staff"`
	DeliveryAddress    addressDTO         `json:"deliveryAddress"`
	Timeline           []timelineEntryDTO `json:"timeline"`
	IsDriverStationary bool               `json:"isDriverStationary"`
	LastUpdate         time.Time          `json:"lastUpdate"`
}

// recordDTO is the bare tracking record returned by mutations.
type recordDTO struct {
	OrderID            string             `json:"orderId"`
	Status             models.Status      `json:"status"`
	Timeline           []timelineEntryDTO `json:"timeline"`
	StaffLocation      *locationDTO       `json:"staffLocation"`
	DriverLocation     *locationDTO       `json:"driverLocation"`
	UserLocation       *locationDTO       `json:"userLocation"`
	ETA                *etaDTO            `json:"eta"`
	IsDriverStationary bool               `json:"isDriverStationary"`
	LastUpdate         time.Time          `json:"lastUpdate"`
}

type updateStatusResponse struct {
	Success  bool      `json:"success"`
	Tracking recordDTO `json:"tracking"`
	Message  string    `json:"message"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type etaResponse struct {
	ETA       etaDTO `json:"eta"`
	Persisted bool   `json:"persisted"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toLocationDTO(l *models.Location) *locationDTO {
	if l == nil {
		return nil
	}
	return &locationDTO{Lat: l.Lat, Lng: l.Lng, UpdatedAt: l.UpdatedAt, Speed: l.Speed, Heading: l.Heading}
}

func toETADTO(e models.ETA) etaDTO {
	return etaDTO{
		WindowStart:     e.WindowStart,
		WindowEnd:       e.WindowEnd,
		DistanceMeters:  e.DistanceMeters,
		DurationSeconds: e.DurationSeconds,
	}
}

func toTimelineDTO(tl []models.TimelineEntry) []timelineEntryDTO {
	out := make([]timelineEntryDTO, 0, len(tl))
	for _, e := range tl {
		out = append(out, timelineEntryDTO{Stage: e.Stage, Time: e.Time, Message: e.Message})
	}
	return out
}

func toRecordDTO(r *models.TrackingRecord) recordDTO {
	out := recordDTO{
		OrderID:            r.OrderID,
		Status:             r.Status,
		Timeline:           toTimelineDTO(r.Timeline),
		StaffLocation:      toLocationDTO(r.StaffLocation),
		DriverLocation:     toLocationDTO(r.DriverLocation),
		UserLocation:       toLocationDTO(r.UserLocation),
		IsDriverStationary: r.IsDriverStationary,
		LastUpdate:         r.LastUpdate,
	}
	if r.ETA != nil {
		eta := toETADTO(*r.ETA)
		out.ETA = &eta
	}
	return out
}

func toTrackingResponse(v *models.TrackingView) trackingResponse {
	rec := toRecordDTO(v.Record)
	out := trackingResponse{
		OrderID:            rec.OrderID,
		Status:             rec.Status,
		ETA:                rec.ETA,
		StaffLocation:      rec.StaffLocation,
		DriverLocation:     rec.DriverLocation,
		UserLocation:       rec.UserLocation,
		DeliveryAddress:    toAddressDTO(v.Order),
		Timeline:           rec.Timeline,
		IsDriverStationary: rec.IsDriverStationary,
		LastUpdate:         rec.LastUpdate,
	}

	// без сохранённой точки клиента берём координаты адреса доставки
	if out.UserLocation == nil && out.DeliveryAddress.Location != nil {
		out.UserLocation = &locationDTO{Lat: out.DeliveryAddress.Location.Lat, Lng: out.DeliveryAddress.Location.Lng}
	}

	if d := v.Order.Driver; d != nil {
		out.Driver = &driverDTO{
			ID:           d.ID,
			Name:         d.Name,
			Phone:        d.Phone,
			VehicleModel: d.VehicleModel,
			VehiclePlate: d.VehiclePlate,
			PhotoURL:     d.PhotoURL,
			Rating:       d.Rating,
		}
	}
	if s := v.Order.Staff; s != nil {
		out.Staff = &staffDTO{ID: s.ID, Name: s.Name, Phone: s.Phone, PhotoURL: s.PhotoURL}
	}
	return out
}

func toAddressDTO(o *models.Order) addressDTO {
	out := addressDTO{ID: o.ID, Label: "Home"}
	a := o.DeliveryAddress
	if a == nil {
		return out
	}
	if a.ID != "" {
		out.ID = a.ID
	}
	if a.Label != "" {
		out.Label = a.Label
	}
	out.FullAddress = a.FullAddress
	out.Building = a.Building
	out.Street = a.Street
	out.Area = a.Area
	out.City = a.City
	out.DeliveryInstructions = a.DeliveryInstructions
	if a.Location != nil {
		out.Location = &coordinateDTO{Lat: a.Location.Lat, Lng: a.Location.Lng}
	}
	return out
}
