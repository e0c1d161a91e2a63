package models

import "time"

// Order is the subset of the external order record that tracking needs.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	CreatedAt  time.Time

	Driver          *DriverSummary
	Staff           *StaffSummary
	DeliveryAddress *Address
}

type DriverSummary struct {
	ID           string
	Name         string
	Phone        string
	VehicleModel string
	VehiclePlate string
	PhotoURL     string
	Rating       *float64
}

type StaffSummary struct {
	ID       string
	Name     string
	Phone    string
	PhotoURL string
}

type Address struct {
	ID                   string
	Label                string
	FullAddress          string
	Building             string
	Street               string
	Area                 string
	City                 string
	DeliveryInstructions string
	Location             *Coordinate
}

// TrackingView joins the tracking record with the order metadata for the read path.
type TrackingView struct {
	Order  *Order
	Record *TrackingRecord
}
