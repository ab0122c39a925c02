package models

import "time"

// BusStatus is the operational state of a bus.
type BusStatus string

const (
	BusActive      BusStatus = "active"
	BusInactive    BusStatus = "inactive"
	BusMaintenance BusStatus = "maintenance"
)

// Bus represents a fleet bus owned by a company.
type Bus struct {
	ID           string    `json:"id" bson:"_id"`
	CompanyID    string    `json:"company_id" bson:"company_id"`
	LicensePlate string    `json:"license_plate" bson:"license_plate"`
	BusType      string    `json:"bus_type" bson:"bus_type"` // "standard", "luxury", "minibus"
	Capacity     int       `json:"capacity" bson:"capacity"`
	Status       BusStatus `json:"status" bson:"status"`
}

// Schedule is a single dated departure of a bus along a route.
type Schedule struct {
	ID             string    `json:"id" bson:"_id"`
	CompanyID      string    `json:"company_id" bson:"company_id"`
	BusID          string    `json:"bus_id" bson:"bus_id"`
	RouteID        string    `json:"route_id,omitempty" bson:"route_id,omitempty"`
	Origin         string    `json:"origin" bson:"origin"`
	Destination    string    `json:"destination" bson:"destination"`
	DepartureTime  string    `json:"departure_time" bson:"departure_time"`
	ArrivalTime    string    `json:"arrival_time,omitempty" bson:"arrival_time,omitempty"`
	Price          float64   `json:"price" bson:"price"`
	AvailableSeats int       `json:"available_seats" bson:"available_seats"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}
