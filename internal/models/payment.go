package models

import "time"

// Transaction is the flattened, display-ready view of a booking joined with
// its schedule and bus.
type Transaction struct {
	ID                   string        `json:"id"`
	BookingReference     string        `json:"booking_reference"`
	ScheduleID           string        `json:"schedule_id"`
	CustomerName         string        `json:"customer_name"`
	CustomerEmail        string        `json:"customer_email"`
	BusID                string        `json:"bus_id"`
	BusPlate             string        `json:"bus_plate"`
	BusType              string        `json:"bus_type"`
	Origin               string        `json:"origin"`
	Destination          string        `json:"destination"`
	Route                string        `json:"route"`
	DepartureTime        string        `json:"departure_time"`
	Amount               float64       `json:"amount"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	BookingStatus        BookingStatus `json:"booking_status"`
	PaymentMethod        string        `json:"payment_method"`
	TransactionReference string        `json:"transaction_reference"`
	Seats                []string      `json:"seats"`
	BookingDate          time.Time     `json:"booking_date"`
}

// BusPaymentSummary is a per-bus revenue rollup.
type BusPaymentSummary struct {
	BusID            string     `json:"bus_id"`
	LicensePlate     string     `json:"license_plate"`
	BusType          string     `json:"bus_type"`
	Status           BusStatus  `json:"status"`
	TotalRevenue     float64    `json:"total_revenue"`
	PaidRevenue      float64    `json:"paid_revenue"`
	PendingRevenue   float64    `json:"pending_revenue"`
	TransactionCount int        `json:"transaction_count"`
	PaidCount        int        `json:"paid_count"`
	PendingCount     int        `json:"pending_count"`
	LastTransaction  *time.Time `json:"last_transaction,omitempty"`
}
