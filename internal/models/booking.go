package models

import (
	"time"
)

// PaymentStatus is the payment state of a booking.
type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no-show"
	BookingCompleted BookingStatus = "completed"
)

// NotAvailable is shown wherever a display field could not be resolved.
const NotAvailable = "N/A"

// Passenger is one traveller on a booking.
type Passenger struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
	Seat  string `json:"seat_number,omitempty" bson:"seat_number,omitempty"`
}

// Booking is a passenger reservation against a schedule. It is written by
// the booking and payment flows and only read here.
type Booking struct {
	ID                   string        `json:"id" bson:"_id"`
	BookingReference     string        `json:"booking_reference" bson:"booking_reference"`
	ScheduleID           string        `json:"schedule_id" bson:"schedule_id"`
	CompanyID            string        `json:"company_id" bson:"company_id"`
	Passengers           []Passenger   `json:"passengers" bson:"passengers"`
	SeatNumbers          []string      `json:"seat_numbers" bson:"seat_numbers"`
	ContactName          string        `json:"contact_name,omitempty" bson:"contact_name,omitempty"`
	ContactEmail         string        `json:"contact_email,omitempty" bson:"contact_email,omitempty"`
	TotalAmount          float64       `json:"total_amount" bson:"total_amount"`
	PaymentStatus        PaymentStatus `json:"payment_status" bson:"payment_status"`
	BookingStatus        BookingStatus `json:"booking_status" bson:"booking_status"`
	PaymentMethod        string        `json:"payment_method" bson:"payment_method"` // "card", "mobile_money", "cash", ...
	TransactionReference string        `json:"transaction_reference,omitempty" bson:"transaction_reference,omitempty"`
	BookingDate          *time.Time    `json:"booking_date,omitempty" bson:"booking_date,omitempty"`
	CreatedAt            *time.Time    `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// EffectiveDate returns the booking date, falling back to the creation time
// and then to fallback when neither was recorded.
func (b *Booking) EffectiveDate(fallback time.Time) time.Time {
	if b.BookingDate != nil && !b.BookingDate.IsZero() {
		return *b.BookingDate
	}
	if b.CreatedAt != nil && !b.CreatedAt.IsZero() {
		return *b.CreatedAt
	}
	return fallback
}

// CustomerName is the first passenger's name, else the contact name, else N/A.
func (b *Booking) CustomerName() string {
	if len(b.Passengers) > 0 && b.Passengers[0].Name != "" {
		return b.Passengers[0].Name
	}
	if b.ContactName != "" {
		return b.ContactName
	}
	return NotAvailable
}

// CustomerEmail follows the same fallback chain as CustomerName.
func (b *Booking) CustomerEmail() string {
	if len(b.Passengers) > 0 && b.Passengers[0].Email != "" {
		return b.Passengers[0].Email
	}
	if b.ContactEmail != "" {
		return b.ContactEmail
	}
	return NotAvailable
}
