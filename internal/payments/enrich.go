package payments

import (
	"sort"
	"time"

	"github.com/ukydev/busline-payments/internal/models"
)

// Loading marks a bus plate whose bus id is known but whose fleet record
// has not arrived yet.
const Loading = "Loading..."

// Enrich joins bookings against the schedule cache and the fleet lookup.
// now is used as the date of bookings that carry neither a booking date nor
// a creation time.
func Enrich(bookings []models.Booking, schedules ScheduleLookup, buses BusLookup, now time.Time) []models.Transaction {
	txs := make([]models.Transaction, 0, len(bookings))
	for i := range bookings {
		txs = append(txs, enrichOne(&bookings[i], schedules, buses, now))
	}
	return txs
}

func enrichOne(b *models.Booking, schedules ScheduleLookup, buses BusLookup, now time.Time) models.Transaction {
	tx := models.Transaction{
		ID:                   b.ID,
		BookingReference:     b.BookingReference,
		ScheduleID:           b.ScheduleID,
		CustomerName:         b.CustomerName(),
		CustomerEmail:        b.CustomerEmail(),
		Amount:               b.TotalAmount,
		PaymentStatus:        b.PaymentStatus,
		BookingStatus:        b.BookingStatus,
		PaymentMethod:        b.PaymentMethod,
		TransactionReference: b.TransactionReference,
		Seats:                seatsOf(b),
		BookingDate:          b.EffectiveDate(now),
		Origin:               models.NotAvailable,
		Destination:          models.NotAvailable,
		Route:                models.NotAvailable,
		DepartureTime:        models.NotAvailable,
		BusPlate:             models.NotAvailable,
		BusType:              models.NotAvailable,
	}

	sched, ok := schedules.Schedule(b.ScheduleID)
	if !ok {
		return tx
	}
	tx.Origin = orNotAvailable(sched.Origin)
	tx.Destination = orNotAvailable(sched.Destination)
	tx.Route = tx.Origin + " → " + tx.Destination
	tx.DepartureTime = orNotAvailable(sched.DepartureTime)
	tx.BusID = sched.BusID
	if sched.BusID == "" {
		return tx
	}

	bus, ok := buses.Lookup(sched.BusID)
	switch {
	case ok:
		tx.BusPlate = orNotAvailable(bus.LicensePlate)
		tx.BusType = orNotAvailable(bus.BusType)
	case !buses.Loaded():
		tx.BusPlate = Loading
		tx.BusType = Loading
	}
	return tx
}

func seatsOf(b *models.Booking) []string {
	if len(b.SeatNumbers) > 0 {
		return append([]string(nil), b.SeatNumbers...)
	}
	seats := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		if p.Seat != "" {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}

func orNotAvailable(s string) string {
	if s == "" {
		return models.NotAvailable
	}
	return s
}

// SortByDate orders transactions newest first. Equal dates keep their
// relative order.
func SortByDate(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BookingDate.After(txs[j].BookingDate)
	})
}
