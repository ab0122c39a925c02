package db

import (
	"context"

	"github.com/ukydev/busline-payments/internal/models"
)

// ScheduleCollection defines the interface for schedule data operations.
type ScheduleCollection interface {
	InsertSchedule(ctx context.Context, schedule models.Schedule) error
	FindSchedulesByIDs(ctx context.Context, ids []string) ([]models.Schedule, error)
}

// BookingCollection defines the interface for booking data operations.
type BookingCollection interface {
	InsertBooking(ctx context.Context, booking models.Booking) error
	FindBookingsByCompany(ctx context.Context, companyID string) ([]models.Booking, error)
}

// BusCollection defines the interface for bus data operations.
type BusCollection interface {
	InsertBus(ctx context.Context, bus models.Bus) error
	FindBusesByCompany(ctx context.Context, companyID string) ([]models.Bus, error)
}

// Cursor defines the interface for cursor operations.
type Cursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}
