package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ukydev/busline-payments/internal/models"
)

// fakeSchedules is an in-memory ScheduleSource that records every query.
type fakeSchedules struct {
	mu        sync.Mutex
	schedules map[string]models.Schedule
	calls     [][]string
	failOn    map[string]error
	block     chan struct{}
	entered   chan struct{}
}

func newFakeSchedules(schedules ...models.Schedule) *fakeSchedules {
	f := &fakeSchedules{
		schedules: make(map[string]models.Schedule),
		failOn:    make(map[string]error),
	}
	for _, s := range schedules {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeSchedules) FindSchedulesByIDs(ctx context.Context, ids []string) ([]models.Schedule, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Schedule
	for _, id := range ids {
		if err, ok := f.failOn[id]; ok {
			return nil, err
		}
		if s, ok := f.schedules[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSchedules) callSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

var errBoom = errors.New("boom")

var baseTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)

func at(d time.Duration) *time.Time {
	t := baseTime.Add(d)
	return &t
}

func schedule(id, busID, origin, destination string) models.Schedule {
	return models.Schedule{ID: id, BusID: busID, Origin: origin, Destination: destination, DepartureTime: "08:00"}
}

func booking(id, scheduleID string, amount float64, status models.PaymentStatus, date *time.Time) models.Booking {
	return models.Booking{
		ID:               id,
		BookingReference: "REF-" + id,
		ScheduleID:       scheduleID,
		CompanyID:        "company-1",
		Passengers:       []models.Passenger{{Name: "Passenger " + id, Email: id + "@example.com"}},
		SeatNumbers:      []string{"1A"},
		TotalAmount:      amount,
		PaymentStatus:    status,
		BookingStatus:    models.BookingConfirmed,
		PaymentMethod:    "card",
		BookingDate:      date,
	}
}
