// Package dashboard keeps one payments pipeline per company and feeds it
// with bookings and buses from the database.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/db"
	"github.com/ukydev/busline-payments/internal/models"
	"github.com/ukydev/busline-payments/internal/payments"
	"golang.org/x/sync/singleflight"
)

// Dashboard is the payment view state of a single company.
type Dashboard struct {
	companyID string
	bookings  db.BookingCollection
	buses     db.BusCollection
	pipeline  *payments.Pipeline
	now       func() time.Time

	// first loads share one in-flight call
	loads singleflight.Group

	mu      sync.RWMutex
	last    payments.RebuildResult
	loaded  bool
	updated time.Time
}

// Snapshot is the latest fresh rebuild of a dashboard.
type Snapshot struct {
	CompanyID    string
	Transactions []models.Transaction
	Summaries    []models.BusPaymentSummary
	// Banner is the first schedule fetch failure of the last rebuild.
	Banner    string
	UpdatedAt time.Time
}

func newDashboard(companyID string, bookings db.BookingCollection, buses db.BusCollection, pipeline *payments.Pipeline, now func() time.Time) *Dashboard {
	return &Dashboard{
		companyID: companyID,
		bookings:  bookings,
		buses:     buses,
		pipeline:  pipeline,
		now:       now,
	}
}

// CompanyID returns the company the dashboard belongs to.
func (d *Dashboard) CompanyID() string {
	return d.companyID
}

// Refresh reloads bookings and buses and rebuilds the views. A fleet load
// failure is not fatal: plates show as loading until the next refresh.
func (d *Dashboard) Refresh(ctx context.Context) (payments.RebuildResult, error) {
	// The version is claimed before the reads so an older read that
	// finishes last is superseded.
	v := d.pipeline.Begin()

	bookings, err := d.bookings.FindBookingsByCompany(ctx, d.companyID)
	if err != nil {
		return payments.RebuildResult{}, fmt.Errorf("load bookings for %s: %w", d.companyID, err)
	}

	buses, err := d.buses.FindBusesByCompany(ctx, d.companyID)
	if err != nil {
		log.WithError(err).WithField("company_id", d.companyID).Warn("Failed to load buses")
		buses = nil
	} else if buses == nil {
		buses = []models.Bus{}
	}

	res := d.pipeline.RebuildAt(ctx, v, bookings, buses)
	if res.Status == payments.Superseded {
		return res, nil
	}

	d.mu.Lock()
	// A slower call may finish after a newer one; keep the newest.
	if res.Version > d.last.Version {
		d.last = res
		d.loaded = true
		d.updated = d.now()
	}
	d.mu.Unlock()

	fields := log.Fields{
		"company_id":   d.companyID,
		"bookings":     len(bookings),
		"transactions": len(res.Transactions),
		"fetched":      res.Fetched,
	}
	if res.Err != nil {
		log.WithError(res.Err).WithFields(fields).Warn("Refreshed payments with unresolved schedules")
	} else {
		log.WithFields(fields).Info("Refreshed payments")
	}
	return res, nil
}

// Ensure loads the dashboard if no refresh has completed yet. Concurrent
// callers wait on the same load, and a load overtaken by another refresh is
// retried until fresh data is in place.
func (d *Dashboard) Ensure(ctx context.Context) error {
	if d.Loaded() {
		return nil
	}
	_, err, _ := d.loads.Do("load", func() (interface{}, error) {
		for !d.Loaded() {
			if _, err := d.Refresh(ctx); err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// Loaded reports whether at least one refresh has completed.
func (d *Dashboard) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// empty reports whether the last fresh rebuild saw neither bookings nor
// buses.
func (d *Dashboard) empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.last.Transactions) == 0 && len(d.last.Summaries) == 0
}

// Snapshot returns the latest fresh views. The slices are shared and must
// not be modified.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Snapshot{
		CompanyID:    d.companyID,
		Transactions: d.last.Transactions,
		Summaries:    d.last.Summaries,
		UpdatedAt:    d.updated,
	}
	if d.last.Err != nil {
		s.Banner = d.last.Err.Error()
	}
	return s
}

// Transactions returns the latest transactions matching c.
func (d *Dashboard) Transactions(c payments.Criteria) []models.Transaction {
	return payments.Filter(d.Snapshot().Transactions, c, d.now())
}

// Summaries returns the latest bus summaries, limited to busID when set.
func (d *Dashboard) Summaries(busID string) []models.BusPaymentSummary {
	all := d.Snapshot().Summaries
	if busID == "" {
		return all
	}
	out := make([]models.BusPaymentSummary, 0, 1)
	for _, s := range all {
		if s.BusID == busID {
			out = append(out, s)
		}
	}
	return out
}
