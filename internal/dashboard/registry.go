package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/db"
	"github.com/ukydev/busline-payments/internal/payments"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoCompany is returned when a company id is empty.
	ErrNoCompany = errors.New("company id is required")
	// ErrUnknownCompany is returned by Lookup for a company with neither
	// bookings nor buses.
	ErrUnknownCompany = errors.New("unknown company")
)

// Registry lazily creates one Dashboard per company. Each dashboard owns its
// own schedule cache for the lifetime of the process.
type Registry struct {
	bookings  db.BookingCollection
	buses     db.BusCollection
	schedules db.ScheduleCollection
	cacheOpts []payments.CacheOption
	now       func() time.Time

	mu         sync.Mutex
	dashboards map[string]*Dashboard

	lookups singleflight.Group
}

// NewRegistry creates an empty registry over the given collections.
func NewRegistry(bookings db.BookingCollection, buses db.BusCollection, schedules db.ScheduleCollection, opts ...payments.CacheOption) *Registry {
	return &Registry{
		bookings:   bookings,
		buses:      buses,
		schedules:  schedules,
		cacheOpts:  opts,
		now:        time.Now,
		dashboards: make(map[string]*Dashboard),
	}
}

// Get returns the dashboard of companyID, creating it on first use.
func (r *Registry) Get(companyID string) (*Dashboard, error) {
	if companyID == "" {
		return nil, ErrNoCompany
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[companyID]
	if !ok {
		d = r.build(companyID)
		r.dashboards[companyID] = d
	}
	return d, nil
}

func (r *Registry) build(companyID string) *Dashboard {
	cache := payments.NewReferenceCache(r.schedules, r.cacheOpts...)
	pipeline := payments.NewPipeline(cache, payments.WithClock(r.now))
	return newDashboard(companyID, r.bookings, r.buses, pipeline, r.now)
}

func (r *Registry) existing(companyID string) (*Dashboard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[companyID]
	return d, ok
}

// Lookup is Loaded for a company id chosen by the caller rather than taken
// from a token. A company seen for the first time is loaded off the registry
// and only kept when it has bookings or buses.
func (r *Registry) Lookup(ctx context.Context, companyID string) (*Dashboard, error) {
	if companyID == "" {
		return nil, ErrNoCompany
	}
	if d, ok := r.existing(companyID); ok {
		if err := d.Ensure(ctx); err != nil {
			return nil, err
		}
		return d, nil
	}

	v, err, _ := r.lookups.Do(companyID, func() (interface{}, error) {
		d := r.build(companyID)
		if err := d.Ensure(ctx); err != nil {
			return nil, err
		}
		if d.empty() {
			return nil, ErrUnknownCompany
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if prev, ok := r.dashboards[companyID]; ok {
			return prev, nil
		}
		r.dashboards[companyID] = d
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	d := v.(*Dashboard)
	if err := d.Ensure(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Loaded returns the dashboard of companyID, refreshing it first if it has
// never been loaded.
func (r *Registry) Loaded(ctx context.Context, companyID string) (*Dashboard, error) {
	d, err := r.Get(companyID)
	if err != nil {
		return nil, err
	}
	if err := d.Ensure(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh rebuilds the dashboard of companyID if one exists. Companies
// nobody has viewed yet are skipped; their first view loads fresh data.
func (r *Registry) Refresh(ctx context.Context, companyID string) error {
	if companyID == "" {
		return ErrNoCompany
	}
	d, ok := r.existing(companyID)
	if !ok {
		log.WithField("company_id", companyID).Debug("No dashboard to refresh")
		return nil
	}
	_, err := d.Refresh(ctx)
	return err
}

// Companies returns the ids of every dashboard created so far.
func (r *Registry) Companies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.dashboards))
	for id := range r.dashboards {
		ids = append(ids, id)
	}
	return ids
}

// RefreshAll rebuilds every known dashboard, logging failures.
func (r *Registry) RefreshAll(ctx context.Context) {
	for _, id := range r.Companies() {
		if err := r.Refresh(ctx, id); err != nil {
			log.WithError(err).WithField("company_id", id).Error("Failed to refresh payments")
		}
	}
}
