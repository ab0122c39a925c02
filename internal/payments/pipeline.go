// Package payments turns raw bookings into the transaction rows and per-bus
// revenue summaries shown on a company's payment dashboard.
//
// A Pipeline owns one ReferenceCache. Each Rebuild fingerprints the booking
// set; only when the fingerprint changes are missing schedules fetched,
// after which transactions and summaries are rebuilt from scratch. Rebuilds
// run one at a time and a call that has been overtaken by a newer one
// returns Superseded instead of data.
package payments

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/models"
)

// RebuildStatus tells whether a rebuild's data is current.
type RebuildStatus int

const (
	// Fresh results reflect the inputs of the latest Rebuild call.
	Fresh RebuildStatus = iota
	// Superseded results were discarded because a newer call arrived.
	Superseded
)

func (s RebuildStatus) String() string {
	if s == Superseded {
		return "superseded"
	}
	return "fresh"
}

// RebuildResult is the output of one Rebuild call. Only Status and Version
// are set when Status is Superseded.
type RebuildResult struct {
	Status       RebuildStatus
	Version      uint64
	Fingerprint  string
	Fetched      bool
	Transactions []models.Transaction
	Summaries    []models.BusPaymentSummary
	// Err is the first schedule fetch failure, if any. Affected rows
	// degrade to N/A fields; the rest of the result is still valid.
	Err error
}

// Pipeline rebuilds payment views for one company session.
type Pipeline struct {
	cache *ReferenceCache
	now   func() time.Time

	version atomic.Uint64
	mu      sync.Mutex
	gate    Gate
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock overrides the clock used for undated bookings.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a pipeline over cache.
func NewPipeline(cache *ReferenceCache, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cache: cache,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the pipeline's reference cache.
func (p *Pipeline) Cache() *ReferenceCache {
	return p.cache
}

// Begin claims the next rebuild version. Callers that load their inputs
// before rebuilding take the version first, so a load that started earlier
// can never win over one that started later.
func (p *Pipeline) Begin() uint64 {
	return p.version.Add(1)
}

// Rebuild produces transactions and bus summaries for bookings and buses.
// A nil buses slice means the fleet is not loaded yet.
func (p *Pipeline) Rebuild(ctx context.Context, bookings []models.Booking, buses []models.Bus) RebuildResult {
	return p.RebuildAt(ctx, p.Begin(), bookings, buses)
}

// RebuildAt rebuilds under version v obtained from Begin. It returns
// Superseded when a later version has been claimed.
func (p *Pipeline) RebuildAt(ctx context.Context, v uint64, bookings []models.Booking, buses []models.Bus) RebuildResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.version.Load() != v {
		return RebuildResult{Status: Superseded, Version: v}
	}

	fp, changed := p.gate.Observe(bookings)
	result := RebuildResult{Status: Fresh, Version: v, Fingerprint: fp}

	if changed && len(bookings) > 0 {
		missing := p.cache.Missing(scheduleIDs(bookings))
		if len(missing) > 0 {
			result.Fetched = true
			result.Err = p.cache.Resolve(ctx, missing)
			if result.Err != nil {
				// Retry unresolved ids on the next rebuild.
				p.gate.Reset()
			}
		}
		if p.version.Load() != v {
			log.WithField("version", v).Debug("Discarding superseded payments rebuild")
			return RebuildResult{Status: Superseded, Version: v}
		}
	}

	result.Transactions = Enrich(bookings, p.cache, NewBusLookup(buses), p.now())
	SortByDate(result.Transactions)
	result.Summaries = Aggregate(result.Transactions, buses)

	log.WithFields(log.Fields{
		"version":      v,
		"bookings":     len(bookings),
		"buses":        len(buses),
		"fetched":      result.Fetched,
		"transactions": len(result.Transactions),
	}).Debug("Rebuilt payments")
	return result
}

func scheduleIDs(bookings []models.Booking) []string {
	ids := make([]string, 0, len(bookings))
	for i := range bookings {
		ids = append(ids, bookings[i].ScheduleID)
	}
	return ids
}
