package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultChunkSize is the largest id list sent in one schedule query.
	DefaultChunkSize = 30
	// DefaultFetchTimeout bounds each chunk query.
	DefaultFetchTimeout = 5 * time.Second
)

// ScheduleRef holds the schedule fields a transaction row needs.
type ScheduleRef struct {
	BusID         string
	Origin        string
	Destination   string
	DepartureTime string
}

// ScheduleSource loads schedules by id. db.MongoCollection satisfies it.
type ScheduleSource interface {
	FindSchedulesByIDs(ctx context.Context, ids []string) ([]models.Schedule, error)
}

// ScheduleLookup resolves a schedule id to its cached reference entry.
type ScheduleLookup interface {
	Schedule(id string) (ScheduleRef, bool)
}

// ReferenceCache is a session-scoped, write-once map of schedule references.
// Entries are never evicted unless Invalidate is called explicitly.
type ReferenceCache struct {
	source    ScheduleSource
	chunkSize int
	timeout   time.Duration

	mu        sync.RWMutex
	schedules map[string]ScheduleRef
}

// CacheOption configures a ReferenceCache.
type CacheOption func(*ReferenceCache)

// WithChunkSize overrides the per-query id limit.
func WithChunkSize(n int) CacheOption {
	return func(c *ReferenceCache) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithFetchTimeout overrides the per-chunk timeout. Zero disables it.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *ReferenceCache) {
		c.timeout = d
	}
}

// NewReferenceCache creates an empty cache backed by source.
func NewReferenceCache(source ScheduleSource, opts ...CacheOption) *ReferenceCache {
	c := &ReferenceCache{
		source:    source,
		chunkSize: DefaultChunkSize,
		timeout:   DefaultFetchTimeout,
		schedules: make(map[string]ScheduleRef),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule returns the cached reference for id.
func (c *ReferenceCache) Schedule(id string) (ScheduleRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.schedules[id]
	return ref, ok
}

// Len returns the number of cached schedules.
func (c *ReferenceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schedules)
}

// Missing returns the distinct, non-empty ids not yet cached, sorted.
func (c *ReferenceCache) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(ids))
	missing := make([]string, 0)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.schedules[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

// Invalidate drops a cached schedule. Callers must trigger a new rebuild
// for the change to show up.
func (c *ReferenceCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.schedules, id)
	c.mu.Unlock()
}

// Resolve fetches ids in chunks of at most chunkSize, all chunks at once,
// and merges the results. A failed chunk leaves its ids unresolved and does
// not stop the others; the first failure is returned.
func (c *ReferenceCache) Resolve(ctx context.Context, ids []string) error {
	chunks := chunkIDs(ids, c.chunkSize)
	if len(chunks) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, chunk := range chunks {
		g.Go(func() error {
			return c.fetchChunk(ctx, chunk)
		})
	}
	return g.Wait()
}

func (c *ReferenceCache) fetchChunk(ctx context.Context, ids []string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	schedules, err := c.source.FindSchedulesByIDs(ctx, ids)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"chunk_size": len(ids),
			"first_id":   ids[0],
		}).Error("Failed to fetch schedule references")
		return fmt.Errorf("fetch %d schedules: %w", len(ids), err)
	}
	c.merge(schedules)
	return nil
}

func (c *ReferenceCache) merge(schedules []models.Schedule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range schedules {
		if _, ok := c.schedules[s.ID]; ok {
			continue
		}
		c.schedules[s.ID] = ScheduleRef{
			BusID:         s.BusID,
			Origin:        s.Origin,
			Destination:   s.Destination,
			DepartureTime: s.DepartureTime,
		}
	}
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
