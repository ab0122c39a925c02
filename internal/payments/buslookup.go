package payments

import "github.com/ukydev/busline-payments/internal/models"

// BusRef holds the bus fields a transaction row needs.
type BusRef struct {
	LicensePlate string
	BusType      string
	Status       models.BusStatus
}

// BusLookup is an immutable id index over a fleet list.
type BusLookup struct {
	loaded bool
	buses  map[string]BusRef
}

// NewBusLookup indexes buses. A nil slice means the fleet has not been
// loaded yet, which is different from an empty fleet.
func NewBusLookup(buses []models.Bus) BusLookup {
	l := BusLookup{
		loaded: buses != nil,
		buses:  make(map[string]BusRef, len(buses)),
	}
	for _, b := range buses {
		l.buses[b.ID] = BusRef{
			LicensePlate: b.LicensePlate,
			BusType:      b.BusType,
			Status:       b.Status,
		}
	}
	return l
}

// Lookup returns the bus reference for id.
func (l BusLookup) Lookup(id string) (BusRef, bool) {
	ref, ok := l.buses[id]
	return ref, ok
}

// Loaded reports whether a fleet list was supplied.
func (l BusLookup) Loaded() bool {
	return l.loaded
}
