package payments

import (
	"sort"
	"strings"

	"github.com/ukydev/busline-payments/internal/models"
)

// fingerprintSep cannot occur in a booking id.
const fingerprintSep = "\x00"

// Fingerprint identifies a booking set by its sorted id list, so reordering
// the same bookings yields the same value.
func Fingerprint(bookings []models.Booking) string {
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, fingerprintSep)
}

// Gate remembers the last fingerprint seen. It is not safe for concurrent
// use; Pipeline serializes access.
type Gate struct {
	last string
	seen bool
}

// Observe records the fingerprint of bookings and reports whether it
// differs from the previous one.
func (g *Gate) Observe(bookings []models.Booking) (string, bool) {
	fp := Fingerprint(bookings)
	if g.seen && fp == g.last {
		return fp, false
	}
	g.last = fp
	g.seen = true
	return fp, true
}

// Reset forgets the stored fingerprint.
func (g *Gate) Reset() {
	g.last = ""
	g.seen = false
}
