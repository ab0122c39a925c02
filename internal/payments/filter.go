package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/ukydev/busline-payments/internal/models"
)

// DateRange selects the booking date window of a filter.
type DateRange string

const (
	RangeAll        DateRange = "all"
	RangeToday      DateRange = "today"
	RangeLast7Days  DateRange = "7days"
	RangeLast30Days DateRange = "30days"
	RangeCustom     DateRange = "custom"
)

// ParseDateRange maps a query value to a DateRange. Empty means all.
func ParseDateRange(s string) (DateRange, error) {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeAll, nil
	case RangeAll, RangeToday, RangeLast7Days, RangeLast30Days, RangeCustom:
		return r, nil
	default:
		return "", fmt.Errorf("unknown date range %q", s)
	}
}

// Criteria are the user-chosen predicates of the transactions table. Zero
// values disable the corresponding predicate.
type Criteria struct {
	BusID  string
	Status string
	Range  DateRange
	Start  time.Time
	End    time.Time
	Query  string
}

// Filter returns the transactions matching every predicate in c, in input
// order. now anchors the relative date ranges.
func Filter(txs []models.Transaction, c Criteria, now time.Time) []models.Transaction {
	from, to := c.window(now)
	status := strings.TrimSpace(c.Status)
	if strings.EqualFold(status, "all") {
		status = ""
	}
	query := strings.ToLower(strings.TrimSpace(c.Query))

	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if c.BusID != "" && tx.BusID != c.BusID {
			continue
		}
		if status != "" && !strings.EqualFold(string(tx.PaymentStatus), status) {
			continue
		}
		if !from.IsZero() && tx.BookingDate.Before(from) {
			continue
		}
		if !to.IsZero() && tx.BookingDate.After(to) {
			continue
		}
		if query != "" && !matchesQuery(&tx, query) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// window returns the inclusive bounds for c.Range; a zero bound is open.
func (c Criteria) window(now time.Time) (from, to time.Time) {
	switch c.Range {
	case RangeToday:
		return startOfDay(now), time.Time{}
	case RangeLast7Days:
		return now.AddDate(0, 0, -7), time.Time{}
	case RangeLast30Days:
		return now.AddDate(0, 0, -30), time.Time{}
	case RangeCustom:
		if !c.Start.IsZero() {
			from = startOfDay(c.Start)
		}
		if !c.End.IsZero() {
			to = endOfDay(c.End)
		}
		return from, to
	default:
		return time.Time{}, time.Time{}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func matchesQuery(tx *models.Transaction, query string) bool {
	fields := [...]string{
		tx.BookingReference,
		tx.CustomerName,
		tx.CustomerEmail,
		tx.ID,
		tx.TransactionReference,
		tx.BusPlate,
		tx.Route,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
