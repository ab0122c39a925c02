package payments

import (
	"sort"

	"github.com/ukydev/busline-payments/internal/models"
)

// Aggregate folds transactions into one summary per bus. Every bus in buses
// gets a summary even with no activity; buses referenced only by
// transactions are added as inactive. Failed and refunded amounts count
// toward the totals but toward neither the paid nor the pending bucket.
// The result is ordered by total revenue, highest first.
func Aggregate(txs []models.Transaction, buses []models.Bus) []models.BusPaymentSummary {
	order := make([]*models.BusPaymentSummary, 0, len(buses))
	byID := make(map[string]*models.BusPaymentSummary, len(buses))

	for _, b := range buses {
		if _, ok := byID[b.ID]; ok {
			continue
		}
		s := &models.BusPaymentSummary{
			BusID:        b.ID,
			LicensePlate: b.LicensePlate,
			BusType:      b.BusType,
			Status:       b.Status,
		}
		byID[b.ID] = s
		order = append(order, s)
	}

	for i := range txs {
		tx := &txs[i]
		if tx.BusID == "" {
			continue
		}
		s, ok := byID[tx.BusID]
		if !ok {
			s = &models.BusPaymentSummary{
				BusID:        tx.BusID,
				LicensePlate: tx.BusPlate,
				BusType:      tx.BusType,
				Status:       models.BusInactive,
			}
			byID[tx.BusID] = s
			order = append(order, s)
		}

		s.TotalRevenue += tx.Amount
		s.TransactionCount++
		switch tx.PaymentStatus {
		case models.PaymentPaid:
			s.PaidRevenue += tx.Amount
			s.PaidCount++
		case models.PaymentPending:
			s.PendingRevenue += tx.Amount
			s.PendingCount++
		}

		if s.LastTransaction == nil || tx.BookingDate.After(*s.LastTransaction) {
			at := tx.BookingDate
			s.LastTransaction = &at
		}
	}

	summaries := make([]models.BusPaymentSummary, len(order))
	for i, s := range order {
		summaries[i] = *s
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalRevenue > summaries[j].TotalRevenue
	})
	return summaries
}
