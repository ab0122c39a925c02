package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/busline-payments/internal/models"
)

func tx(id, busID string, amount float64, status models.PaymentStatus, date time.Time) models.Transaction {
	return models.Transaction{ID: id, BusID: busID, BusPlate: "PLATE-" + busID, BusType: "standard", Amount: amount, PaymentStatus: status, BookingDate: date}
}

func TestAggregate_PaidPendingPartition(t *testing.T) {
	buses := []models.Bus{{ID: "bus-1", LicensePlate: "BT 1", Status: models.BusActive}}
	txs := []models.Transaction{
		tx("t1", "bus-1", 100, models.PaymentPaid, baseTime),
		tx("t2", "bus-1", 200, models.PaymentPending, baseTime.Add(time.Hour)),
		tx("t3", "bus-1", 300, models.PaymentFailed, baseTime.Add(-time.Hour)),
	}

	summaries := Aggregate(txs, buses)
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, 600.0, s.TotalRevenue)
	assert.Equal(t, 100.0, s.PaidRevenue)
	assert.Equal(t, 200.0, s.PendingRevenue)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, 1, s.PendingCount)
	assert.Equal(t, 3, s.TransactionCount)
	require.NotNil(t, s.LastTransaction)
	assert.Equal(t, baseTime.Add(time.Hour), *s.LastTransaction)
}

func TestAggregate_SeedCompleteness(t *testing.T) {
	buses := []models.Bus{
		{ID: "bus-1", LicensePlate: "BT 1", BusType: "standard", Status: models.BusActive},
		{ID: "bus-2", LicensePlate: "BT 2", BusType: "luxury", Status: models.BusMaintenance},
		{ID: "bus-3", LicensePlate: "BT 3", BusType: "minibus", Status: models.BusInactive},
	}

	summaries := Aggregate(nil, buses)
	require.Len(t, summaries, 3)
	for i, s := range summaries {
		assert.Equal(t, buses[i].ID, s.BusID)
		assert.Equal(t, buses[i].Status, s.Status)
		assert.Equal(t, buses[i].LicensePlate, s.LicensePlate)
		assert.Zero(t, s.TotalRevenue)
		assert.Zero(t, s.PaidRevenue)
		assert.Zero(t, s.PendingRevenue)
		assert.Zero(t, s.TransactionCount)
		assert.Zero(t, s.PaidCount)
		assert.Zero(t, s.PendingCount)
		assert.Nil(t, s.LastTransaction)
	}
}

func TestAggregate_Conservation(t *testing.T) {
	statuses := []models.PaymentStatus{models.PaymentPaid, models.PaymentPending, models.PaymentFailed, models.PaymentRefunded}
	busIDs := []string{"bus-1", "bus-2", "bus-3", ""}
	var txs []models.Transaction
	for i := 0; i < 40; i++ {
		txs = append(txs, tx("t", busIDs[i%len(busIDs)], float64(i*5+1), statuses[i%len(statuses)], baseTime.Add(time.Duration(i)*time.Minute)))
	}
	buses := []models.Bus{{ID: "bus-1", Status: models.BusActive}}

	summaries := Aggregate(txs, buses)
	require.Len(t, summaries, 3)
	for _, s := range summaries {
		var want float64
		var count int
		for _, x := range txs {
			if x.BusID == s.BusID {
				want += x.Amount
				count++
			}
		}
		assert.InDelta(t, want, s.TotalRevenue, 1e-9, s.BusID)
		assert.Equal(t, count, s.TransactionCount, s.BusID)
	}
}

func TestAggregate_OnDemandBusAndOrdering(t *testing.T) {
	buses := []models.Bus{
		{ID: "bus-1", Status: models.BusActive},
		{ID: "bus-2", Status: models.BusActive},
		{ID: "bus-3", Status: models.BusActive},
	}
	txs := []models.Transaction{
		tx("t1", "bus-2", 50, models.PaymentPaid, baseTime),
		tx("t2", "ghost", 500, models.PaymentRefunded, baseTime),
		tx("t3", "", 1000, models.PaymentPaid, baseTime),
	}

	summaries := Aggregate(txs, buses)
	require.Len(t, summaries, 4)

	order := make([]string, len(summaries))
	for i, s := range summaries {
		order[i] = s.BusID
	}
	// bus-1 and bus-3 tie at zero and keep seed order.
	assert.Equal(t, []string{"ghost", "bus-2", "bus-1", "bus-3"}, order)

	ghost := summaries[0]
	assert.Equal(t, models.BusInactive, ghost.Status)
	assert.Equal(t, "PLATE-ghost", ghost.LicensePlate)
	assert.Equal(t, 500.0, ghost.TotalRevenue)
	assert.Zero(t, ghost.PaidRevenue)
	assert.Zero(t, ghost.PendingRevenue)
}

func TestAggregate_DuplicateSeedBus(t *testing.T) {
	buses := []models.Bus{{ID: "bus-1", Status: models.BusActive}, {ID: "bus-1", Status: models.BusInactive}}
	summaries := Aggregate([]models.Transaction{tx("t1", "bus-1", 10, models.PaymentPaid, baseTime)}, buses)
	require.Len(t, summaries, 1)
	assert.Equal(t, models.BusActive, summaries[0].Status)
	assert.Equal(t, 10.0, summaries[0].TotalRevenue)
}
