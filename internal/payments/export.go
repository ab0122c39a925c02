package payments

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ukydev/busline-payments/internal/models"
)

// ExportHeader is the fixed column order of the CSV export.
var ExportHeader = []string{
	"Reference", "Customer", "Bus", "Origin", "Destination",
	"Amount", "Date", "Status", "Method", "TransactionId",
}

// ExportDateLayout is the short date written in the Date column.
const ExportDateLayout = "1/2/2006"

// WriteCSV writes a header and one quoted row per transaction to w. Amounts
// are written as plain numbers and dates in the local time zone.
func WriteCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for i := range txs {
		if err := cw.Write(exportRow(&txs[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV renders txs as a CSV document.
func ExportCSV(txs []models.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, txs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(tx *models.Transaction) []string {
	reference := tx.BookingReference
	if reference == "" {
		reference = tx.ID
	}
	txID := tx.TransactionReference
	if txID == "" {
		txID = tx.ID
	}
	return []string{
		reference,
		tx.CustomerName,
		tx.BusPlate,
		tx.Origin,
		tx.Destination,
		strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		tx.BookingDate.Local().Format(ExportDateLayout),
		string(tx.PaymentStatus),
		tx.PaymentMethod,
		txID,
	}
}
