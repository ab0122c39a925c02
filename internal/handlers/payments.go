package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/dashboard"
	"github.com/ukydev/busline-payments/internal/middleware"
	"github.com/ukydev/busline-payments/internal/models"
	"github.com/ukydev/busline-payments/internal/payments"
)

// QueryDateLayout is the layout of the start and end query parameters.
const QueryDateLayout = "2006-01-02"

// TransactionsResponse is the body of the transactions endpoint.
type TransactionsResponse struct {
	CompanyID    string               `json:"company_id"`
	Transactions []models.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
	Error        string               `json:"error,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// BusesResponse is the body of the buses endpoint.
type BusesResponse struct {
	CompanyID string                     `json:"company_id"`
	Buses     []models.BusPaymentSummary `json:"buses"`
	Error     string                     `json:"error,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// RefreshResponse is the body of the refresh endpoint.
type RefreshResponse struct {
	CompanyID    string `json:"company_id"`
	Status       string `json:"status"`
	Version      uint64 `json:"version"`
	Fetched      bool   `json:"fetched"`
	Transactions int    `json:"transactions"`
	Error        string `json:"error,omitempty"`
}

// PaymentsHandler serves the payment views of a company.
type PaymentsHandler struct {
	registry *dashboard.Registry
	now      func() time.Time
}

// NewPaymentsHandler creates a new payments handler
func NewPaymentsHandler(registry *dashboard.Registry) *PaymentsHandler {
	return &PaymentsHandler{registry: registry, now: time.Now}
}

// Transactions returns the filtered transactions of the caller's company.
func (h *PaymentsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}

	snap := d.Snapshot()
	txs := d.Transactions(criteria)
	writeJSON(w, http.StatusOK, TransactionsResponse{
		CompanyID:    snap.CompanyID,
		Transactions: txs,
		Count:        len(txs),
		Error:        snap.Banner,
		UpdatedAt:    snap.UpdatedAt,
	})
}

// Buses returns the per-bus revenue summaries of the caller's company.
func (h *PaymentsHandler) Buses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}

	snap := d.Snapshot()
	writeJSON(w, http.StatusOK, BusesResponse{
		CompanyID: snap.CompanyID,
		Buses:     d.Summaries(strings.TrimSpace(r.URL.Query().Get("bus_id"))),
		Error:     snap.Banner,
		UpdatedAt: snap.UpdatedAt,
	})
}

// Export writes the filtered transactions as a CSV attachment.
func (h *PaymentsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}

	data, err := payments.ExportCSV(d.Transactions(criteria))
	if err != nil {
		log.WithError(err).WithField("company_id", d.CompanyID()).Error("Failed to export transactions")
		http.Error(w, "Failed to export transactions", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("payments-%s-%s.csv", d.CompanyID(), h.now().Format(QueryDateLayout))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.WithError(err).Warn("Failed to write export")
	}
}

// Refresh forces a rebuild of the caller's company views.
func (h *PaymentsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID, err := middleware.CompanyFromRequest(r)
	if err != nil {
		writeScopeError(w, err)
		return
	}

	var d *dashboard.Dashboard
	if pickedCompany(r, companyID) {
		d, err = h.registry.Lookup(r.Context(), companyID)
	} else {
		d, err = h.registry.Get(companyID)
	}
	if err != nil {
		writeLoadError(w, companyID, err)
		return
	}

	res, err := d.Refresh(r.Context())
	if err != nil {
		log.WithError(err).WithField("company_id", companyID).Error("Failed to refresh payments")
		http.Error(w, "Failed to load bookings", http.StatusServiceUnavailable)
		return
	}

	resp := RefreshResponse{
		CompanyID:    companyID,
		Status:       res.Status.String(),
		Version:      res.Version,
		Fetched:      res.Fetched,
		Transactions: len(res.Transactions),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Companies lists the companies with a live dashboard.
func (h *PaymentsHandler) Companies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"companies": h.registry.Companies()})
}

// dashboard resolves and loads the caller's dashboard, writing the error
// response itself when that fails.
func (h *PaymentsHandler) dashboard(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, bool) {
	companyID, err := middleware.CompanyFromRequest(r)
	if err != nil {
		writeScopeError(w, err)
		return nil, false
	}

	var d *dashboard.Dashboard
	if pickedCompany(r, companyID) {
		d, err = h.registry.Lookup(r.Context(), companyID)
	} else {
		d, err = h.registry.Loaded(r.Context(), companyID)
	}
	if err != nil {
		writeLoadError(w, companyID, err)
		return nil, false
	}
	return d, true
}

// pickedCompany reports whether companyID came from the request rather than
// the caller's own token.
func pickedCompany(r *http.Request, companyID string) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	return ok && claims.CompanyID != companyID
}

func writeLoadError(w http.ResponseWriter, companyID string, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownCompany):
		http.Error(w, "Company not found", http.StatusNotFound)
	case errors.Is(err, dashboard.ErrNoCompany):
		http.Error(w, "Company is required", http.StatusBadRequest)
	default:
		log.WithError(err).WithField("company_id", companyID).Error("Failed to load payments")
		http.Error(w, "Failed to load bookings", http.StatusServiceUnavailable)
	}
}

func writeScopeError(w http.ResponseWriter, err error) {
	if errors.Is(err, middleware.ErrNoUser) {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	http.Error(w, "Company is required", http.StatusBadRequest)
}

// parseCriteria reads the filter predicates from query parameters. Dates are
// calendar days in the server's local time zone.
func parseCriteria(q url.Values) (payments.Criteria, error) {
	rng, err := payments.ParseDateRange(q.Get("range"))
	if err != nil {
		return payments.Criteria{}, err
	}

	c := payments.Criteria{
		BusID:  strings.TrimSpace(q.Get("bus_id")),
		Status: strings.TrimSpace(q.Get("status")),
		Range:  rng,
		Query:  q.Get("q"),
	}

	if v := q.Get("start"); v != "" {
		if c.Start, err = time.ParseInLocation(QueryDateLayout, v, time.Local); err != nil {
			return payments.Criteria{}, fmt.Errorf("invalid start date %q", v)
		}
	}
	if v := q.Get("end"); v != "" {
		if c.End, err = time.ParseInLocation(QueryDateLayout, v, time.Local); err != nil {
			return payments.Criteria{}, fmt.Errorf("invalid end date %q", v)
		}
	}
	// Explicit dates without a range imply a custom window.
	if c.Range == payments.RangeAll && q.Get("range") == "" && (!c.Start.IsZero() || !c.End.IsZero()) {
		c.Range = payments.RangeCustom
	}
	return c, nil
}
