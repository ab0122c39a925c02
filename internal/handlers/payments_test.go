package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/busline-payments/internal/dashboard"
	"github.com/ukydev/busline-payments/internal/middleware"
	"github.com/ukydev/busline-payments/internal/models"
	"github.com/ukydev/busline-payments/internal/payments"
)

// MockBookingCollection is a mock implementation of BookingCollection
type MockBookingCollection struct {
	mock.Mock
}

func (m *MockBookingCollection) InsertBooking(ctx context.Context, booking models.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingCollection) FindBookingsByCompany(ctx context.Context, companyID string) ([]models.Booking, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

// MockBusCollection is a mock implementation of BusCollection
type MockBusCollection struct {
	mock.Mock
}

func (m *MockBusCollection) InsertBus(ctx context.Context, bus models.Bus) error {
	args := m.Called(ctx, bus)
	return args.Error(0)
}

func (m *MockBusCollection) FindBusesByCompany(ctx context.Context, companyID string) ([]models.Bus, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Bus), args.Error(1)
}

// MockScheduleCollection is a mock implementation of ScheduleCollection
type MockScheduleCollection struct {
	mock.Mock
}

func (m *MockScheduleCollection) InsertSchedule(ctx context.Context, schedule models.Schedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockScheduleCollection) FindSchedulesByIDs(ctx context.Context, ids []string) ([]models.Schedule, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Schedule), args.Error(1)
}

type paymentsFixture struct {
	bookings  *MockBookingCollection
	buses     *MockBusCollection
	schedules *MockScheduleCollection
	handler   *PaymentsHandler
}

func newPaymentsFixture() *paymentsFixture {
	recent := time.Now().Add(-time.Minute)
	old := time.Now().AddDate(0, 0, -40)

	f := &paymentsFixture{
		bookings:  new(MockBookingCollection),
		buses:     new(MockBusCollection),
		schedules: new(MockScheduleCollection),
	}
	f.bookings.On("FindBookingsByCompany", mock.Anything, "company-1").Return([]models.Booking{
		{ID: "b1", BookingReference: "BK-001", ScheduleID: "s1", CompanyID: "company-1", TotalAmount: 1500,
			PaymentStatus: models.PaymentPaid, PaymentMethod: "card", BookingDate: &recent,
			Passengers: []models.Passenger{{Name: "Doe, Jane", Email: "jane@example.com"}}},
		{ID: "b2", BookingReference: "BK-002", ScheduleID: "s2", CompanyID: "company-1", TotalAmount: 800,
			PaymentStatus: models.PaymentPending, PaymentMethod: "mobile", BookingDate: &old, ContactName: "Sam"},
	}, nil)
	f.buses.On("FindBusesByCompany", mock.Anything, "company-1").Return([]models.Bus{
		{ID: "bus-1", CompanyID: "company-1", LicensePlate: "LL 1234", BusType: "coach", Status: models.BusActive},
		{ID: "bus-2", CompanyID: "company-1", LicensePlate: "BT 5678", BusType: "mini", Status: models.BusActive},
	}, nil)
	f.schedules.On("FindSchedulesByIDs", mock.Anything, mock.Anything).Return([]models.Schedule{
		{ID: "s1", BusID: "bus-1", Origin: "Lilongwe", Destination: "Blantyre", DepartureTime: "08:00"},
		{ID: "s2", BusID: "bus-2", Origin: "Mzuzu", Destination: "Lilongwe", DepartureTime: "14:30"},
	}, nil)

	registry := dashboard.NewRegistry(f.bookings, f.buses, f.schedules)
	f.handler = NewPaymentsHandler(registry)
	return f
}

func withClaims(req *http.Request, role models.Role, companyID string) *http.Request {
	claims := &models.Claims{UserID: "u1", Username: "tester", Role: role, CompanyID: companyID}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
}

func TestPaymentsHandler_Transactions(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{"all transactions newest first", "", []string{"b1", "b2"}},
		{"status filter", "?status=pending", []string{"b2"}},
		{"last 30 days", "?range=30days", []string{"b1"}},
		{"search by plate", "?q=bt%205678", []string{"b2"}},
		{"search by route", "?q=blantyre", []string{"b1"}},
		{"bus filter", "?bus_id=bus-1", []string{"b1"}},
		{"combined filters exclude everything", "?status=paid&bus_id=bus-2", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentsFixture()
			req := withClaims(httptest.NewRequest("GET", "/api/payments/transactions"+tt.query, nil), models.RoleOperator, "company-1")
			w := httptest.NewRecorder()
			f.handler.Transactions(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			var resp TransactionsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			ids := make([]string, 0, len(resp.Transactions))
			for _, tx := range resp.Transactions {
				ids = append(ids, tx.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), resp.Count)
			assert.Equal(t, "company-1", resp.CompanyID)
			assert.Empty(t, resp.Error)
		})
	}
}

func TestPaymentsHandler_TransactionsBadRequest(t *testing.T) {
	for _, query := range []string{"?range=yesterday", "?start=15-06-2024", "?range=custom&end=2024-13-01"} {
		t.Run(query, func(t *testing.T) {
			f := newPaymentsFixture()
			req := withClaims(httptest.NewRequest("GET", "/api/payments/transactions"+query, nil), models.RoleOperator, "company-1")
			w := httptest.NewRecorder()
			f.handler.Transactions(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			f.bookings.AssertNotCalled(t, "FindBookingsByCompany", mock.Anything, mock.Anything)
		})
	}
}

func TestPaymentsHandler_Scope(t *testing.T) {
	t.Run("no user", func(t *testing.T) {
		f := newPaymentsFixture()
		w := httptest.NewRecorder()
		f.handler.Buses(w, httptest.NewRequest("GET", "/api/payments/buses", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("superadmin without company", func(t *testing.T) {
		f := newPaymentsFixture()
		req := withClaims(httptest.NewRequest("GET", "/api/payments/buses", nil), models.RoleSuperAdmin, "")
		w := httptest.NewRecorder()
		f.handler.Buses(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("superadmin picks company", func(t *testing.T) {
		f := newPaymentsFixture()
		req := withClaims(httptest.NewRequest("GET", "/api/payments/buses?company_id=company-1", nil), models.RoleSuperAdmin, "")
		w := httptest.NewRecorder()
		f.handler.Buses(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("superadmin picks unknown company", func(t *testing.T) {
		f := newPaymentsFixture()
		f.bookings.On("FindBookingsByCompany", mock.Anything, "no-such-co").Return([]models.Booking{}, nil)
		f.buses.On("FindBusesByCompany", mock.Anything, "no-such-co").Return([]models.Bus{}, nil)

		for _, path := range []string{"/api/payments/buses?company_id=no-such-co", "/api/payments/refresh?company_id=no-such-co"} {
			req := withClaims(httptest.NewRequest("GET", path, nil), models.RoleSuperAdmin, "")
			w := httptest.NewRecorder()
			if strings.Contains(path, "refresh") {
				req.Method = http.MethodPost
				f.handler.Refresh(w, req)
			} else {
				f.handler.Buses(w, req)
			}
			assert.Equal(t, http.StatusNotFound, w.Code, path)
		}

		w := httptest.NewRecorder()
		f.handler.Companies(w, httptest.NewRequest("GET", "/api/payments/companies", nil))
		assert.JSONEq(t, `{"companies":[]}`, w.Body.String())
	})

	t.Run("bookings unavailable", func(t *testing.T) {
		bookings := new(MockBookingCollection)
		bookings.On("FindBookingsByCompany", mock.Anything, "company-9").Return(nil, errors.New("connection refused"))
		h := NewPaymentsHandler(dashboard.NewRegistry(bookings, new(MockBusCollection), new(MockScheduleCollection)))

		req := withClaims(httptest.NewRequest("GET", "/api/payments/transactions", nil), models.RoleOperator, "company-9")
		w := httptest.NewRecorder()
		h.Transactions(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestPaymentsHandler_Buses(t *testing.T) {
	f := newPaymentsFixture()
	req := withClaims(httptest.NewRequest("GET", "/api/payments/buses", nil), models.RoleCompanyAdmin, "company-1")
	w := httptest.NewRecorder()
	f.handler.Buses(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp BusesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Buses, 2)

	assert.Equal(t, "bus-1", resp.Buses[0].BusID)
	assert.Equal(t, 1500.0, resp.Buses[0].TotalRevenue)
	assert.Equal(t, 1500.0, resp.Buses[0].PaidRevenue)
	assert.Equal(t, "bus-2", resp.Buses[1].BusID)
	assert.Equal(t, 800.0, resp.Buses[1].PendingRevenue)
	assert.Equal(t, 1, resp.Buses[1].PendingCount)

	req = withClaims(httptest.NewRequest("GET", "/api/payments/buses?bus_id=bus-2", nil), models.RoleCompanyAdmin, "company-1")
	w = httptest.NewRecorder()
	f.handler.Buses(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Buses, 1)
	assert.Equal(t, "BT 5678", resp.Buses[0].LicensePlate)
}

func TestPaymentsHandler_Export(t *testing.T) {
	f := newPaymentsFixture()
	req := withClaims(httptest.NewRequest("GET", "/api/payments/export?status=paid", nil), models.RoleCompanyAdmin, "company-1")
	w := httptest.NewRecorder()
	f.handler.Export(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="payments-company-1-`))

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, payments.ExportHeader, records[0])
	assert.Equal(t, "BK-001", records[1][0])
	assert.Equal(t, "Doe, Jane", records[1][1])
	assert.Equal(t, "1500", records[1][5])
}

func TestPaymentsHandler_Refresh(t *testing.T) {
	f := newPaymentsFixture()

	req := withClaims(httptest.NewRequest("POST", "/api/payments/refresh", nil), models.RoleCompanyAdmin, "company-1")
	w := httptest.NewRecorder()
	f.handler.Refresh(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fresh", resp.Status)
	assert.True(t, resp.Fetched)
	assert.Equal(t, 2, resp.Transactions)

	// A second refresh sees the same booking ids and skips the fetch.
	w = httptest.NewRecorder()
	f.handler.Refresh(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Fetched)
	f.schedules.AssertNumberOfCalls(t, "FindSchedulesByIDs", 1)

	w = httptest.NewRecorder()
	f.handler.Companies(w, httptest.NewRequest("GET", "/api/payments/companies", nil))
	assert.JSONEq(t, `{"companies":["company-1"]}`, w.Body.String())
}

func TestPaymentsHandler_MethodNotAllowed(t *testing.T) {
	f := newPaymentsFixture()
	for name, h := range map[string]http.HandlerFunc{
		"transactions": f.handler.Transactions,
		"buses":        f.handler.Buses,
		"export":       f.handler.Export,
		"companies":    f.handler.Companies,
	} {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest("DELETE", "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, name)
	}

	w := httptest.NewRecorder()
	f.handler.Refresh(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestParseCriteria(t *testing.T) {
	c, err := parseCriteria(map[string][]string{"start": {"2024-06-01"}, "end": {"2024-06-10"}})
	require.NoError(t, err)
	assert.Equal(t, payments.RangeCustom, c.Range)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local), c.Start)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.Local), c.End)

	c, err = parseCriteria(map[string][]string{"range": {"7days"}, "start": {"2024-06-01"}})
	require.NoError(t, err)
	assert.Equal(t, payments.RangeLast7Days, c.Range)

	c, err = parseCriteria(nil)
	require.NoError(t, err)
	assert.Equal(t, payments.RangeAll, c.Range)
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewHealthHandler(func(context.Context) error { return errors.New("no primary") }).
		ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
