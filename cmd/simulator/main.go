package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/config"
	"github.com/ukydev/busline-payments/internal/db"
	"github.com/ukydev/busline-payments/internal/events"
	"github.com/ukydev/busline-payments/internal/models"
)

// Route is a city pair served by the simulated company.
type Route struct {
	Origin      string
	Destination string
	Price       float64
}

var routes = []Route{
	{Origin: "Lilongwe", Destination: "Blantyre", Price: 15000},
	{Origin: "Blantyre", Destination: "Lilongwe", Price: 15000},
	{Origin: "Lilongwe", Destination: "Mzuzu", Price: 18000},
	{Origin: "Mzuzu", Destination: "Lilongwe", Price: 18000},
	{Origin: "Blantyre", Destination: "Zomba", Price: 5000},
	{Origin: "Zomba", Destination: "Blantyre", Price: 5000},
	{Origin: "Lilongwe", Destination: "Salima", Price: 7000},
	{Origin: "Mangochi", Destination: "Blantyre", Price: 9000},
}

var (
	busTypes       = []string{"coach", "luxury", "mini"}
	departures     = []string{"06:00", "08:30", "11:00", "14:30", "17:00", "21:00"}
	firstNames     = []string{"Chikondi", "Thoko", "Kondwani", "Mphatso", "Tiwonge", "Limbani", "Chisomo", "Yamikani"}
	lastNames      = []string{"Banda", "Phiri", "Mwale", "Chirwa", "Nyirenda", "Kumwenda", "Gondwe"}
	paymentMethods = []string{"card", "mobile_money", "cash"}
)

// BookingStore is where simulated bookings are written.
type BookingStore interface {
	InsertBooking(ctx context.Context, booking models.Booking) error
}

// EventPublisher announces simulated bookings.
type EventPublisher interface {
	PublishBookingEvent(ev events.BookingEvent) error
}

// Simulator produces bookings for one company.
type Simulator struct {
	CompanyID string
	Schedules []models.Schedule
	Store     BookingStore
	Publisher EventPublisher
	rng       *rand.Rand
	now       func() time.Time
}

// NewSimulator creates a simulator seeded with seed.
func NewSimulator(companyID string, schedules []models.Schedule, store BookingStore, pub EventPublisher, seed int64) *Simulator {
	return &Simulator{
		CompanyID: companyID,
		Schedules: schedules,
		Store:     store,
		Publisher: pub,
		rng:       rand.New(rand.NewSource(seed)),
		now:       time.Now,
	}
}

func fleet(companyID string, size int, rng *rand.Rand) []models.Bus {
	buses := make([]models.Bus, 0, size)
	for i := 0; i < size; i++ {
		status := models.BusActive
		if rng.Intn(10) == 0 {
			status = models.BusMaintenance
		}
		buses = append(buses, models.Bus{
			ID:           uuid.NewString(),
			CompanyID:    companyID,
			LicensePlate: fmt.Sprintf("%s %04d", []string{"LL", "BT", "MZ", "ZA"}[i%4], 1000+rng.Intn(9000)),
			BusType:      busTypes[rng.Intn(len(busTypes))],
			Capacity:     30 + 10*rng.Intn(4),
			Status:       status,
		})
	}
	return buses
}

func timetable(companyID string, buses []models.Bus, rng *rand.Rand) []models.Schedule {
	schedules := make([]models.Schedule, 0, 2*len(buses))
	for _, bus := range buses {
		for j := 0; j < 2; j++ {
			r := routes[rng.Intn(len(routes))]
			schedules = append(schedules, models.Schedule{
				ID:             uuid.NewString(),
				CompanyID:      companyID,
				BusID:          bus.ID,
				RouteID:        strings.ToLower(r.Origin + "-" + r.Destination),
				Origin:         r.Origin,
				Destination:    r.Destination,
				DepartureTime:  departures[rng.Intn(len(departures))],
				Price:          r.Price,
				AvailableSeats: bus.Capacity,
			})
		}
	}
	return schedules
}

func (s *Simulator) randomPaymentStatus() models.PaymentStatus {
	switch n := s.rng.Intn(100); {
	case n < 70:
		return models.PaymentPaid
	case n < 90:
		return models.PaymentPending
	case n < 97:
		return models.PaymentFailed
	default:
		return models.PaymentRefunded
	}
}

// RandomBooking builds a booking on one of the simulator's schedules.
func (s *Simulator) RandomBooking() models.Booking {
	sc := s.Schedules[s.rng.Intn(len(s.Schedules))]
	seats := 1 + s.rng.Intn(3)

	passengers := make([]models.Passenger, 0, seats)
	seatNumbers := make([]string, 0, seats)
	for i := 0; i < seats; i++ {
		first := firstNames[s.rng.Intn(len(firstNames))]
		last := lastNames[s.rng.Intn(len(lastNames))]
		seat := strconv.Itoa(1 + s.rng.Intn(60))
		passengers = append(passengers, models.Passenger{
			Name:  first + " " + last,
			Email: strings.ToLower(first+"."+last) + "@example.com",
			Seat:  seat,
		})
		seatNumbers = append(seatNumbers, seat)
	}

	status := s.randomPaymentStatus()
	bookingStatus := models.BookingConfirmed
	switch status {
	case models.PaymentPending:
		bookingStatus = models.BookingPending
	case models.PaymentFailed, models.PaymentRefunded:
		bookingStatus = models.BookingCancelled
	}

	ref := ""
	if status != models.PaymentPending {
		ref = "TX-" + strings.ToUpper(uuid.NewString()[:8])
	}

	now := s.now()
	return models.Booking{
		ID:                   uuid.NewString(),
		BookingReference:     fmt.Sprintf("BK-%s-%04d", now.Format("060102"), s.rng.Intn(10000)),
		ScheduleID:           sc.ID,
		CompanyID:            s.CompanyID,
		Passengers:           passengers,
		SeatNumbers:          seatNumbers,
		ContactName:          passengers[0].Name,
		ContactEmail:         passengers[0].Email,
		TotalAmount:          sc.Price * float64(seats),
		PaymentStatus:        status,
		BookingStatus:        bookingStatus,
		PaymentMethod:        paymentMethods[s.rng.Intn(len(paymentMethods))],
		TransactionReference: ref,
		BookingDate:          &now,
	}
}

// Step writes one random booking and announces it.
func (s *Simulator) Step(ctx context.Context) (models.Booking, error) {
	b := s.RandomBooking()
	if err := s.Store.InsertBooking(ctx, b); err != nil {
		return b, fmt.Errorf("insert booking: %w", err)
	}
	if s.Publisher != nil {
		ev := events.BookingEvent{CompanyID: s.CompanyID, BookingID: b.ID, Event: events.EventCreated}
		if err := s.Publisher.PublishBookingEvent(ev); err != nil {
			log.WithError(err).WithField("booking_id", b.ID).Warn("Failed to publish booking event")
		}
	}
	log.WithFields(log.Fields{
		"booking_id": b.ID,
		"reference":  b.BookingReference,
		"amount":     b.TotalAmount,
		"status":     b.PaymentStatus,
	}).Info("Created booking")
	return b, nil
}

// Run steps every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := s.Step(ctx); err != nil {
				log.WithError(err).Error("Simulation step failed")
			}
		}
	}
}

func seed(ctx context.Context, buses db.BusCollection, schedules db.ScheduleCollection, companyID string, fleetSize int, rng *rand.Rand) ([]models.Schedule, error) {
	fl := fleet(companyID, fleetSize, rng)
	for _, b := range fl {
		if err := buses.InsertBus(ctx, b); err != nil {
			return nil, fmt.Errorf("insert bus %s: %w", b.LicensePlate, err)
		}
		log.WithFields(log.Fields{
			"bus_id": b.ID,
			"plate":  b.LicensePlate,
			"type":   b.BusType,
		}).Info("Created bus")
	}

	tt := timetable(companyID, fl, rng)
	for _, sc := range tt {
		if err := schedules.InsertSchedule(ctx, sc); err != nil {
			return nil, fmt.Errorf("insert schedule %s: %w", sc.ID, err)
		}
	}
	log.WithField("schedules", len(tt)).Info("Created timetable")
	return tt, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	companyID := os.Getenv("SIM_COMPANY_ID")
	if companyID == "" {
		companyID = "demo-company"
	}
	fleetSize := envInt("FLEET_SIZE", 10)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2)) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	database := client.Database(cfg.MongoDB)

	log.WithFields(log.Fields{
		"company_id": companyID,
		"fleet_size": fleetSize,
		"interval":   interval,
	}).Info("Starting booking simulation")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	schedules, err := seed(ctx,
		&db.MongoCollection{Collection: database.Collection(db.BusesCollection)},
		&db.MongoCollection{Collection: database.Collection(db.SchedulesCollection)},
		companyID, fleetSize, rng)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed fleet")
	}

	var pub EventPublisher
	if cfg.MQTTBroker != "" {
		mq := events.NewClient(cfg.MQTTBroker, cfg.MQTTClientID+"-simulator")
		if err := events.Connect(mq, 10*time.Second); err != nil {
			log.WithError(err).Warn("MQTT unavailable, bookings will not be announced")
		} else {
			defer mq.Disconnect(250)
			pub = events.NewPublisher(mq, 5*time.Second)
		}
	}

	sim := NewSimulator(companyID, schedules,
		&db.MongoCollection{Collection: database.Collection(db.BookingsCollection)},
		pub, rng.Int63())
	log.Info("Booking simulation started")
	sim.Run(ctx, interval)
}
