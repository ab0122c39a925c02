// Package events carries booking change notifications over MQTT.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	topicPrefix = "busline/companies/"
	topicSuffix = "/bookings"

	// BookingWildcard matches the booking topic of every company.
	BookingWildcard = topicPrefix + "+" + topicSuffix

	qos = 1

	defaultTimeout = 10 * time.Second
)

// Booking event kinds published by writers.
const (
	EventCreated       = "created"
	EventUpdated       = "updated"
	EventPaymentUpdate = "payment_updated"
	EventCancelled     = "cancelled"
)

var (
	ErrBadTopic        = errors.New("not a booking topic")
	ErrCompanyMismatch = errors.New("event company does not match topic")
	ErrTimeout         = errors.New("mqtt operation timed out")
)

// BookingEvent announces that a booking of a company changed.
type BookingEvent struct {
	CompanyID string `json:"company_id"`
	BookingID string `json:"booking_id"`
	Event     string `json:"event"`
}

// BookingTopic returns the topic booking events of companyID are published on.
func BookingTopic(companyID string) string {
	return topicPrefix + companyID + topicSuffix
}

// CompanyFromTopic extracts the company id from a booking topic.
func CompanyFromTopic(topic string) (string, error) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicSuffix) {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return id, nil
}

// NewClient builds a paho client that reconnects on its own.
func NewClient(broker, clientID string) mqtt.Client {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.WithField("broker", broker).Info("Connected to MQTT broker")
		})
	return mqtt.NewClient(opts)
}

// Connect connects client, waiting at most timeout.
func Connect(client mqtt.Client, timeout time.Duration) error {
	return wait(client.Connect(), timeout)
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Refresher rebuilds the payment views of a company.
type Refresher interface {
	Refresh(ctx context.Context, companyID string) error
}

// Subscriber refreshes company dashboards when their bookings change.
type Subscriber struct {
	client    mqtt.Client
	refresher Refresher
	timeout   time.Duration

	mu      sync.Mutex
	running map[string]bool
	pending map[string]bool
}

// NewSubscriber creates a subscriber. timeout bounds each refresh.
func NewSubscriber(client mqtt.Client, refresher Refresher, timeout time.Duration) *Subscriber {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Subscriber{
		client:    client,
		refresher: refresher,
		timeout:   timeout,
		running:   make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

// Start subscribes to the booking topics of all companies.
func (s *Subscriber) Start() error {
	if err := wait(s.client.Subscribe(BookingWildcard, qos, s.onMessage), s.timeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", BookingWildcard, err)
	}
	log.WithField("topic", BookingWildcard).Info("Subscribed to booking events")
	return nil
}

// Stop unsubscribes from booking topics.
func (s *Subscriber) Stop() error {
	return wait(s.client.Unsubscribe(BookingWildcard), s.timeout)
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	companyID, err := s.decode(msg.Topic(), msg.Payload())
	if err != nil {
		log.WithError(err).WithField("topic", msg.Topic()).Warn("Dropped booking event")
		return
	}
	s.trigger(companyID)
}

// trigger refreshes companyID off the paho delivery goroutine. Events that
// arrive while a refresh of the same company runs collapse into a single
// follow-up refresh, so a burst costs at most two loads.
func (s *Subscriber) trigger(companyID string) {
	s.mu.Lock()
	if s.running[companyID] {
		s.pending[companyID] = true
		s.mu.Unlock()
		return
	}
	s.running[companyID] = true
	s.mu.Unlock()

	go s.drain(companyID)
}

func (s *Subscriber) drain(companyID string) {
	for {
		if err := s.refresh(context.Background(), companyID); err != nil {
			log.WithError(err).WithField("company_id", companyID).Warn("Failed to apply booking events")
		}

		s.mu.Lock()
		if !s.pending[companyID] {
			delete(s.running, companyID)
			s.mu.Unlock()
			return
		}
		delete(s.pending, companyID)
		s.mu.Unlock()
	}
}

// HandlePayload decodes one booking event and refreshes its company.
func (s *Subscriber) HandlePayload(ctx context.Context, topic string, payload []byte) error {
	companyID, err := s.decode(topic, payload)
	if err != nil {
		return err
	}
	return s.refresh(ctx, companyID)
}

func (s *Subscriber) decode(topic string, payload []byte) (string, error) {
	companyID, err := CompanyFromTopic(topic)
	if err != nil {
		return "", err
	}
	var ev BookingEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", fmt.Errorf("decode booking event: %w", err)
	}
	if ev.CompanyID != "" && ev.CompanyID != companyID {
		return "", fmt.Errorf("%w: %s != %s", ErrCompanyMismatch, ev.CompanyID, companyID)
	}

	log.WithFields(log.Fields{
		"company_id": companyID,
		"booking_id": ev.BookingID,
		"event":      ev.Event,
	}).Debug("Booking event received")
	return companyID, nil
}

func (s *Subscriber) refresh(ctx context.Context, companyID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.refresher.Refresh(ctx, companyID); err != nil {
		return fmt.Errorf("refresh %s: %w", companyID, err)
	}
	return nil
}

// Publisher sends booking events.
type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewPublisher creates a publisher over a connected client.
func NewPublisher(client mqtt.Client, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Publisher{client: client, timeout: timeout}
}

// PublishBookingEvent publishes ev on its company's booking topic.
func (p *Publisher) PublishBookingEvent(ev BookingEvent) error {
	if ev.CompanyID == "" {
		return fmt.Errorf("%w: empty company id", ErrBadTopic)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	topic := BookingTopic(ev.CompanyID)
	if err := wait(p.client.Publish(topic, qos, false, data), p.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
