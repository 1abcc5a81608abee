package mqtt

import (
	"errors"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/iliyamo/seat-tracker/internal/seat"
)

// Subscriber listens for sensor reports on an actual MQTT broker.
type Subscriber struct {
	client  paho.Client
	topic   string
	handler *Handler
}

// NewSubscriber connects to broker and subscribes to topic.  The
// subscription is renewed on every reconnect.
func NewSubscriber(broker, clientID, topic string, h *Handler) (*Subscriber, error) {
	s := &Subscriber{topic: topic, handler: h}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return s, nil
}

func (s *Subscriber) subscribe(c paho.Client) {
	// QoS 1: a missed vacancy report would leave a seat held.
	token := c.Subscribe(s.topic, 1, s.onMessage)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("mqtt: subscribe %s: timeout", s.topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("mqtt: subscribe %s: %v", s.topic, err)
		return
	}
	log.Printf("mqtt: subscribed to %s", s.topic)
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	cur, err := s.handler.Handle(msg.Topic(), msg.Payload())
	switch {
	case err == nil:
		log.Printf("mqtt: %s -> %s", msg.Topic(), cur.State)
	case errors.Is(err, ErrRateLimited), seat.KindOf(err) == seat.KindPolicy:
		// expected noise from chatty devices
	default:
		log.Printf("mqtt: %s %q: %v", msg.Topic(), msg.Payload(), err)
	}
}

// IsConnected reports whether the broker connection is up.
func (s *Subscriber) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close unsubscribes and disconnects from the broker.
func (s *Subscriber) Close() error {
	if s.client.IsConnectionOpen() {
		s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(1000) // 1 second timeout
	return nil
}
