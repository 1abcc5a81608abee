// Package mqtt feeds sensor reports from an MQTT broker into the seat
// service.  Devices publish their reading on seats/<seatId>/sensor.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/seat-tracker/internal/model"
)

// DefaultTopic is the subscription filter for sensor reports.  The single
// level wildcard marks the position of the seat id.
const DefaultTopic = "seats/+/sensor"

// ErrRateLimited is returned by Handle when a seat reports too often.
var ErrRateLimited = errors.New("sensor report rate limited")

// Reporter applies a sensor reading to a seat.
type Reporter interface {
	ReportSensor(ctx context.Context, seatID, observed string) (model.Seat, error)
}

// Limiter decides whether a seat may report now.
type Limiter interface {
	AllowSensor(ctx context.Context, seatID string) bool
}

// Handler turns MQTT messages into sensor reports.  It holds no broker
// state and can be driven directly in tests.
type Handler struct {
	reporter  Reporter
	limiter   Limiter
	seatLevel int
	timeout   time.Duration
}

// NewHandler builds a handler for messages matching filter.  limiter may
// be nil.
func NewHandler(filter string, r Reporter, l Limiter) (*Handler, error) {
	level := -1
	for i, part := range strings.Split(filter, "/") {
		if part == "+" {
			level = i
			break
		}
	}
	if level < 0 {
		return nil, fmt.Errorf("topic filter %q has no + level for the seat id", filter)
	}
	return &Handler{reporter: r, limiter: l, seatLevel: level, timeout: 5 * time.Second}, nil
}

// Handle parses one message and reports it.
func (h *Handler) Handle(topic string, payload []byte) (model.Seat, error) {
	seatID, err := h.seatID(topic)
	if err != nil {
		return model.Seat{}, err
	}
	observed, err := ParsePayload(payload)
	if err != nil {
		return model.Seat{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if h.limiter != nil && !h.limiter.AllowSensor(ctx, seatID) {
		return model.Seat{}, ErrRateLimited
	}
	return h.reporter.ReportSensor(ctx, seatID, observed)
}

func (h *Handler) seatID(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if h.seatLevel >= len(parts) || parts[h.seatLevel] == "" {
		return "", fmt.Errorf("no seat id in topic %q", topic)
	}
	return parts[h.seatLevel], nil
}

// ParsePayload accepts a bare reading ("red", "vacant"), a JSON string, or
// a JSON object with a "state" field.
func ParsePayload(payload []byte) (string, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return "", errors.New("empty sensor payload")
	}
	switch raw[0] {
	case '{':
		var body struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", fmt.Errorf("decode sensor payload: %w", err)
		}
		if body.State == "" {
			return "", errors.New("sensor payload has no state")
		}
		return body.State, nil
	case '"':
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return "", fmt.Errorf("decode sensor payload: %w", err)
		}
		return s, nil
	}
	return raw, nil
}
