// Package queue contains the background consumer that listens to the
// seat.events queue and writes one line per event to a seat activity log.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer appends every seat event to <Dir>/seat.log.
type Consumer struct {
    URL   string
    Queue string
    Dir   string
}

// NewConsumer returns a consumer for url writing into dir.
func NewConsumer(url, dir string) *Consumer {
    if url == "" {
        url = DefaultURL
    }
    if dir == "" {
        dir = "logs"
    }
    return &Consumer{URL: url, Queue: SeatQueueName, Dir: dir}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures back off exponentially up to 30s; a closed delivery channel
// triggers a reconnect.  Offending messages are rejected without requeue
// so the consumer keeps running.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Printf("seat-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("seat-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("seat-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.HandleMessage(d.Body); err != nil {
                log.Printf("seat-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one event and appends it to the activity log.
func (c *Consumer) HandleMessage(body []byte) error {
    var ev SeatEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Seat == "" || ev.Action == "" {
        return errors.New("event missing seat or action")
    }
    if err := os.MkdirAll(c.Dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.Dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.Dir, "seat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders ev as a single human-friendly log line.
func FormatLine(ev SeatEvent) string {
    occupant := ev.Occupant
    if occupant == "" {
        occupant = "-"
    }
    line := fmt.Sprintf("[%s] seat=%s | action=%s | source=%s | state=%s | occupant=%s",
        ev.At, ev.Seat, ev.Action, ev.Source, ev.State, occupant)
    if ev.BreakUntil != "" {
        line += " | break_until=" + ev.BreakUntil
    }
    return line + "\n"
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
