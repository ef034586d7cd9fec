// Package events publishes tee-time and group notifications to a topic
// exchange. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	TeeTimeCreated    = "teetime.created"
	TeeTimeJoined     = "teetime.joined"
	TeeTimeWaitlisted = "teetime.waitlisted"
	TeeTimeLeft       = "teetime.left"
	TeeTimePromoted   = "teetime.promoted"
	TeeTimeCancelled  = "teetime.cancelled"
	GroupMemberAdded  = "group.member_added"
)

type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// TeeTime is the body of every teetime.* event.
type TeeTime struct {
	TeeTimeID string    `json:"teeTimeId"`
	GroupID   string    `json:"groupId"`
	CourseID  string    `json:"courseId"`
	UserID    string    `json:"userId,omitempty"`
	DateTime  time.Time `json:"dateTime"`
	Status    string    `json:"status,omitempty"`
}

type Member struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
}

type nop struct{}

func (nop) Publish(context.Context, string, any) error { return nil }
func (nop) Close() error                                { return nil }

// Nop drops every event.
var Nop Publisher = nop{}

type AMQP struct {
	mu       sync.Mutex // amqp channels are not safe for concurrent publishes
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQP{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQP) Publish(ctx context.Context, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         b,
	})
}

func (p *AMQP) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

type Event struct {
	Key     string
	Payload any
}

func (r *Recorder) Publish(_ context.Context, key string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{Key: key, Payload: payload})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Keys returns the routing keys published so far, in order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Key
	}
	return out
}
