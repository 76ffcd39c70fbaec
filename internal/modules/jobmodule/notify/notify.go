// Package notify publishes terminal job events to a message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

const publishTimeout = 5 * time.Second

// Event is the message body published for a finished job.
type Event struct {
	Type      string        `json:"type"`
	JobID     string        `json:"job_id"`
	Filename  string        `json:"filename"`
	Status    types.Status  `json:"status"`
	Error     string        `json:"error,omitempty"`
	OutputRef string        `json:"output_ref,omitempty"`
	Result    *types.Result `json:"result,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventFor builds the event describing a terminal job.
func EventFor(job types.Job) Event {
	ev := Event{
		Type:      "job." + string(job.Status),
		JobID:     job.ID,
		Filename:  job.Filename,
		Status:    job.Status,
		Error:     job.Error,
		OutputRef: job.OutputRef,
		Result:    job.Result,
		Timestamp: time.Now().UTC(),
	}
	if job.CompletedAt != nil {
		ev.Timestamp = job.CompletedAt.UTC()
	}
	return ev
}

// Publisher delivers job events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// AMQPConfig configures the RabbitMQ publisher.
type AMQPConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	Exchange   string
	RoutingKey string
	Retries    int
}

// URL returns the broker connection string.
func (c AMQPConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events as persistent JSON messages.
type AMQPPublisher struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
}

// DialAMQP connects to the broker, retrying a few times, and declares the
// topic exchange when one is configured.
func DialAMQP(cfg AMQPConfig, logger hclog.Logger) (*AMQPPublisher, error) {
	logger = logger.Named("notify")
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < retries; i++ {
		conn, err = amqp.Dial(cfg.URL())
		if err == nil {
			break
		}
		logger.Warn("failed to connect to broker", "attempt", i+1, "host", cfg.Host, "error", err)
		if i < retries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
	}

	logger.Info("connected to broker", "host", cfg.Host, "exchange", cfg.Exchange)
	p := newAMQPPublisher(ch, cfg.Exchange, cfg.RoutingKey)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange, routingKey string) *AMQPPublisher {
	if routingKey == "" {
		routingKey = "video.job"
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Publish sends the event with routing key "<prefix>.<status>".
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		p.exchange,
		p.routingKey+"."+string(ev.Status),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.Timestamp,
			MessageId:    ev.JobID,
		},
	)
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Notifier adapts a Publisher to a registry observer.
type Notifier struct {
	pub    Publisher
	logger hclog.Logger
}

// NewNotifier wraps pub. A nil publisher drops events.
func NewNotifier(pub Publisher, logger hclog.Logger) *Notifier {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &Notifier{pub: pub, logger: logger.Named("notify")}
}

// Observe publishes an event for terminal snapshots. Broker failures are
// logged; they never affect the job.
func (n *Notifier) Observe(job types.Job) {
	if !job.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, EventFor(job)); err != nil {
		n.logger.Warn("failed to publish job event", "job_id", job.ID, "error", err)
	}
}

// Close closes the underlying publisher.
func (n *Notifier) Close() error {
	return n.pub.Close()
}
