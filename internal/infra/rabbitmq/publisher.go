package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// DefaultQueue receives completed match results.
const DefaultQueue = "match.completed"

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends match results to a durable queue.
type Publisher struct {
	conn  *amqp.Connection
	queue string
	now   func() time.Time

	mu      sync.Mutex
	channel channel
}

type matchCompleted struct {
	Type        string                `json:"type"`
	Result      domain.MatchResult    `json:"result"`
	Ratings     []domain.RatingChange `json:"ratings"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// Dial connects to the broker and declares queue.
func Dial(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newPublisher(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Publisher{channel: ch, queue: queue, now: time.Now}, nil
}

func (p *Publisher) PublishMatchResult(ctx context.Context, result domain.MatchResult) error {
	body, err := json.Marshal(matchCompleted{
		Type:        DefaultQueue,
		Result:      result,
		Ratings:     app.RatingChanges(result.Standings),
		PublishedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("encode match result: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    result.MatchID,
			Body:         body,
			Timestamp:    p.now(),
		},
	)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
