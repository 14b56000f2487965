package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"kincore/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// AMQPPublisher publishes persistent JSON events to a topic exchange.
// The routing key is the configured prefix joined with the event type.
type AMQPPublisher struct {
	url          string
	exchangeName string
	routingKey   string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failMu       sync.Mutex
	lastFailure  time.Time
}

func NewAMQPPublisher(url, exchangeName, routingKey string, logger *log.Logger) *AMQPPublisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &AMQPPublisher{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		logger:       logger.WithComponent(log.ComponentEvents),
	}
}

// Connect dials the broker, retrying with exponential backoff until
// attempts are exhausted or ctx ends.
func (p *AMQPPublisher) Connect(ctx context.Context, attempts int) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = p.ensureConnected(); err == nil {
			p.logger.InfoContext(ctx, "Connected to AMQP broker", "exchange", p.exchangeName)
			return nil
		}
		wait := exponentialBackoff(attempt)
		p.logger.WarnContext(ctx, "AMQP connect failed, retrying", log.FieldError, err, "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("connect to AMQP after %d attempts: %w", attempts, err)
}

func (p *AMQPPublisher) ensureConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.channel.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

func (p *AMQPPublisher) dropConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if p.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", e.Type, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.ensureConnected(); err != nil {
		p.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()
	if channel == nil {
		p.recordFailure()
		return fmt.Errorf("publish %s: channel closed", e.Type)
	}

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName,
		p.routingKeyFor(e.Type),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    e.ID,
			Type:         string(e.Type),
			Timestamp:    e.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			p.dropConnection()
		}
		p.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	p.recordSuccess()
	p.logger.DebugContext(ctx, "Published event", log.FieldEventType, string(e.Type), "exchange", p.exchangeName)
	return nil
}

func (p *AMQPPublisher) routingKeyFor(t Type) string {
	if p.routingKey == "" {
		return string(t)
	}
	return p.routingKey + "." + string(t)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func (p *AMQPPublisher) isCircuitOpen() bool {
	if atomic.LoadInt32(&p.state) != StateOpen {
		return false
	}
	p.failMu.Lock()
	last := p.lastFailure
	p.failMu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&p.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (p *AMQPPublisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

func (p *AMQPPublisher) recordFailure() {
	p.failMu.Lock()
	p.lastFailure = time.Now()
	p.failMu.Unlock()

	failures := atomic.AddInt64(&p.failureCount, 1)
	// A failed trial call in half-open reopens immediately.
	if failures >= maxFailures || atomic.LoadInt32(&p.state) == StateHalfOpen {
		if atomic.SwapInt32(&p.state, StateOpen) != StateOpen {
			p.logger.Warn("AMQP circuit breaker opened", "failures", failures)
		}
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
