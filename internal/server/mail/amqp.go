package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var dialAMQP = func(rawURL string) (*amqp.Connection, error) {
	return amqp.DialConfig(rawURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
}

// AMQPGateway publishes messages as JSON to a durable topic exchange; a
// separate mail worker consumes and delivers them.
type AMQPGateway struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	log        logging.Logger
}

func validateAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewAMQPGateway(rawURL, exchange, routingKey string, log logging.Logger) (*AMQPGateway, error) {
	clean, err := validateAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := dialAMQP(clean)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	g, err := newAMQPGatewayWithChannel(ch, exchange, routingKey, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	g.conn = conn
	return g, nil
}

func newAMQPGatewayWithChannel(ch channel, exchange, routingKey string, log logging.Logger) (*AMQPGateway, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPGateway{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		log:        log.With("module", "mail", "exchange", exchange),
	}, nil
}

func (g *AMQPGateway) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	err = g.ch.PublishWithContext(ctx, g.exchange, g.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.CreatedAt,
		Type:         msg.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}

	g.log.Debug(ctx, "mail queued", "kind", msg.Kind, "routing_key", g.routingKey)
	return nil
}

func (g *AMQPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	if g.ch != nil {
		errs = append(errs, g.ch.Close())
	}
	if g.conn != nil {
		errs = append(errs, g.conn.Close())
	}
	return errors.Join(errs...)
}
