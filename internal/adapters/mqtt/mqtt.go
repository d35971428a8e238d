// Package mqtt ingests hardware measurements published on an MQTT topic.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

const (
	defaultQoS            = byte(1)
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// ErrInvalidPayload is returned for messages that are not a JSON measurement.
var ErrInvalidPayload = errors.New("mqtt: invalid measurement payload")

// Handler receives every decoded measurement.
type Handler func(ctx context.Context, m model.Measurement) error

// Config holds the broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Subscriber owns a paho client subscribed to one topic. The subscription
// is renewed on every reconnect.
type Subscriber struct {
	cfg     Config
	client  paho.Client
	handler Handler
	logger  logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSubscriber builds a subscriber. Nothing connects until Start.
func NewSubscriber(cfg Config, handler Handler, log logger.Logger) *Subscriber {
	if cfg.QoS > 2 {
		cfg.QoS = defaultQoS
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Subscriber{cfg: cfg, handler: handler, logger: log.Named("mqtt")}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		metrics.RecordErrorByComponent("mqtt", "connection_lost")
		s.logger.Warn(s.context(), "connection lost", logger.Error(err))
	})
	s.client = paho.NewClient(opts)
	return s
}

// Start connects to the broker. Messages are handled until ctx is done or
// Close is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	token := s.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("connect to %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.Broker, err)
	}
	go func() {
		<-s.ctx.Done()
		s.client.Disconnect(disconnectQuiesceMs)
	}()
	return nil
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) onConnect(c paho.Client) {
	ctx := s.context()
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		_ = s.HandleMessage(s.context(), msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		metrics.RecordErrorByComponent("mqtt", "subscribe")
		s.logger.Error(ctx, "subscribe failed", logger.String("topic", s.cfg.Topic), logger.Error(token.Error()))
		return
	}
	s.logger.Info(ctx, "subscribed", logger.String("topic", s.cfg.Topic))
}

// HandleMessage decodes one payload and passes it to the handler. Errors
// are logged and returned; a bad message never stops the subscription.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	var m model.Measurement
	if err := json.Unmarshal(payload, &m); err != nil {
		metrics.RecordErrorByComponent("mqtt", "decode")
		s.logger.Warn(ctx, "invalid payload", logger.String("topic", topic), logger.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.handler(ctx, m); err != nil {
		s.logger.Warn(ctx, "measurement rejected",
			logger.String("topic", topic),
			logger.String("readingId", m.ReadingID),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func (s *Subscriber) context() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
