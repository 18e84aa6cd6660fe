// Package casaMqtt mirrors entity states to an MQTT broker and forwards
// commands from set topics back to the controller.
package casaMqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	maxReconnectDelay = 2 * time.Minute

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrTimeout          = errors.New("mqtt: operation timed out")
	ErrInvalidQos       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
)

type Config struct {
	Broker      string
	ClientId    string
	Username    string
	Password    string
	TopicPrefix string
	Qos         byte
}

// MessageHandler receives the topic and payload of an incoming message.
type MessageHandler func(topic string, payload []byte)

// Broker is the part of an MQTT connection the bridge needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Close()
}

type pahoBroker struct {
	client pahomqtt.Client
	cfg    Config
	logger *zap.SugaredLogger

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Dial connects to the broker. The status topic carries a retained online
// message while connected and the broker publishes offline as last will.
func Dial(cfg Config, logger *zap.SugaredLogger) (Broker, error) {
	if cfg.Qos > 2 {
		return nil, ErrInvalidQos
	}
	b := &pahoBroker{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientId)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectDelay)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	// commands may block on the controller, do not stall the router
	opts.SetOrderMatters(false)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), statusOffline, cfg.Qos, true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warnf("MQTT connection lost: %v", err)
	})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	logger.Infof("Connected to MQTT broker %s", cfg.Broker)
	return b, nil
}

// handleConnect runs on the first connect and every reconnect.
func (b *pahoBroker) handleConnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, sub := range b.subs {
		b.client.Subscribe(topic, sub.qos, b.wrap(sub.handler))
	}
	b.client.Publish(StatusTopic(b.cfg.TopicPrefix), b.cfg.Qos, true, statusOnline)
}

func (b *pahoBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := b.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: publish %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (b *pahoBroker) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := b.client.Subscribe(topic, qos, b.wrap(handler))
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: subscribe %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	b.mu.Lock()
	b.subs[topic] = subscription{qos: qos, handler: handler}
	b.mu.Unlock()
	return nil
}

// Close publishes offline and disconnects.
func (b *pahoBroker) Close() {
	if b.client.IsConnected() {
		token := b.client.Publish(StatusTopic(b.cfg.TopicPrefix), b.cfg.Qos, true, statusOffline)
		token.WaitTimeout(operationTimeout)
	}
	b.client.Disconnect(disconnectQuiesce)
}

func (b *pahoBroker) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Errorf("MQTT handler for %s panicked: %v", msg.Topic(), r)
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
