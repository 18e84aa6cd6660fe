package casaMqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaEntities"
)

// commandTimeout covers login plus one write including its retry.
const commandTimeout = 45 * time.Second

// Commands is satisfied by *casaEntities.Set.
type Commands interface {
	Entities() []casaEntities.Entity
	OnChange(fn func(casaEntities.Entity))
	Command(ctx context.Context, key string, payload string) error
}

// Bridge publishes entity states retained on <prefix>/<key>/state, their
// attributes as JSON on <prefix>/<key>/attributes and applies payloads
// received on <prefix>/<key>/set.
type Bridge struct {
	broker Broker
	set    Commands
	prefix string
	qos    byte
	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBridge(broker Broker, set Commands, cfg Config, logger *zap.SugaredLogger) *Bridge {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "casa"
	}
	return &Bridge{
		broker: broker,
		set:    set,
		prefix: prefix,
		qos:    cfg.Qos,
		logger: logger,
	}
}

// Start hooks into entity changes, publishes the states known so far and
// listens for commands until Close.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.set.OnChange(b.publishState)
	if err := b.broker.Subscribe(SetWildcard(b.prefix), b.qos, b.handleSet); err != nil {
		b.cancel()
		return err
	}
	for _, e := range b.set.Entities() {
		if e.State() != "" {
			b.publishState(e)
		}
	}
	b.logger.Infof("MQTT bridge listening on %s", SetWildcard(b.prefix))
	return nil
}

func (b *Bridge) publishState(e casaEntities.Entity) {
	topic := StateTopic(b.prefix, e.Key())
	if err := b.broker.Publish(topic, b.qos, true, []byte(e.State())); err != nil {
		b.logger.Warnf("Publishing %s failed: %v", topic, err)
	}

	a, ok := e.(casaEntities.Attributer)
	if !ok {
		return
	}
	payload, err := json.Marshal(a.Attributes())
	if err != nil {
		b.logger.Warnf("Encoding attributes of %s failed: %v", e.Key(), err)
		return
	}
	topic = AttributesTopic(b.prefix, e.Key())
	if err := b.broker.Publish(topic, b.qos, true, payload); err != nil {
		b.logger.Warnf("Publishing %s failed: %v", topic, err)
	}
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	key, ok := KeyFromSetTopic(b.prefix, topic)
	if !ok {
		b.logger.Warnf("Ignoring message on %s", topic)
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	// Set logs failures itself
	_ = b.set.Command(ctx, key, string(payload))
}

// Close stops command handling and disconnects from the broker.
func (b *Bridge) Close() {
	b.set.OnChange(nil)
	if b.cancel != nil {
		b.cancel()
	}
	b.broker.Close()
}
