package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RaisinBrand/CedarsApp/internal/config"
	"github.com/RaisinBrand/CedarsApp/internal/metrics"
	"github.com/RaisinBrand/CedarsApp/internal/store"
)

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned by PublishNow while the broker is unreachable
var ErrNotConnected = errors.New("mqtt client not connected")

// Client is the subset of mqtt.Client the publisher needs
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// Publisher republishes the store JSON whenever it is notified
type Publisher struct {
	client  Client
	cfg     config.MQTTConfig
	logger  *slog.Logger
	source  store.Reader
	metrics *metrics.Metrics

	notifyCh chan struct{}

	published uint64
	failed    uint64
	skipped   uint64
	lastError string
	mu        sync.RWMutex
}

// Statistics represents publisher counters
type Statistics struct {
	Connected bool   `json:"connected"`
	Topic     string `json:"topic"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
	LastError string `json:"last_error,omitempty"`
}

// NewClient builds an auto-reconnecting paho client for cfg
func NewClient(cfg config.MQTTConfig, logger *slog.Logger) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected", slog.String("broker", cfg.BrokerURL()))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", slog.String("error", err.Error()))
	})

	return mqtt.NewClient(opts)
}

// NewPublisher creates a publisher reading from source
func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger, source store.Reader, m *metrics.Metrics, client Client) *Publisher {
	return &Publisher{
		client:   client,
		cfg:      cfg,
		logger:   logger,
		source:   source,
		metrics:  m,
		notifyCh: make(chan struct{}, 1),
	}
}

// Connect waits for the initial broker connection until ctx is done.
// Clients that cannot connect themselves are assumed to be connected.
func (p *Publisher) Connect(ctx context.Context) error {
	c, ok := p.client.(mqtt.Client)
	if !ok {
		return nil
	}

	token := c.Connect()
	for {
		if token.WaitTimeout(200 * time.Millisecond) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Notify signals that the store changed. It never blocks; signals that
// arrive while one is pending are merged.
func (p *Publisher) Notify() {
	select {
	case p.notifyCh <- struct{}{}:
	default:
	}
}

// Run publishes after each notification until ctx is cancelled
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("MQTT publisher started",
		slog.String("broker", p.cfg.BrokerURL()),
		slog.String("topic", p.cfg.Topic),
		slog.Int("qos", p.cfg.QoS),
		slog.Bool("retained", p.cfg.IsRetained()),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("MQTT publisher stopped")
			return
		case <-p.notifyCh:
			if err := p.PublishNow(); err != nil && !errors.Is(err, ErrNotConnected) {
				p.logger.Warn("Failed to publish samples",
					slog.String("topic", p.cfg.Topic),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// PublishNow publishes the current store contents once
func (p *Publisher) PublishNow() error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		p.metrics.RecordMQTTSkipped()
		return ErrNotConnected
	}

	payload := p.source.AppendJSON(nil)

	token := p.client.Publish(p.cfg.Topic, byte(p.cfg.QoS), p.cfg.IsRetained(), payload)
	var err error
	if !token.WaitTimeout(publishTimeout) {
		err = fmt.Errorf("publish timeout for topic %s", p.cfg.Topic)
	} else if token.Error() != nil {
		err = fmt.Errorf("publish samples: %w", token.Error())
	}

	p.mu.Lock()
	if err != nil {
		p.failed++
		p.lastError = err.Error()
	} else {
		p.published++
	}
	p.mu.Unlock()

	if err != nil {
		p.metrics.RecordMQTTFailure()
		return err
	}

	p.metrics.RecordMQTTPublish()
	p.logger.Debug("Published samples",
		slog.String("topic", p.cfg.Topic),
		slog.Int("payload_size", len(payload)),
	)
	return nil
}

// GetStatistics returns current publisher statistics
func (p *Publisher) GetStatistics() Statistics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Statistics{
		Connected: p.client.IsConnected(),
		Topic:     p.cfg.Topic,
		Published: p.published,
		Failed:    p.failed,
		Skipped:   p.skipped,
		LastError: p.lastError,
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if c, ok := p.client.(mqtt.Client); ok {
		c.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
}
