// Package mqttbridge is an optional alternate ingestion transport for
// the same webhook JSON body §6.1 accepts over HTTP. Many scanner
// stacks relay their webhook payloads over MQTT in addition to (or
// instead of) pushing them to an HTTP endpoint; this bridge subscribes
// to a feed topic and a census topic and forwards parsed sightings into
// the same feedclient.Sink the HTTP handler uses. Feature-flagged off
// by default (MQTT.Enabled). Grounded on the teacher's
// internal/mqtt/client.go reconnect/subscribe/message-handler shape.
package mqttbridge

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/lazyscout/lazyscout/internal/feedclient"
	"github.com/lazyscout/lazyscout/internal/metrics"
	"github.com/lazyscout/lazyscout/internal/sighting"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// Config is the subset of config.MQTTConfig the bridge needs.
type Config struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	FeedTopic    string
	CensusTopic  string
	CleanSession bool
}

// Bridge subscribes to the configured topics and forwards decoded
// sightings into sink.ScoutFeed / sink.CensusFeed.
type Bridge struct {
	client mqtt.Client
	cfg    Config
	sink   feedclient.Sink
	logger *utils.Logger
}

// New creates a Bridge. It does not connect; call Connect to start.
func New(cfg Config, sink feedclient.Sink, logger *utils.Logger) *Bridge {
	if cfg.ClientID == "" {
		cfg.ClientID = "lazyscout-" + uuid.NewString()
	}

	b := &Bridge{cfg: cfg, sink: sink, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		metrics.MQTTConnectionStatus.Set(1)
		b.subscribe(client, cfg.FeedTopic, b.handleScout)
		b.subscribe(client, cfg.CensusTopic, b.handleCensus)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		metrics.MQTTConnectionStatus.Set(0)
		b.logger.WithField("error", err.Error()).Warn("lost connection to MQTT broker")
	})

	b.client = mqtt.NewClient(opts)
	return b
}

func (b *Bridge) subscribe(client mqtt.Client, topic string, handler mqtt.MessageHandler) {
	if topic == "" {
		return
	}
	if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		b.logger.WithFields(map[string]interface{}{"topic": topic, "error": token.Error().Error()}).Error("failed to subscribe to MQTT topic")
		return
	}
	b.logger.WithField("topic", topic).Info("subscribed to MQTT topic")
}

// Connect blocks until the broker connection succeeds or times out.
func (b *Bridge) Connect() error {
	token := b.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("connect to MQTT broker: timed out")
	}
	if token.Error() != nil {
		return fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Disconnect gracefully closes the broker connection.
func (b *Bridge) Disconnect() {
	if b.client.IsConnected() {
		b.client.Disconnect(1000)
	}
}

func (b *Bridge) handleScout(client mqtt.Client, msg mqtt.Message) {
	b.forward(msg, b.sink.ScoutFeed)
}

func (b *Bridge) handleCensus(client mqtt.Client, msg mqtt.Message) {
	b.forward(msg, b.sink.CensusFeed)
}

func (b *Bridge) forward(msg mqtt.Message, deliver func(sighting.Sighting)) {
	sightings, err := sighting.ParseBody(msg.Payload())
	if err != nil {
		metrics.MQTTParseErrors.Inc()
		b.logger.WithFields(map[string]interface{}{"topic": msg.Topic(), "error": err.Error()}).Debug("failed to decode MQTT webhook payload")
		return
	}

	metrics.MQTTMessagesReceived.WithLabelValues(msg.Topic()).Inc()
	for _, s := range sightings {
		deliver(s)
	}
}
