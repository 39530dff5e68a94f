package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

const (
	mqttKeepAlive         = 60 * time.Second
	mqttMaxReconnectDelay = 30 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
)

// MQTTSubscriber offers every timestamp published on an MQTT topic.
type MQTTSubscriber struct {
	recorder

	client pahomqtt.Client
	config MQTTConfig
	logger *slog.Logger
}

// NewMQTTSubscriber creates an MQTT subscriber. Nothing connects until Start.
func NewMQTTSubscriber(cfg MQTTConfig, offerer Offerer, metrics *observability.Metrics, logger *slog.Logger) *MQTTSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt-subscriber")

	s := &MQTTSubscriber{
		recorder: recorder{origin: "mqtt", offerer: offerer, metrics: metrics, logger: logger},
		config:   cfg,
		logger:   logger,
	}
	s.client = pahomqtt.NewClient(s.clientOptions())
	return s
}

func (s *MQTTSubscriber) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}

	// Clean sessions drop subscriptions on reconnect, so the connect
	// handler subscribes every time.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(mqttMaxReconnectDelay)
	opts.SetConnectTimeout(s.config.ConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warn("disconnected from MQTT broker", "error", err)
	})

	return opts
}

func (s *MQTTSubscriber) onConnect(client pahomqtt.Client) {
	token := client.Subscribe(s.config.Topic, byte(s.config.QoS), s.handle)
	if !token.WaitTimeout(s.config.ConnectTimeout) {
		s.logger.Error("MQTT subscribe timed out", "topic", s.config.Topic)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("MQTT subscribe failed", "topic", s.config.Topic, "error", err)
		return
	}
	s.logger.Info("subscribed to timestamps", "topic", s.config.Topic, "qos", s.config.QoS)
}

// Start connects to the broker. Subscription happens on every connect.
func (s *MQTTSubscriber) Start(_ context.Context) error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.config.ConnectTimeout) {
		return fmt.Errorf("failed to connect to MQTT broker %s: timeout after %v", s.config.Broker, s.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", s.config.Broker, err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *MQTTSubscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Disconnect(mqttDisconnectQuiesce)
	}
	s.logger.Info("MQTT subscriber stopped")
}

func (s *MQTTSubscriber) handle(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.record(msg.Topic(), msg.Payload())
}
