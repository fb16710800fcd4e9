package format

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// MQTT defaults.
const (
	DefaultMQTTTopic   = "pulsebar/blocks"
	DefaultMQTTTimeout = 5 * time.Second
)

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// publisher is the subset of mqtt.Client the sink uses.
type publisher interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every render's JSON block array as a retained message
// so late subscribers see the current bar immediately. The broker is
// optional: while it is unreachable renders are held back, and the latest
// one is published once the client (re)connects.
type MQTTSink struct {
	client  publisher
	logger  *slog.Logger
	topic   string
	qos     byte
	timeout time.Duration

	mu   sync.Mutex
	last []byte
}

// NewMQTT returns a sink for cfg. The connection is opened by Init and
// retried in the background until it succeeds.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) *MQTTSink {
	if cfg.ClientID == "" {
		host, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("pulsebar-%s-%d", host, os.Getpid())
	}

	s := &MQTTSink{}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		s.logger.Info("mqtt connected", "broker", cfg.Broker)
		s.flush()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	s.init(mqtt.NewClient(opts), cfg, logger)
	return s
}

func newMQTTSink(client publisher, cfg MQTTConfig, logger *slog.Logger) *MQTTSink {
	s := &MQTTSink{}
	s.init(client, cfg, logger)
	return s
}

func (s *MQTTSink) init(client publisher, cfg MQTTConfig, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	s.client = client
	s.logger = logger
	s.topic = cfg.Topic
	s.qos = cfg.QoS
	s.timeout = cfg.Timeout
}

// Init starts connecting to the broker. A broker that is not reachable
// yet is logged and never fails the bar.
func (s *MQTTSink) Init() error {
	if err := s.wait(s.client.Connect()); err != nil {
		s.logger.Warn("mqtt unavailable, publishing once connected", "topic", s.topic, "err", err)
	}
	return nil
}

// Render publishes the visible blocks to the topic. While disconnected
// the payload is only remembered.
func (s *MQTTSink) Render(snap block.Snapshot) error {
	payload, err := Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = payload
	s.mu.Unlock()

	if !s.client.IsConnected() {
		return nil
	}
	return s.publish(payload)
}

// Close disconnects, giving in-flight messages a moment to finish.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

// flush republishes the latest render after a (re)connect.
func (s *MQTTSink) flush() {
	s.mu.Lock()
	payload := s.last
	s.mu.Unlock()
	if payload == nil {
		return
	}
	if err := s.publish(payload); err != nil {
		s.logger.Warn("mqtt republish failed", "err", err)
	}
}

func (s *MQTTSink) publish(payload []byte) error {
	if err := s.wait(s.client.Publish(s.topic, s.qos, true, payload)); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", s.topic, err)
	}
	return nil
}

func (s *MQTTSink) wait(t mqtt.Token) error {
	if !t.WaitTimeout(s.timeout) {
		return fmt.Errorf("timed out after %s", s.timeout)
	}
	return t.Error()
}
