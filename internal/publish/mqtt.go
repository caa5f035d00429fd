// Package publish forwards finished sweeps and level alerts to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/rtlsdr-scanner/internal/spectrum"
)

const (
	DefaultPort        = 1883
	DefaultTopicPrefix = "rtlsdr-scanner"

	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
	disconnectWait = 250 // ms
)

// Config holds the MQTT broker settings.
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UseTLS      bool   `yaml:"useTLS"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" {
		return errors.New("publish.Config: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("publish.Config: invalid port: %d", c.Port)
	}
	if c.QoS > 2 {
		return fmt.Errorf("publish.Config: invalid QoS: %d", c.QoS)
	}
	if strings.ContainsAny(c.TopicPrefix, "+#") {
		return fmt.Errorf("publish.Config: topic prefix must not contain wildcards: '%s'", c.TopicPrefix)
	}
	return nil
}

// BrokerURL returns the broker address in the form expected by paho.
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "tls"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Client is the subset of mqtt.Client used by the publisher.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// SweepMessage is the payload published for every finished sweep.
type SweepMessage struct {
	RunID       string               `json:"runID"`
	Device      string               `json:"device"`
	Sweep       int                  `json:"sweep"`
	Timestamp   time.Time            `json:"timestamp"`
	Measurement spectrum.Measurement `json:"measurement"`
	Location    *spectrum.Location   `json:"location,omitempty"`
	Bins        []spectrum.Bin       `json:"bins"`
}

// LevelMessage is the payload published when a bin exceeds the alert level.
type LevelMessage struct {
	RunID     string    `json:"runID"`
	Device    string    `json:"device"`
	Timestamp time.Time `json:"timestamp"`
	Freq      float64   `json:"freq"`  // MHz
	Power     float64   `json:"power"` // dB
}

// WithLogger sets the logger for the publisher
func WithLogger(logger *slog.Logger) func(p *Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClient replaces the paho client, mostly for tests.
func WithClient(client Client) func(p *Publisher) {
	return func(p *Publisher) {
		p.client = client
	}
}

// Publisher publishes scan results under <prefix>/<device>/.
type Publisher struct {
	client Client
	config Config
	device string
	logger *slog.Logger
}

// New creates a publisher and starts connecting to the broker. A failed
// initial connection is not an error; the client keeps retrying in the
// background.
func New(config Config, device string, options ...func(p *Publisher)) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}

	p := Publisher{
		config: config,
		device: device,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&p)
	}

	p.logger = p.logger.With(slog.String("component", "mqtt"), slog.String("broker", config.BrokerURL()))

	if p.client == nil {
		p.client = p.connect()
	}

	return &p, nil
}

func (p *Publisher) connect() mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.BrokerURL())
	opts.SetClientID("rtlsdr-scanner-" + uuid.NewString())

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
	}
	if p.config.Password != "" {
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn(fmt.Sprintf("connection lost: %s (will auto-reconnect)", err))
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.logger.Warn("connection timeout (will retry in background)")
	} else if err := token.Error(); err != nil {
		p.logger.Warn(fmt.Sprintf("initial connection failed: %s (will retry in background)", err))
	}

	return client
}

// Topic returns the full topic for a message kind.
func (p *Publisher) Topic(kind string) string {
	return strings.Join([]string{p.config.TopicPrefix, p.device, kind}, "/")
}

// PublishSweep publishes a finished sweep.
func (p *Publisher) PublishSweep(ctx context.Context, msg *SweepMessage) error {
	return p.publish(ctx, p.Topic("sweep"), msg)
}

// PublishLevel publishes a level alert.
func (p *Publisher) PublishLevel(ctx context.Context, msg *LevelMessage) error {
	return p.publish(ctx, p.Topic("level"), msg)
}

func (p *Publisher) publish(ctx context.Context, topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	token := p.client.Publish(topic, p.config.QoS, p.config.Retain, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timeout", topic)
	}

	if err = token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectWait)
}
