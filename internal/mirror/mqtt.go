package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 250
)

// topicReplacer strips MQTT wildcard and level separators from location names.
var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// MQTT publishes each observation as JSON to <prefix>/<location>/temperature.
type MQTT struct {
	client  pahomqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTT connects to the configured broker. It returns ErrDisabled when no
// broker is configured.
func NewMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, ErrDisabled
	}

	client := pahomqtt.NewClient(buildClientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newMQTT(client, cfg), nil
}

func newMQTT(client pahomqtt.Client, cfg config.MQTTConfig) *MQTT {
	return &MQTT{
		client:  client,
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:     byte(cfg.QoS), // #nosec G115 -- validated to 0..2
		timeout: defaultPublishTimeout,
	}
}

// buildClientOptions creates paho options with auto-reconnect and a clean session.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	return opts
}

func (m *MQTT) Name() string {
	return "mqtt"
}

// Topic returns the topic observations for location are published to.
func (m *MQTT) Topic(location string) string {
	return fmt.Sprintf("%s/%s/temperature", m.prefix, topicReplacer.Replace(location))
}

// mqttPayload is the published message. Temperature is null for NaN and infinite readings.
type mqttPayload struct {
	Location    string    `json:"location"`
	Temperature *float64  `json:"temperature"`
	Time        time.Time `json:"time"`
}

func newMQTTPayload(obs weather.Observation) mqttPayload {
	p := mqttPayload{Location: obs.Location, Time: obs.Timestamp.UTC()}
	if !math.IsNaN(obs.Temperature) && !math.IsInf(obs.Temperature, 0) {
		v := obs.Temperature
		p.Temperature = &v
	}
	return p
}

// Publish sends obs and waits for the broker acknowledgement.
func (m *MQTT) Publish(ctx context.Context, obs weather.Observation) error {
	payload, err := json.Marshal(newMQTTPayload(obs))
	if err != nil {
		return fmt.Errorf("encoding observation: %w", err)
	}

	token := m.client.Publish(m.Topic(obs.Location), m.qos, false, payload)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish timed out after %v", m.timeout)
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(defaultDisconnectQuiesce)
}
