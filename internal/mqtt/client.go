// Package mqtt carries detection batches and node heartbeats from capture
// nodes to the aggregation server over an MQTT broker.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

// Config describes the broker connection.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// DefaultTopicPrefix roots every topic this package uses.
const DefaultTopicPrefix = "dpd"

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte) error

// Transport is the broker surface used by Publisher and Consumer.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Client is a connected paho client.
type Client struct {
	client paho.Client
}

const connectTimeout = 10 * time.Second

// NewClient connects to cfg.Broker with auto-reconnect enabled.
func NewClient(cfg Config) (*Client, error) {
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
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		monitoring.Warnf("mqtt connection to %s lost: %v", cfg.Broker, err)
	})

	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	monitoring.Logf("connected to mqtt broker %s as %q", cfg.Broker, cfg.ClientID)
	return &Client{client: c}, nil
}

// Publish sends payload and waits for the broker to acknowledge it.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	tok := c.client.Publish(topic, qos, retained, payload)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. Handler errors are logged; the
// message is still acknowledged.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	tok := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			monitoring.Warnf("mqtt message on %s: %v", msg.Topic(), err)
		}
	})
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports the live connection state.
func (c *Client) IsConnected() bool { return c.client.IsConnected() }

// Disconnect closes the connection after a short drain.
func (c *Client) Disconnect() { c.client.Disconnect(250) }
