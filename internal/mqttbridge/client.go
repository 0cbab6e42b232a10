package mqttbridge

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// milliseconds
	defaultDisconnectQuiesce = 250

	defaultKeepAlive = 60 * time.Second
	maxQoS           = 2
	maxPayloadSize   = 1 << 20
)

// Config describes the broker connection
type Config struct {
	// Broker URL, e.g. tcp://localhost:1883
	Broker   string
	ClientID string
	Username string
	Password string

	TopicPrefix string
	QoS         byte
	Retain      bool

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "blecentral-" + uuid.NewString()
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	return c
}

// Client wraps paho.mqtt.golang. Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    Config
	logger *logrus.Logger
}

// buildClientOptions creates paho options from the bridge config,
// including a retained Last Will on the status topic.
func buildClientOptions(cfg Config, logger *logrus.Logger) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	opts.SetBinaryWill(StatusTopic(cfg.TopicPrefix), buildStatusPayload("offline", cfg.ClientID, time.Time{}), 1, true)

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.WithError(err).WithField("broker", cfg.Broker).Warn("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.WithField("broker", cfg.Broker).Debug("MQTT connected")
	})

	return opts
}

// Connect connects to the broker and publishes the online status
func Connect(cfg Config, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	cfg = cfg.withDefaults()

	c := &Client{
		client: pahomqtt.NewClient(buildClientOptions(cfg, logger)),
		cfg:    cfg,
		logger: logger,
	}

	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.publish(StatusTopic(cfg.TopicPrefix), buildStatusPayload("online", cfg.ClientID, time.Now()), 1, true); err != nil {
		logger.WithError(err).Warn("Failed to publish MQTT online status")
	}

	logger.WithFields(logrus.Fields{
		"broker":    cfg.Broker,
		"client_id": cfg.ClientID,
	}).Info("Connected to MQTT broker")

	return c, nil
}

// TopicPrefix returns the configured topic prefix
func (c *Client) TopicPrefix() string {
	return c.cfg.TopicPrefix
}

// Publish sends payload to topic with the configured QoS and retain flag
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, c.cfg.QoS, c.cfg.Retain)
}

func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.cfg.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes the offline status and disconnects
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnected() {
		status := buildStatusPayload("offline", c.cfg.ClientID, time.Now())
		if err := c.publish(StatusTopic(c.cfg.TopicPrefix), status, 1, true); err != nil {
			c.logger.WithError(err).Debug("Failed to publish MQTT offline status")
		}
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
