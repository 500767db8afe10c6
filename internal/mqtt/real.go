package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ostvolt/coolantctl/internal/errors"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// RealClient talks to an actual MQTT broker via paho.
type RealClient struct {
	client paho.Client
}

// NewRealClient connects to the broker and blocks until the connection
// is up or the timeout elapses.
func NewRealClient(broker, clientID string) (*RealClient, error) {
	errFactory := errors.New()

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errFactory.WithMessage(errors.ErrBrokerConnect, "Connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(errors.ErrBrokerConnect, err)
	}

	return &RealClient{client: client}, nil
}

func (c *RealClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	errFactory := errors.New()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errFactory.WithMessage(errors.ErrBrokerPublish, "Publish timeout")
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(errors.ErrBrokerPublish, err)
	}

	return nil
}

func (c *RealClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	errFactory := errors.New()

	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return errFactory.WithMessage(errors.ErrBrokerSubscribe, "Subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(errors.ErrBrokerSubscribe, err)
	}

	return nil
}

func (c *RealClient) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // milliseconds
	return nil
}
