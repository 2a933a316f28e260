package broadcast

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTTBus publishes events to an MQTT broker.
type MQTTBus struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

func NewMQTTBus(opts MQTTOptions) (*MQTTBus, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetCleanSession(true)
	co.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return NewMQTTBusWithClient(client, opts.QoS), nil
}

func NewMQTTBusWithClient(client mqtt.Client, qos byte) *MQTTBus {
	return &MQTTBus{client: client, qos: qos, timeout: 2 * time.Second}
}

// Publish waits at most the bus timeout or until ctx is done.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	token := b.client.Publish(topic, b.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.timeout):
		return fmt.Errorf("publish to %s: timed out after %s", topic, b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *MQTTBus) Close() {
	b.client.Disconnect(250)
}
