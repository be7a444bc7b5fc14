// Package broker maintains the MQTT connection to the garden sensor's topic
// and feeds raw messages into the ingestion pipeline. Reconnection is handled
// by the client at a fixed interval; messages published while disconnected
// are lost (no replay).
package broker

import (
	"context"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"garden-push-backend/config"
)

// MessageHandler consumes one raw payload from the subscribed topic.
type MessageHandler func(ctx context.Context, payload []byte)

// Client wraps the paho MQTT client for the single-topic subscription.
type Client struct {
	cfg     *config.BrokerConfig
	handler MessageHandler
	client  mqtt.Client
}

// NewClient creates the broker client. Connect must be called before any
// message is delivered.
func NewClient(cfg *config.BrokerConfig, handler MessageHandler) *Client {
	c := &Client{cfg: cfg, handler: handler}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.ReconnectInterval).
		SetMaxReconnectInterval(cfg.ReconnectInterval)

	opts.OnConnect = func(client mqtt.Client) {
		log.Printf("connected to MQTT broker %s", cfg.URL)
		token := client.Subscribe(cfg.Topic, 0, c.onMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				log.Printf("failed to subscribe to %s: %v", cfg.Topic, err)
			} else {
				log.Printf("subscribed to topic %s", cfg.Topic)
			}
		}()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Printf("reconnecting to MQTT broker %s", cfg.URL)
	}

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection. With connect-retry enabled the client keeps
// trying in the background, so only option errors are surfaced here.
func (c *Client) Connect() error {
	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("MQTT connect error: %v", err)
		}
	}()
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if msg.Topic() != c.cfg.Topic {
		return
	}
	c.handler(context.Background(), msg.Payload())
}

// String describes the client's target for logs.
func (c *Client) String() string {
	return fmt.Sprintf("mqtt %s topic %s", c.cfg.URL, c.cfg.Topic)
}
