package mqtt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/vaillant2mqtt/internal/config"
)

// Bus is the slice of the broker connection entities use.
type Bus interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, cb func([]byte)) (func(), error)
}

// Client wraps the paho connection with reference-counted topic
// subscriptions that replay on reconnect.
type Client struct {
	client            paho.Client
	availabilityTopic string

	mu     sync.Mutex
	subs   map[string]map[int]func([]byte)
	nextID int
}

func NewClient(cfg config.MQTTConfig) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}

	availabilityTopic := cfg.BaseTopic + "/availability"

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID(cfg.ClientID))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(availabilityTopic, "offline", 0, true)

	c := &Client{
		availabilityTopic: availabilityTopic,
		subs:              make(map[string]map[int]func([]byte)),
	}
	opts.SetDefaultPublishHandler(c.dispatch)
	opts.OnConnect = func(client paho.Client) {
		_ = client.Publish(availabilityTopic, 0, true, "online")
		c.resubscribeAll()
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.client = client
	return c, nil
}

func (c *Client) AvailabilityTopic() string {
	return c.availabilityTopic
}

func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	if token := c.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *Client) Subscribe(topic string, cb func([]byte)) (func(), error) {
	c.mu.Lock()
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]func([]byte))
	}
	id := c.nextID
	c.nextID++
	c.subs[topic][id] = cb
	needSubscribe := len(c.subs[topic]) == 1
	c.mu.Unlock()

	if needSubscribe {
		if token := c.client.Subscribe(topic, 0, nil); token.Wait() && token.Error() != nil {
			return nil, token.Error()
		}
	}

	return func() {
		c.mu.Lock()
		callbacks := c.subs[topic]
		if callbacks == nil {
			c.mu.Unlock()
			return
		}
		delete(callbacks, id)
		shouldUnsub := len(callbacks) == 0
		if shouldUnsub {
			delete(c.subs, topic)
		}
		c.mu.Unlock()
		if shouldUnsub {
			_ = c.client.Unsubscribe(topic).Wait()
		}
	}, nil
}

// Close marks the bridge offline and disconnects.
func (c *Client) Close() {
	_ = c.Publish(c.availabilityTopic, true, []byte("offline"))
	c.client.Disconnect(250)
}

func (c *Client) dispatch(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	callbacks := c.subs[msg.Topic()]
	list := make([]func([]byte), 0, len(callbacks))
	for _, cb := range callbacks {
		list = append(list, cb)
	}
	c.mu.Unlock()
	for _, cb := range list {
		cb(msg.Payload())
	}
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	for _, topic := range topics {
		_ = c.client.Subscribe(topic, 0, nil).Wait()
	}
}

func clientID(base string) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return base + "-" + base64.RawURLEncoding.EncodeToString(nonce)
}
