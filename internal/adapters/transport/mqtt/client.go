// Package mqtt implements the remote service contract over MQTT v5
// publish/subscribe.
//
// Requests are published to "{prefix}/json request" with a correlation id and
// the response topic "{prefix}/json response". Messages arriving on the
// response topic with a known correlation id complete the pending request;
// messages without one are samples pushed by the service.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/okian/bikewatch/internal/adapters/mq/queue"
	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultKeepAlive = 5
	defaultQueueSize = 64
)

type response struct {
	payload []byte
	status  string
}

// Client is an MQTT-backed transport.Transport and transport.Pusher.
type Client struct {
	client    *paho.Client
	clientID  string
	reqTopic  string
	respTopic string
	timeout   time.Duration
	queueSize int
	logger    logger.Logger

	mu      sync.Mutex
	pending map[string]chan response

	pushed *queue.InMemoryQueue[transport.Message]
	closed atomic.Bool
}

var (
	_ transport.Transport = (*Client)(nil)
	_ transport.Pusher    = (*Client)(nil)
)

// Dial connects to the broker at addr ("host:port").
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}
	c, err := Connect(ctx, conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Connect performs the MQTT handshake over conn and subscribes to the
// response topic.
func Connect(ctx context.Context, conn net.Conn, opts ...Option) (*Client, error) {
	c := &Client{
		clientID:  "bikewatch-" + uuid.NewString(),
		timeout:   defaultTimeout,
		queueSize: defaultQueueSize,
		pending:   make(map[string]chan response),
	}
	c.setPrefix("bikewatch")
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("mqtt-transport")
	}
	c.pushed = queue.NewInMemoryQueue[transport.Message](queue.WithCapacity(c.queueSize))

	c.client = paho.NewClient(paho.ClientConfig{
		ClientID: c.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pub paho.PublishReceived) (bool, error) {
				c.route(pub.Packet)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			c.logger.Error(context.Background(), "mqtt client error", logger.Error(err))
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.logger.Warn(context.Background(), "broker disconnected", logger.Int("reason", int(d.ReasonCode)))
		},
	})

	if _, err := c.client.Connect(ctx, &paho.Connect{
		ClientID:   c.clientID,
		KeepAlive:  defaultKeepAlive,
		CleanStart: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if _, err := c.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: c.respTopic, QoS: 1}},
	}); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.respTopic, err)
	}
	return c, nil
}

// GetConfig requests the active configuration.
func (c *Client) GetConfig(ctx context.Context) ([]byte, error) {
	return c.expect(c.request(ctx, transport.Request{Op: transport.OpConfig}))
}

// GetData requests the current sample of a device.
func (c *Client) GetData(ctx context.Context, deviceID string) ([]byte, error) {
	return c.expect(c.request(ctx, transport.Request{Op: transport.OpData, DeviceID: deviceID}))
}

// GetHistory requests up to count recent records of a device.
func (c *Client) GetHistory(ctx context.Context, deviceID string, count int) ([]byte, error) {
	return c.expect(c.request(ctx, transport.Request{Op: transport.OpHistory, DeviceID: deviceID, Count: count}))
}

// GetWeatherSingleStation requests a station reading.
func (c *Client) GetWeatherSingleStation(ctx context.Context, stationID int) ([]byte, bool, error) {
	resp, err := c.request(ctx, transport.Request{Op: transport.OpWeather, StationID: stationID})
	if err != nil {
		return nil, false, err
	}
	if resp.status == transport.StatusAbsent {
		return nil, false, nil
	}
	payload, err := c.expect(resp, nil)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Pushed returns samples published by the service without a request.
func (c *Client) Pushed(ctx context.Context) <-chan transport.Message {
	return c.pushed.Dequeue(ctx)
}

// Close disconnects from the broker and fails pending requests.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	_ = c.pushed.Close()
	if err := c.client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, req transport.Request) (response, error) {
	if c.closed.Load() {
		return response{}, transport.ErrClosed
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	if _, err := c.client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   c.reqTopic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			CorrelationData: []byte(id),
			ResponseTopic:   c.respTopic,
			ContentType:     "application/json",
		},
	}); err != nil {
		return response{}, fmt.Errorf("failed to publish %s request: %w", req.Op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return response{}, transport.ErrClosed
		}
		return resp, nil
	case <-timer.C:
		return response{}, fmt.Errorf("%s request timed out after %s: %w", req.Op, c.timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (c *Client) expect(resp response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	switch resp.status {
	case transport.StatusOK, "":
		return resp.payload, nil
	case transport.StatusAbsent:
		return nil, fmt.Errorf("%w: no data", transport.ErrRemote)
	default:
		return nil, fmt.Errorf("%w: %s", transport.ErrRemote, string(resp.payload))
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) route(p *paho.Publish) {
	if p.Topic != c.respTopic {
		return
	}

	var corr []byte
	var status string
	if p.Properties != nil {
		corr = p.Properties.CorrelationData
		status = p.Properties.User.Get(transport.StatusKey)
	}

	if len(corr) == 0 {
		msg := transport.Message{Payload: p.Payload, Received: time.Now()}
		if err := c.pushed.Enqueue(context.Background(), msg); err != nil {
			metrics.RecordPushedSample("rejected")
		}
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[string(corr)]
	if ok {
		delete(c.pending, string(corr))
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug(context.Background(), "dropping response for unknown request", logger.String("correlation", string(corr)))
		return
	}
	ch <- response{payload: p.Payload, status: status}
}

func (c *Client) setPrefix(prefix string) {
	c.reqTopic = transport.Topic(prefix, transport.RequestTopic)
	c.respTopic = transport.Topic(prefix, transport.ResponseTopic)
}
