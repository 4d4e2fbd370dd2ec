package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
)

// Responder answers pub/sub requests on behalf of a Simulator and publishes
// every generated sample of the configured device without correlation data.
type Responder struct {
	sim    *Simulator
	client *paho.Client
	prefix string
	logger logger.Logger
	ctx    context.Context
}

// ServeMQTT connects to a broker over conn and starts answering requests
// published to "{prefix}/json request".
func ServeMQTT(ctx context.Context, sim *Simulator, conn net.Conn, prefix string) (*Responder, error) {
	r := &Responder{
		sim:    sim,
		prefix: prefix,
		logger: logger.Get().Named("simulator-mqtt"),
		ctx:    ctx,
	}

	r.client = paho.NewClient(paho.ClientConfig{
		ClientID: "bikesim-" + uuid.NewString(),
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pub paho.PublishReceived) (bool, error) {
				go r.handle(pub.Packet)
				return true, nil
			},
		},
	})

	if _, err := r.client.Connect(ctx, &paho.Connect{
		ClientID:   r.client.ClientID(),
		KeepAlive:  5,
		CleanStart: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if _, err := r.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: transport.Topic(prefix, transport.RequestTopic),
			QoS:   1,
		}},
	}); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sim.OnSample(r.push)
	return r, nil
}

// Close disconnects from the broker.
func (r *Responder) Close() error {
	return r.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (r *Responder) handle(p *paho.Publish) {
	if p.Properties == nil || p.Properties.ResponseTopic == "" {
		return
	}

	var req transport.Request
	payload, status := []byte("malformed request"), transport.StatusError
	if err := json.Unmarshal(p.Payload, &req); err == nil {
		payload, status = r.sim.Answer(req)
	}

	_, err := r.client.Publish(r.ctx, &paho.Publish{
		QoS:     1,
		Topic:   p.Properties.ResponseTopic,
		Payload: payload,
		Properties: &paho.PublishProperties{
			CorrelationData: p.Properties.CorrelationData,
			ContentType:     "application/json",
			User: paho.UserProperties{{
				Key:   transport.StatusKey,
				Value: status,
			}},
		},
	})
	if err != nil {
		r.logger.Warn(r.ctx, "failed to publish response", logger.Error(err))
	}
}

func (r *Responder) push(deviceID string, s model.Sample) {
	if deviceID != r.sim.Config().DeviceID {
		return
	}
	payload, err := EncodeSample(s)
	if err != nil {
		return
	}
	_, err = r.client.Publish(r.ctx, &paho.Publish{
		QoS:     0,
		Topic:   transport.Topic(r.prefix, transport.ResponseTopic),
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		r.logger.Debug(r.ctx, "failed to push sample", logger.Error(err))
	}
}
