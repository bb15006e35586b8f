// Package publish announces captures and saves on an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectWait = 250 // ms

	captureSubtopic = "capture"
	saveSubtopic    = "save"
)

// Publisher emits capture lifecycle events. Implementations never block the
// capture path for longer than a publish timeout.
type Publisher interface {
	PublishCapture(ctx context.Context, r *pipeline.Result) error
	PublishSave(ctx context.Context, r *pipeline.Result, path string) error
	Close() error
}

type Config struct {
	Broker   string // host:port or a full URL
	Topic    string
	ClientID string
	QoS      byte
}

// CaptureEvent is the JSON payload of <topic>/capture.
type CaptureEvent struct {
	ID          string    `json:"id"`
	CapturedAt  time.Time `json:"captured_at"`
	Brightness  float64   `json:"brightness"`
	DurationMS  int64     `json:"duration_ms"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	SensorOK    bool      `json:"sensor_ok"`
}

// SaveEvent is the JSON payload of <topic>/save.
type SaveEvent struct {
	CaptureEvent
	Path string `json:"path"`
}

func newCaptureEvent(r *pipeline.Result) CaptureEvent {
	return CaptureEvent{
		ID:          r.ID.String(),
		CapturedAt:  r.CaptureEnd,
		Brightness:  r.Brightness,
		DurationMS:  r.Duration.Milliseconds(),
		Temperature: r.Reading.Temperature,
		Humidity:    r.Reading.Humidity,
		SensorOK:    r.Reading.OK(),
	}
}

// MQTTPublisher publishes events through a paho client.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	log    logger.Logger

	published atomic.Uint64
	failures  atomic.Uint64
}

type noopPublisher struct{}

// New connects to the configured broker, or returns a no-op publisher when
// no broker is set. A broker that is unreachable at startup does not fail;
// the client keeps reconnecting in the background.
func New(cfg Config, log logger.Logger) (Publisher, error) {
	log = log.With("publish")

	if cfg.Broker == "" {
		log.Debug().Msg("MQTT broker not configured, using no-op publisher")
		return noopPublisher{}, nil
	}
	if cfg.Topic == "" {
		return nil, errors.New().WithMessage(errors.ErrInvalidConfig, "mqtt topic must not be empty")
	}

	broker := brokerURL(cfg.Broker)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Str("client_id", cfg.ClientID).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost, reconnecting")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", broker).Msg("MQTT broker not reachable yet, continuing")
	} else if err := token.Error(); err != nil {
		return nil, errors.New().Wrap(errors.ErrInitFailed, err)
	}

	return NewMQTTPublisher(client, cfg.Topic, cfg.QoS, log), nil
}

// NewMQTTPublisher wraps an already configured client.
func NewMQTTPublisher(client mqtt.Client, topic string, qos byte, log logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		qos:    qos,
		log:    log,
	}
}

func (p *MQTTPublisher) PublishCapture(ctx context.Context, r *pipeline.Result) error {
	return p.publish(ctx, captureSubtopic, newCaptureEvent(r))
}

func (p *MQTTPublisher) PublishSave(ctx context.Context, r *pipeline.Result, path string) error {
	return p.publish(ctx, saveSubtopic, SaveEvent{
		CaptureEvent: newCaptureEvent(r),
		Path:         path,
	})
}

func (p *MQTTPublisher) publish(ctx context.Context, subtopic string, event any) error {
	errFactory := errors.New()
	topic := p.topic + "/" + subtopic

	if !p.client.IsConnected() {
		p.failures.Add(1)
		return errFactory.WithMessage(errors.ErrOperationFailed, "mqtt not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.failures.Add(1)
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		p.failures.Add(1)
		return errFactory.WithData(errors.ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		p.failures.Add(1)
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	p.published.Add(1)
	p.log.Debug().
		Str("topic", topic).
		Int("size", len(payload)).
		Msg("Event published")

	return nil
}

// Stats returns the number of successful and failed publishes.
func (p *MQTTPublisher) Stats() (published, failures uint64) {
	return p.published.Load(), p.failures.Load()
}

func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectWait)
		p.log.Info().Msg("MQTT disconnected")
	}
	return nil
}

func (noopPublisher) PublishCapture(context.Context, *pipeline.Result) error {
	return nil
}

func (noopPublisher) PublishSave(context.Context, *pipeline.Result, string) error {
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
