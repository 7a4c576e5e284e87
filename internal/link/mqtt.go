package link

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

const (
	defaultQoS          = 1
	defaultKeepAlive    = 60 * time.Second
	defaultPingTimeout  = 10 * time.Second
	disconnectQuiesceMs = 250
)

// MQTTConfig holds the connection settings of an MQTT device link.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	Topic    string // e.g. csi/+/raw
	QoS      byte
}

// WithMQTTLogger sets the logger for the MQTT source.
func WithMQTTLogger(logger *slog.Logger) func(m *MQTTSource) {
	return func(m *MQTTSource) {
		m.logger = logger.With(slog.String("source", m.cfg.Topic))
	}
}

// WithMQTTStamp applies fn to every accepted sample before it is forwarded.
func WithMQTTStamp(fn func(s *csi.Sample)) func(m *MQTTSource) {
	return func(m *MQTTSource) {
		m.stamp = fn
	}
}

// MQTTSource receives device-link records published to an MQTT topic. A payload may carry
// one record or several newline-delimited records; they are validated the same way as
// lines of a serial stream.
type MQTTSource struct {
	cfg    MQTTConfig
	client mqtt.Client

	// handlers hold mu for reading while they deliver; Stop takes it for writing so
	// that no delivery is in flight once it returns.
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once

	stamp    func(s *csi.Sample)
	counters counters
	logger   *slog.Logger
}

// NewMQTTSource creates an MQTT source. The connection is established by Start.
func NewMQTTSource(cfg MQTTConfig, options ...func(m *MQTTSource)) (*MQTTSource, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid mqtt QoS %d", cfg.QoS)
	}

	m := MQTTSource{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetPingTimeout(defaultPingTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		m.logger.Info("mqtt connection established", slog.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
	})

	m.client = mqtt.NewClient(opts)

	return &m, nil
}

// Counters returns a snapshot of the record counters.
func (m *MQTTSource) Counters() Counters {
	return m.counters.snapshot()
}

// Start connects to the broker and subscribes to the topic. Samples are delivered to the
// samples channel until ctx is cancelled or Stop is called. Records arriving while the
// channel is full are held until ctx ends.
func (m *MQTTSource) Start(ctx context.Context, samples chan<- csi.Sample) error {
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		if m.stopped || ctx.Err() != nil {
			return
		}

		for _, s := range m.decode(msg.Payload()) {
			if ctx.Err() != nil {
				return
			}

			select {
			case samples <- s:
			case <-ctx.Done():
				return
			}
		}
	}

	token := m.client.Subscribe(m.cfg.Topic, m.cfg.QoS, handler)
	if token.Wait() && token.Error() != nil {
		m.client.Disconnect(disconnectQuiesceMs)
		return fmt.Errorf("subscribing to %s: %w", m.cfg.Topic, token.Error())
	}

	m.logger.Info("subscribed to device topic", slog.String("topic", m.cfg.Topic))

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// Stop unsubscribes and disconnects from the broker. It waits for message handlers that
// are delivering samples, so the samples channel may be closed once Stop returns. The
// context passed to Start must be cancelled first, or the channel drained, otherwise a
// handler blocked on a full channel keeps Stop waiting.
func (m *MQTTSource) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		m.client.Unsubscribe(m.cfg.Topic).WaitTimeout(time.Second)
		m.client.Disconnect(disconnectQuiesceMs)
		m.logger.Info("mqtt source stopped", slog.Any("counters", m.Counters()))
	})
}

// decode splits a payload into records and returns the valid ones.
func (m *MQTTSource) decode(payload []byte) []csi.Sample {
	var out []csi.Sample

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, len(payload)+1), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			m.counters.skipped.Add(1)
			continue
		}

		s, err := csi.ParseRecord(line)
		if err != nil {
			m.counters.malformed.Add(1)
			m.logger.Warn(fmt.Sprintf("error parsing record: %s", err.Error()))
			continue
		}

		if m.stamp != nil {
			m.stamp(&s)
		}
		m.counters.accepted.Add(1)
		out = append(out, s)
	}

	return out
}
