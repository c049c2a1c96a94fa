package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// DefaultMQTTTopic is the topic commands are read from.
	DefaultMQTTTopic = "vlcsync/commands"

	mqttConnectTimeout = 5 * time.Second
	mqttQuiesce        = 250 // milliseconds
)

// MQTTOptions configures an MQTTSource.
type MQTTOptions struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTSource subscribes to a topic and submits every message payload as
// one batch. The client reconnects on its own and resubscribes on every
// connect.
type MQTTSource struct {
	opts   MQTTOptions
	svc    Submitter
	log    *slog.Logger
	client mqtt.Client
}

// NewMQTTSource returns an unconnected source.
func NewMQTTSource(opts MQTTOptions, svc Submitter, log *slog.Logger) *MQTTSource {
	if opts.Topic == "" {
		opts.Topic = DefaultMQTTTopic
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &MQTTSource{
		opts: opts,
		svc:  svc,
		log:  log.With("source", "mqtt", "broker", opts.Broker, "topic", opts.Topic),
	}
}

// Start connects to the broker and disconnects when ctx is cancelled. A
// broker that is not reachable yet is retried in the background.
func (s *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(s.opts.Broker))
	opts.SetClientID(s.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.log.Info("mqtt connection established")
		token := c.Subscribe(s.opts.Topic, s.opts.QoS, s.handleMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				s.log.Error("mqtt subscribe failed", "error", err)
				return
			}
			s.log.Info("subscribed to command topic", "qos", s.opts.QoS)
		}()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	s.client = mqtt.NewClient(opts)
	s.log.Info("connecting to mqtt broker")

	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		s.log.Warn("mqtt broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop unsubscribes and disconnects.
func (s *MQTTSource) Stop() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.opts.Topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(mqttQuiesce)
	s.log.Info("mqtt source stopped")
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.log.Debug("mqtt message received", "message_id", msg.MessageID())
	submit(s.svc, s.log, strings.TrimSpace(string(msg.Payload())))
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
