// Package mqtt publishes decoded meter readings and retained Home
// Assistant discovery documents to an MQTT broker.
//
// The publisher uses Eclipse Paho v2's autopaho package for connection
// management with automatic reconnection. A will message flips the
// bridge status topic to "offline" on unexpected disconnects; every
// (re-)connect publishes "connected" there, matching the original
// bridge's birth message.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/sirupsen/logrus"

	"github.com/d21d3q/sma2mqtt/internal/channels"
	"github.com/d21d3q/sma2mqtt/internal/config"
)

// Publisher manages the broker connection and the per-serial discovery
// state.
type Publisher struct {
	cfg config.MQTTConfig
	log *logrus.Entry
	cm  *autopaho.ConnectionManager

	mu   sync.Mutex
	seen map[uint32]bool
}

// New creates a Publisher but does not connect. Call Start to begin the
// connection.
func New(cfg config.MQTTConfig, log *logrus.Entry) *Publisher {
	return &Publisher{
		cfg:  cfg,
		log:  log,
		seen: make(map[uint32]bool),
	}
}

// Start connects to the broker and returns once a first connection
// attempt resolved. autopaho keeps retrying in the background either
// way, so a briefly unreachable broker does not abort startup.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.StatusTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.log.WithField("broker", p.cfg.Broker).Info("connected to broker")
			if _, err := cm.Publish(ctx, &paho.Publish{
				Topic:   p.StatusTopic(),
				Payload: []byte("connected"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				p.log.WithError(err).Warn("status publish failed")
			}
		},
		OnConnectError: func(err error) {
			p.log.WithError(err).Warn("broker connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.log.WithError(err).Warn("initial broker connection timed out, retrying in background")
	}
	return nil
}

// Stop flips the status topic to offline and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.StatusTopic(),
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.log.WithError(err).Warn("offline status publish failed")
	}
	return p.cm.Disconnect(ctx)
}

// StatusTopic is the bridge availability topic, <base>/Status.
func (p *Publisher) StatusTopic() string {
	return p.cfg.BaseTopic + "/Status"
}

// ReadingTopic is the state topic for one measurement,
// <base>/<serial>/<name>.
func (p *Publisher) ReadingTopic(serial, name string) string {
	return p.cfg.BaseTopic + "/" + serial + "/" + name
}

// PublishReadings emits one message per reading, value as text, QoS 0.
// Failures are logged and skipped; a stale reading is worthless a second
// later anyway.
func (p *Publisher) PublishReadings(ctx context.Context, serial string, readings []channels.Reading) {
	if p.cm == nil {
		return
	}
	for _, r := range readings {
		topic := p.ReadingTopic(serial, r.Name)
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: []byte(r.Payload()),
			QoS:     0,
		}); err != nil {
			p.log.WithError(err).WithField("topic", topic).Debug("reading publish failed")
		}
	}
}

// MarkSeen records a meter serial and reports whether it was new, so the
// caller publishes discovery exactly once per meter per process.
func (p *Publisher) MarkSeen(serial uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[serial] {
		return false
	}
	p.seen[serial] = true
	return true
}
