// Package mqtt announces outbound notifications on an MQTT topic so
// home automation can react when Koto messages a user, for example by
// chiming a speaker. Connection management uses Eclipse Paho v2's
// autopaho package with automatic reconnection; a will message flips
// the availability topic to "offline" on unexpected disconnects.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/izaki/koto-agent/internal/config"
)

// announcement is the JSON payload published per delivered message.
type announcement struct {
	UserID string    `json:"user_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Announcer publishes notification announcements to a broker. It
// implements the scheduler's Deliverer interface.
type Announcer struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// NewAnnouncer creates an Announcer but does not connect. Call
// [Announcer.Start] before delivering.
func NewAnnouncer(cfg config.MQTTConfig, logger *slog.Logger) *Announcer {
	return &Announcer{cfg: cfg, logger: logger}
}

// Start connects to the broker. autopaho keeps retrying in the
// background after the initial attempt, so a slow broker does not
// block startup beyond the grace period.
func (a *Announcer) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(a.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	clientID := a.cfg.ClientID
	if clientID == "" {
		clientID = "koto-agent"
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.cfg.Username,
		ConnectPassword: []byte(a.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   a.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.logger.Info("mqtt connected to broker", "broker", a.cfg.Broker)
			a.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			a.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	a.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		a.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an "offline" availability message and disconnects.
func (a *Announcer) Stop(ctx context.Context) error {
	if a.cm == nil {
		return nil
	}
	a.publishAvailability(ctx, a.cm, "offline")
	return a.cm.Disconnect(ctx)
}

// Deliver publishes one announcement. The broker copy is best-effort
// secondary delivery; the LINE push is the primary channel.
func (a *Announcer) Deliver(ctx context.Context, userID, text string) error {
	if a.cm == nil {
		return fmt.Errorf("mqtt announcer not started")
	}

	payload, err := json.Marshal(announcement{
		UserID: userID,
		Text:   text,
		SentAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	if _, err := a.cm.Publish(ctx, &paho.Publish{
		Topic:   a.cfg.Topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}

	a.logger.Debug("mqtt announcement published", "topic", a.cfg.Topic, "user_id", userID)
	return nil
}

func (a *Announcer) availabilityTopic() string {
	return a.cfg.Topic + "/availability"
}

func (a *Announcer) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   a.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		a.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}
