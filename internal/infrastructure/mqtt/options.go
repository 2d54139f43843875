package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/familytree-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12

	// serviceName identifies this process on the bus.
	serviceName = "familytree-core"
)

// Values of ServiceStatus.Status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Values of ServiceStatus.Reason for an offline status.
const (
	ReasonUnexpected = "unexpected_disconnect"
	ReasonShutdown   = "graceful_shutdown"
)

// ServiceStatus is the retained payload on {prefix}/system/status. Consumers
// of the audit events read it to know whether the event stream is live and
// which topics it covers.
type ServiceStatus struct {
	Service  string   `json:"service"`
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	ClientID string   `json:"clientId"`
	Version  string   `json:"version,omitempty"`
	Streams  []string `json:"streams,omitempty"`

	// Since is when the status took effect. The will is registered at connect
	// time and has none.
	Since string `json:"since,omitempty"`
}

// Option configures a Client before it connects.
type Option func(*Client)

// WithVersion puts the build version into status payloads.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// status builds the payload for the given state.
func (c *Client) status(state, reason string, at time.Time) ServiceStatus {
	s := ServiceStatus{
		Service:  serviceName,
		Status:   state,
		Reason:   reason,
		ClientID: c.clientID,
		Version:  c.version,
	}
	if state == StatusOnline {
		s.Streams = []string{c.topics.AllEvents("auth"), c.topics.AllEvents("family")}
	}
	if !at.IsZero() {
		s.Since = at.UTC().Format(time.RFC3339)
	}
	return s
}

func encodeStatus(s ServiceStatus) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		// Only strings and a string slice; cannot fail.
		return []byte(`{"status":"` + s.Status + `"}`)
	}
	return b
}

// resolveClientID returns the configured client id or derives one from the
// host name, so two instances never share a session on the broker.
func resolveClientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return serviceName
	}
	return serviceName + "-" + host
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps the mqtt config section onto paho options for a
// publish-only client. The session is clean because nothing is subscribed,
// and writes time out with the publish deadline so a stalled socket cannot
// wedge the audit worker.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetWriteTimeout(defaultPublishTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// configureLWT registers the offline status the broker publishes if the
// process dies without Close.
func (c *Client) configureLWT() {
	payload := encodeStatus(c.status(StatusOffline, ReasonUnexpected, time.Time{}))
	c.options.SetBinaryWill(c.topics.SystemStatus(), payload, 1, true)
}
