// Package messaging publishes error reports to NATS JetStream.
package messaging

import (
	"context"
	"edurecovery/internal/application/common/slogger"
	"edurecovery/internal/config"
	"edurecovery/internal/domain/entity"
	"edurecovery/internal/port/outbound"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SinkName identifies the NATS sink in logs and metrics.
	SinkName = "nats"

	// NATS connection timeout.
	natsConnectionTimeoutSeconds = 5

	// Reports are kept for a week.
	streamMaxAgeHours = 24 * 7

	defaultStreamName    = "ERROR_REPORTS"
	defaultSubjectPrefix = "errors.reports"
)

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("not connected to NATS server")

// ConnectionHealthStatus represents the health status of the NATS connection.
type ConnectionHealthStatus struct {
	Connected  bool   `json:"connected"`
	LastError  string `json:"last_error,omitempty"`
	Uptime     string `json:"uptime"`
	Reconnects int    `json:"reconnects"`
	Published  int64  `json:"published"`
	Failed     int64  `json:"failed"`
}

// streamPublisher is the subset of nats.JetStreamContext used to publish.
type streamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSReportPublisher publishes report payloads to a JetStream stream, one subject
// per severity.
type NATSReportPublisher struct {
	config         config.NATSConfig
	conn           *nats.Conn
	js             nats.JetStreamContext
	publisher      streamPublisher
	mutex          sync.RWMutex
	connectedAt    time.Time
	reconnectCount int
	lastError      error
	published      int64
	failed         int64
}

var _ outbound.ReportSink = (*NATSReportPublisher)(nil)

// NewNATSReportPublisher validates cfg and creates an unconnected publisher.
func NewNATSReportPublisher(cfg config.NATSConfig) (*NATSReportPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}
	if cfg.Stream == "" {
		cfg.Stream = defaultStreamName
	}
	cfg.SubjectPrefix = strings.Trim(cfg.SubjectPrefix, ".")
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaultSubjectPrefix
	}

	return &NATSReportPublisher{config: cfg}, nil
}

// Connect establishes the connection and JetStream context.
func (n *NATSReportPublisher) Connect() error {
	opts := []nats.Option{
		nats.Name("edurecovery-reports"),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			n.mutex.Lock()
			n.reconnectCount++
			n.mutex.Unlock()
			slogger.InfoNoCtx("Reconnected to NATS", slogger.Fields{"url": conn.ConnectedUrl()})
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				return
			}
			n.recordError(err)
			slogger.WarnNoCtx("Disconnected from NATS", slogger.Fields{"error": err.Error()})
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.recordError(err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.recordError(err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n.mutex.Lock()
	n.conn = conn
	n.js = js
	n.publisher = js
	n.connectedAt = time.Now()
	n.mutex.Unlock()
	return nil
}

// Disconnect drains and closes the connection.
func (n *NATSReportPublisher) Disconnect() error {
	n.mutex.Lock()
	conn := n.conn
	n.conn = nil
	n.js = nil
	n.publisher = nil
	n.mutex.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// StreamConfig returns the stream the publisher writes to.
func (n *NATSReportPublisher) StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      n.config.Stream,
		Subjects:  []string{n.config.SubjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    streamMaxAgeHours * time.Hour,
		Replicas:  1,
	}
}

// EnsureStream creates the report stream if it does not exist.
func (n *NATSReportPublisher) EnsureStream() error {
	n.mutex.RLock()
	js := n.js
	n.mutex.RUnlock()
	if js == nil {
		return ErrNotConnected
	}

	if _, err := js.StreamInfo(n.config.Stream); err == nil {
		return nil
	}
	if _, err := js.AddStream(n.StreamConfig()); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns the subject a payload of the given severity is published on.
func (n *NATSReportPublisher) Subject(severity string) string {
	severity = strings.ToLower(strings.TrimSpace(severity))
	if severity == "" {
		severity = "unknown"
	}
	return n.config.SubjectPrefix + "." + severity
}

// Name implements outbound.ReportSink.
func (n *NATSReportPublisher) Name() string {
	return SinkName
}

// Send implements outbound.ReportSink. The report id is the JetStream message id,
// so a report forwarded twice is stored once.
func (n *NATSReportPublisher) Send(ctx context.Context, payload entity.ReportPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mutex.RLock()
	publisher := n.publisher
	n.mutex.RUnlock()
	if publisher == nil {
		n.recordResult(ErrNotConnected)
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = publisher.Publish(n.Subject(payload.Error.Severity), data, nats.Context(ctx), nats.MsgId(payload.ID))
	n.recordResult(err)
	if err != nil {
		return fmt.Errorf("failed to publish report %s: %w", payload.ID, err)
	}
	return nil
}

// ConnectionHealth returns the current connection status and publish counters.
func (n *NATSReportPublisher) ConnectionHealth() ConnectionHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := ConnectionHealthStatus{
		Connected:  n.conn != nil && n.conn.IsConnected(),
		Reconnects: n.reconnectCount,
		Uptime:     "0s",
		Published:  n.published,
		Failed:     n.failed,
	}
	if n.conn != nil {
		status.Uptime = time.Since(n.connectedAt).Round(time.Second).String()
	}
	if n.lastError != nil {
		status.LastError = n.lastError.Error()
	}
	return status
}

func (n *NATSReportPublisher) recordResult(err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if err != nil {
		n.failed++
		n.lastError = err
		return
	}
	n.published++
}

func (n *NATSReportPublisher) recordError(err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.lastError = err
}
