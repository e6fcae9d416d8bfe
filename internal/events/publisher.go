// Package events publishes sync lifecycle events to NATS so downstream
// subscribers (notifications, dashboards) can react without polling
// connection status, mirroring the teacher's alert-publishing pattern
// over the same *nats.Conn.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
)

type SyncCompleted struct {
	ConnectionID   string        `json:"connection_id"`
	UserID         string        `json:"user_id"`
	Exchange       string        `json:"exchange"`
	TradesImported int           `json:"trades_imported"`
	DurationMS     int64         `json:"duration_ms"`
	Timestamp      time.Time     `json:"timestamp"`
}

type SyncFailed struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Exchange     string    `json:"exchange"`
	Error        string    `json:"error"`
	Timestamp    time.Time `json:"timestamp"`
}

type Publisher struct {
	conn   *nats.Conn
	topics config.TopicsConfig
	logger *zap.Logger
}

func NewPublisher(conn *nats.Conn, topics config.TopicsConfig, logger *zap.Logger) *Publisher {
	return &Publisher{conn: conn, topics: topics, logger: logger}
}

func (p *Publisher) PublishSyncCompleted(evt SyncCompleted) {
	p.publish(p.topics.SyncCompleted, evt)
}

func (p *Publisher) PublishSyncFailed(evt SyncFailed) {
	p.publish(p.topics.SyncFailed, evt)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("events: marshal payload failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
