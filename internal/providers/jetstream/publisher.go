package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/messaging"
)

const (
	subjectXPAwarded   = "xp_awarded"
	subjectBadgeEarned = "badge_earned"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// DuplicateWindow is how long the stream remembers message ids for deduplication
	DuplicateWindow time.Duration
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
}

// NewPublisher connects to NATS, ensures the ledger stream exists and returns a publisher
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (messaging.Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	duplicates := cfg.DuplicateWindow
	if duplicates <= 0 {
		duplicates = 24 * time.Hour
	}

	if err := js.EnsureStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{"ledger.>"},
		Storage:    jetstream.FileStorage,
		Duplicates: duplicates,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
	}, nil
}

// PublishXPAwarded publishes an XP award, deduplicated per (tx hash, address, reason)
func (p *publisher) PublishXPAwarded(ctx context.Context, n messaging.XPAwardedNotification) error {
	msgID := fmt.Sprintf("xp:%s:%s:%s", n.TxHash, n.Address, n.Reason)
	return p.publish(ctx, buildSubject(n.Network, subjectXPAwarded), msgID, n)
}

// PublishBadgeEarned publishes a badge grant, deduplicated per (address, badge)
func (p *publisher) PublishBadgeEarned(ctx context.Context, n messaging.BadgeEarnedNotification) error {
	msgID := fmt.Sprintf("badge:%s:%s", n.Address, n.Badge.Name)
	return p.publish(ctx, buildSubject(n.Network, subjectBadgeEarned), msgID, n)
}

func (p *publisher) publish(ctx context.Context, subject, msgID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	logger.DebugCtx(ctx, "Publishing ledger notification", zap.String("subject", subject), zap.String("msg_id", msgID))

	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// buildSubject returns ledger.{network}.{kind}, e.g. ledger.sepolia.xp_awarded
func buildSubject(network, kind string) string {
	return fmt.Sprintf("ledger.%s.%s", network, kind)
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
