// Package notify delivers outbound notifications. Deliveries are
// fire-and-forget: failures are logged and never block a ticket transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/config"
)

// Notifier sends a message to a channel reference (a Slack channel, a
// requester DM, an escalation queue).
type Notifier interface {
	Notify(ctx context.Context, channelRef, message string)
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewSlackNotifier posts messages to an incoming-webhook URL.
func NewSlackNotifier(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &slackNotifier{
		webhookURL: cfg.SlackWebhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (n *slackNotifier) Notify(ctx context.Context, channelRef, message string) {
	payload, err := json.Marshal(map[string]string{
		"channel": channelRef,
		"text":    message,
	})
	if err != nil {
		n.logger.Warn("notification encode failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Warn("notification request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("channel", channelRef), zap.Error(err))
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		n.logger.Warn("notification rejected",
			zap.String("channel", channelRef),
			zap.Error(fmt.Errorf("webhook returned %d", resp.StatusCode)))
	}
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier records notifications in the service log. Used when no
// webhook is configured.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(_ context.Context, channelRef, message string) {
	n.logger.Info("notification",
		zap.String("channel", channelRef),
		zap.String("message", message))
}

// FromConfig picks the Slack notifier when a webhook is configured and the
// log notifier otherwise.
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	if cfg.SlackWebhookURL != "" {
		return NewSlackNotifier(cfg, logger)
	}
	return NewLogNotifier(logger)
}
