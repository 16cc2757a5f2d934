package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/novaos/novaos/internal/kvs"
)

// Notifier delivers reminder notifications to the durable per-user KVS
// queue (spec §4.10, §6: "notifications:queue:{uid}"), and — supplemented,
// per DESIGN.md — best-effort mirrors them to Slack so an operator sees
// escalation traffic without tailing the queue.
type Notifier struct {
	kv      kvs.Store
	slack   *slack.Client
	channel string
	enabled bool
	log     *slog.Logger
}

func NewNotifier(kv kvs.Store, slackBotToken, channel string, enabled bool, log *slog.Logger) *Notifier {
	n := &Notifier{kv: kv, channel: channel, enabled: enabled, log: log}
	if enabled && slackBotToken != "" {
		n.slack = slack.New(slackBotToken)
	}
	return n
}

func notificationsQueueKey(uid string) string { return fmt.Sprintf("notifications:queue:%s", uid) }

// Enqueue pushes a reminder notification onto the user's durable queue,
// then best-effort mirrors it to Slack. The KVS write is the source of
// truth; Slack failures are logged, never propagated.
func (n *Notifier) Enqueue(ctx context.Context, uid, message string) error {
	if err := n.kv.ListPush(ctx, notificationsQueueKey(uid), message); err != nil {
		return fmt.Errorf("scheduler: enqueue notification: %w", err)
	}
	if n.slack == nil {
		return nil
	}
	if _, _, err := n.slack.PostMessageContext(ctx, n.channel, slack.MsgOptionText(fmt.Sprintf("[%s] %s", uid, message), false)); err != nil {
		n.log.Warn("scheduler: slack delivery failed", "user", uid, "error", err)
	}
	return nil
}
