// Package notify delivers best-effort notifications for transitions. Delivery
// is never on the transition's critical path: failures are logged and dropped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"caseline/internal/config"
)

const defaultTimeout = 5 * time.Second

// Event is one delivered notification.
type Event struct {
	CaseID     string `json:"case_id"`
	Seq        int64  `json:"seq"`
	Transition string `json:"transition"`
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state"`
	ActorID    string `json:"actor_id"`
	TS         string `json:"ts"`
}

type target interface {
	name() string
	wants(transition string) bool
	send(ctx context.Context, e Event) error
}

// Dispatcher holds the configured targets. Webhooks consume the full ledger
// feed (via Watcher); the Slack target receives only the post-transition hook
// for transitions flagged notification-bearing.
type Dispatcher struct {
	webhooks []target
	slack    target
}

func NewDispatcher(cfg *config.Config) *Dispatcher {
	d := &Dispatcher{}
	client := &http.Client{Timeout: defaultTimeout}
	for _, hook := range cfg.Notifications.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.webhooks = append(d.webhooks, &webhookTarget{url: hook.URL, transitions: hook.Transitions, client: client})
	}
	sc := cfg.Notifications.Slack
	if sc.Token != "" && sc.ChannelID != "" {
		d.slack = &slackTarget{
			client:      slack.New(sc.Token),
			channelID:   sc.ChannelID,
			transitions: sc.Transitions,
		}
	}
	return d
}

// HasWebhooks reports whether any webhook target is configured.
func (d *Dispatcher) HasWebhooks() bool { return len(d.webhooks) > 0 }

// DispatchFeed delivers one ledger record to interested webhook targets.
func (d *Dispatcher) DispatchFeed(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	for _, t := range d.webhooks {
		if !t.wants(e.Transition) {
			continue
		}
		if err := t.send(ctx, e); err != nil {
			log.Printf("notify: %s delivery failed for case %s: %v", t.name(), e.CaseID, err)
		}
	}
}

// DispatchHook delivers a flagged transition to the Slack target.
func (d *Dispatcher) DispatchHook(e Event) {
	if d.slack == nil || !d.slack.wants(e.Transition) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := d.slack.send(ctx, e); err != nil {
		log.Printf("notify: %s delivery failed for case %s: %v", d.slack.name(), e.CaseID, err)
	}
}

type webhookTarget struct {
	url         string
	transitions []string
	client      *http.Client
}

func (w *webhookTarget) name() string { return "webhook " + w.url }

func (w *webhookTarget) wants(transition string) bool { return wantsTransition(w.transitions, transition) }

func (w *webhookTarget) send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

type slackTarget struct {
	client      *slack.Client
	channelID   string
	transitions []string
}

func (s *slackTarget) name() string { return "slack" }

func (s *slackTarget) wants(transition string) bool { return wantsTransition(s.transitions, transition) }

func (s *slackTarget) send(ctx context.Context, e Event) error {
	text := fmt.Sprintf("Case %s: %s (%s → %s) by %s", e.CaseID, e.Transition, e.FromState, e.ToState, e.ActorID)
	_, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false))
	return err
}

func wantsTransition(filter []string, transition string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if t == transition {
			return true
		}
	}
	return false
}
