package notification

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/pkg/email"
)

type staticSource struct {
	rows  []models.ChannelConfig
	rules []models.AlertRule
	err   error
}

func (s *staticSource) EnabledChannels(context.Context) ([]models.ChannelConfig, error) {
	return s.rows, s.err
}

func (s *staticSource) AlertRules(context.Context) ([]models.AlertRule, error) {
	return s.rules, s.err
}

type recordingTarget struct {
	mu       sync.Mutex
	channels []alerting.Channel
	rules    []models.AlertRule
	sets     int
}

func (r *recordingTarget) SetChannels(ch []alerting.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = ch
	r.sets++
}

func (r *recordingTarget) SetRules(rules []models.AlertRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = rules
}

func (r *recordingTarget) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.channels {
		out = append(out, c.Name())
	}
	return out
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, []byte, string) error { return nil }

func row(name, typ string, enabled bool, cfg map[string]any) models.ChannelConfig {
	return models.ChannelConfig{ID: uuid.New(), Name: name, Type: typ, Enabled: enabled, Configuration: cfg}
}

func newTestReloader(src *staticSource, target *recordingTarget) *Reloader {
	mail := email.NewClient("smtp.example.com", 25, "alerts@example.com", "", "")
	return NewReloader(src, src, target, nopBroadcaster{}, mail, rate.NewLimiter(rate.Inf, 1), logging.NewDiscard())
}

func TestReloader_BuildsChannelsFromEnabledRows(t *testing.T) {
	src := &staticSource{rows: []models.ChannelConfig{
		row("ops-hooks", models.ChannelWebhook, true, map[string]any{"urls": []any{"https://example.com/a", "https://example.com/b"}}),
		row("ops-slack", models.ChannelSlack, true, map[string]any{"webhook_url": "https://hooks.slack.com/services/x"}),
		row("oncall-mail", models.ChannelEmail, true, map[string]any{"recipients": "oncall@example.com"}),
		row("disabled", models.ChannelSlack, false, map[string]any{"webhook_url": "https://hooks.slack.com/services/y"}),
		row("broken-slack", models.ChannelSlack, true, nil),
		row("mystery", "pager", true, nil),
		row("browser", models.ChannelWebSocket, true, nil),
	}}
	target := &recordingTarget{}
	r := newTestReloader(src, target)

	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, []string{models.ChannelWebSocket, "ops-hooks", "ops-slack", "oncall-mail"}, target.names())
}

func TestReloader_Telegram(t *testing.T) {
	src := &staticSource{rows: []models.ChannelConfig{
		row("tg", models.ChannelTelegram, true, map[string]any{"bot_token": "123:abc", "chat_ids": []any{float64(42), 43}}),
		row("tg-missing-chat", models.ChannelTelegram, true, map[string]any{"bot_token": "123:abc"}),
	}}
	target := &recordingTarget{}
	r := newTestReloader(src, target)

	var gotIDs []int64
	r.newTelegram = func(name, token string, chatIDs []int64) (alerting.Channel, error) {
		gotIDs = chatIDs
		return &namedChannel{name: name}, nil
	}

	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, []string{models.ChannelWebSocket, "tg"}, target.names())
	assert.Equal(t, []int64{42, 43}, gotIDs)
}

type namedChannel struct{ name string }

func (c *namedChannel) Name() string { return c.name }
func (c *namedChannel) Send(context.Context, models.ActiveAlert, models.Event) bool {
	return true
}

func TestReloader_SourceErrorKeepsCurrentChannels(t *testing.T) {
	src := &staticSource{rows: []models.ChannelConfig{
		row("ops-slack", models.ChannelSlack, true, map[string]any{"webhook_url": "https://hooks.slack.com/services/x"}),
	}}
	target := &recordingTarget{}
	r := newTestReloader(src, target)
	require.NoError(t, r.Reload(context.Background()))

	src.err = errors.New("db down")
	assert.Error(t, r.Reload(context.Background()))
	assert.Equal(t, 1, target.sets)
	assert.Equal(t, []string{models.ChannelWebSocket, "ops-slack"}, target.names())
}

func TestReloader_RulesOnlyReplacedWhenPresent(t *testing.T) {
	src := &staticSource{}
	target := &recordingTarget{}
	r := newTestReloader(src, target)

	require.NoError(t, r.Reload(context.Background()))
	assert.Nil(t, target.rules)

	src.rules = []models.AlertRule{{ID: "r1", Severity: models.SeverityUrgent, Enabled: true}}
	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, src.rules, target.rules)
}

func TestReloader_IntoEngine(t *testing.T) {
	src := &staticSource{rows: []models.ChannelConfig{
		row("ops-hooks", models.ChannelWebhook, true, map[string]any{"url": "https://example.com/a"}),
	}}
	eng := alerting.NewEngine(nil, logging.NewDiscard())
	r := NewReloader(src, nil, eng, nopBroadcaster{}, nil, rate.NewLimiter(rate.Inf, 1), logging.NewDiscard())

	require.NoError(t, r.Reload(context.Background()))
	require.Len(t, eng.Channels(), 2)
	assert.Equal(t, models.ChannelWebSocket, eng.Channels()[0].Name())
	assert.Equal(t, models.DefaultAlertRules(), eng.Rules())
}

func TestReloader_Run(t *testing.T) {
	src := &staticSource{}
	target := &recordingTarget{}
	r := newTestReloader(src, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()
		return target.sets >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channels:
  - name: hooks
    type: webhook
    enabled: true
    config:
      urls: [https://example.com/a]
  - name: off
    type: slack
    enabled: false
rules:
  - id: only-urgent
    name: Only urgent
    severity: urgent
    enabled: true
`), 0o644))

	src := FileSource{Path: path}
	target := &recordingTarget{}
	r := NewReloader(src, src, target, nopBroadcaster{}, nil, rate.NewLimiter(rate.Inf, 1), logging.NewDiscard())

	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, []string{models.ChannelWebSocket, "hooks"}, target.names())
	require.Len(t, target.rules, 1)
	assert.Equal(t, "only-urgent", target.rules[0].ID)
}
