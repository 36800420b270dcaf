// Package notification builds notification channels from stored
// configuration and hot-swaps them into the alert engine.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/config"
	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/internal/providers"
	"fleetwatch/pkg/email"
)

// ChannelSource supplies the enabled channel rows.
type ChannelSource interface {
	EnabledChannels(ctx context.Context) ([]models.ChannelConfig, error)
}

// RuleSource supplies alert rules. An empty result keeps the engine's
// current rules.
type RuleSource interface {
	AlertRules(ctx context.Context) ([]models.AlertRule, error)
}

// Target is the engine the reloader installs channels and rules into.
type Target interface {
	SetChannels(channels []alerting.Channel)
	SetRules(rules []models.AlertRule)
}

// Reloader rebuilds the channel list from a ChannelSource. The WebSocket
// channel is always first in the list.
type Reloader struct {
	channels ChannelSource
	rules    RuleSource
	target   Target
	ws       providers.Broadcaster
	mail     *email.Client
	limiter  *rate.Limiter
	logger   *logging.Logger

	newTelegram func(name, token string, chatIDs []int64) (alerting.Channel, error)
}

// NewReloader creates a Reloader. rules may be nil.
func NewReloader(channels ChannelSource, rules RuleSource, target Target, ws providers.Broadcaster, mail *email.Client, limiter *rate.Limiter, logger *logging.Logger) *Reloader {
	r := &Reloader{
		channels: channels,
		rules:    rules,
		target:   target,
		ws:       ws,
		mail:     mail,
		limiter:  limiter,
		logger:   logger,
	}
	r.newTelegram = func(name, token string, chatIDs []int64) (alerting.Channel, error) {
		return providers.NewTelegramChannel(name, token, chatIDs, r.limiter, r.logger)
	}
	return r
}

// Reload reads the sources and swaps the result into the target. On a
// source error nothing is changed.
func (r *Reloader) Reload(ctx context.Context) error {
	rows, err := r.channels.EnabledChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}

	var rules []models.AlertRule
	if r.rules != nil {
		rules, err = r.rules.AlertRules(ctx)
		if err != nil {
			return fmt.Errorf("failed to load alert rules: %w", err)
		}
	}

	channels := []alerting.Channel{providers.NewWebSocketChannel(r.ws, r.logger)}
	for _, row := range rows {
		if !row.Enabled {
			continue
		}
		ch, err := r.build(row)
		if err != nil {
			r.logger.Warnf("Skipping channel %s (%s): %v", row.Name, row.Type, err)
			continue
		}
		if ch != nil {
			channels = append(channels, ch)
		}
	}

	r.target.SetChannels(channels)
	if len(rules) > 0 {
		r.target.SetRules(rules)
	}
	r.logger.Infof("Loaded %d notification channels and %d alert rules", len(channels), len(rules))
	return nil
}

var errIncomplete = errors.New("incomplete channel configuration")

func (r *Reloader) build(row models.ChannelConfig) (alerting.Channel, error) {
	switch row.Type {
	case models.ChannelWebSocket:
		// Always installed.
		return nil, nil
	case models.ChannelWebhook:
		urls := append(append([]string(nil), row.StringList("urls")...), row.StringList("url")...)
		if len(urls) == 0 {
			return nil, fmt.Errorf("%w: no urls", errIncomplete)
		}
		return providers.NewWebhookChannel(row.Name, urls, r.logger), nil
	case models.ChannelSlack:
		url := row.StringValue("webhook_url")
		if url == "" {
			return nil, fmt.Errorf("%w: no webhook_url", errIncomplete)
		}
		return providers.NewSlackChannel(row.Name, url, r.logger), nil
	case models.ChannelEmail:
		if r.mail == nil {
			return nil, fmt.Errorf("%w: SMTP is not configured", errIncomplete)
		}
		return providers.NewEmailChannel(row.Name, row.StringList("recipients"), r.mail, r.logger), nil
	case models.ChannelTelegram:
		token := row.StringValue("bot_token")
		chatIDs := chatIDList(row)
		if token == "" || len(chatIDs) == 0 {
			return nil, fmt.Errorf("%w: bot_token and chat_ids are required", errIncomplete)
		}
		return r.newTelegram(row.Name, token, chatIDs)
	default:
		return nil, fmt.Errorf("unknown channel type %q", row.Type)
	}
}

func chatIDList(row models.ChannelConfig) []int64 {
	var ids []int64
	if id, ok := row.Int64Value("chat_id"); ok && id != 0 {
		ids = append(ids, id)
	}
	list, _ := row.Configuration["chat_ids"].([]any)
	for _, v := range list {
		sub := models.ChannelConfig{Configuration: map[string]any{"v": v}}
		if id, ok := sub.Int64Value("v"); ok && id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run reloads every interval until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Channel reloader stopped")
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.Errorf("Failed to reload channels: %v", err)
			}
		}
	}
}

// FileSource reads channels and rules from a YAML channel file on every
// call.
type FileSource struct {
	Path string
}

func (s FileSource) EnabledChannels(_ context.Context) ([]models.ChannelConfig, error) {
	f, err := config.LoadChannelFile(s.Path)
	if err != nil {
		return nil, err
	}
	var out []models.ChannelConfig
	for _, ch := range f.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s FileSource) AlertRules(_ context.Context) ([]models.AlertRule, error) {
	f, err := config.LoadChannelFile(s.Path)
	if err != nil {
		return nil, err
	}
	return f.Rules, nil
}
