package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel types that can be configured from storage.
const (
	ChannelWebSocket = "websocket"
	ChannelWebhook   = "webhook"
	ChannelSlack     = "slack"
	ChannelEmail     = "email"
	ChannelTelegram  = "telegram"
)

// ChannelConfig is a persisted notification channel definition.
type ChannelConfig struct {
	ID            uuid.UUID      `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Type          string         `json:"type" yaml:"type"`
	Configuration map[string]any `json:"configuration" yaml:"config"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	CreatedAt     time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"-"`
}

// StringValue returns a string configuration entry, or "".
func (c ChannelConfig) StringValue(key string) string {
	s, _ := c.Configuration[key].(string)
	return s
}

// StringList returns a configuration entry holding a list of strings. A single
// string is accepted and split into a one-element list.
func (c ChannelConfig) StringList(key string) []string {
	switch v := c.Configuration[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Int64Value returns an integer configuration entry. JSON numbers decode as
// float64 and YAML ints as int; both are accepted.
func (c ChannelConfig) Int64Value(key string) (int64, bool) {
	switch v := c.Configuration[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
