// Package providers implements the notification channels alerts are
// delivered through.
package providers

import (
	"fmt"
	"strings"
	"time"

	"fleetwatch/internal/models"
)

// alertTitle is the one-line summary used by every channel.
func alertTitle(alert models.ActiveAlert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.RuleName)
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityUrgent:
		return ":rotating_light:"
	case models.SeverityNotable:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// alertMessage is what browser clients receive over the WebSocket.
type alertMessage struct {
	Type  string             `json:"type"`
	Alert models.ActiveAlert `json:"alert"`
	Event models.Event       `json:"event"`
}

func newAlertMessage(alert models.ActiveAlert, event models.Event) alertMessage {
	return alertMessage{Type: "alert", Alert: alert, Event: event}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

func newSlackPayload(alert models.ActiveAlert, event models.Event) slackPayload {
	title := alertTitle(alert)
	return slackPayload{
		Text: fmt.Sprintf("%s %s", severityEmoji(alert.Severity), title),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: alert.Message}},
			{Type: "section", Fields: []slackText{
				{Type: "mrkdwn", Text: "*Source:* " + string(event.Source)},
				{Type: "mrkdwn", Text: "*Type:* " + event.Type},
				{Type: "mrkdwn", Text: "*Tenant:* " + alert.TenantID},
				{Type: "mrkdwn", Text: "*Time:* " + alert.Timestamp.Format(time.RFC3339)},
			}},
		},
	}
}

type discordPayload struct {
	Content string `json:"content"`
}

func newDiscordPayload(alert models.ActiveAlert, event models.Event) discordPayload {
	return discordPayload{
		Content: fmt.Sprintf("**%s**\n%s\nsource=%s type=%s", alertTitle(alert), alert.Message, event.Source, event.Type),
	}
}

type genericPayload struct {
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Severity  models.Severity `json:"severity"`
	Source    models.Source   `json:"source"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
}

func newGenericPayload(alert models.ActiveAlert, event models.Event) genericPayload {
	return genericPayload{
		Title:     alertTitle(alert),
		Message:   alert.Message,
		Severity:  alert.Severity,
		Source:    event.Source,
		EventType: event.Type,
		Timestamp: alert.Timestamp.Format(time.RFC3339),
	}
}

// payloadFor picks the body shape the receiving service understands.
func payloadFor(url string, alert models.ActiveAlert, event models.Event) any {
	switch {
	case strings.Contains(url, "hooks.slack.com"):
		return newSlackPayload(alert, event)
	case strings.Contains(url, "discord.com/api/webhooks"):
		return newDiscordPayload(alert, event)
	default:
		return newGenericPayload(alert, event)
	}
}

func emailBody(alert models.ActiveAlert, event models.Event) string {
	return fmt.Sprintf(
		"%s\n\nSeverity: %s\nSource: %s\nEvent type: %s\nTenant: %s\nTime: %s\nAlert ID: %s\n",
		alert.Message,
		alert.Severity,
		event.Source,
		event.Type,
		alert.TenantID,
		alert.Timestamp.Format(time.RFC3339),
		alert.ID,
	)
}

func telegramText(alert models.ActiveAlert, event models.Event) string {
	return fmt.Sprintf(
		"*%s*\n%s\n\n*Source:* %s\n*Type:* %s\n*Tenant:* %s",
		alertTitle(alert),
		alert.Message,
		event.Source,
		event.Type,
		alert.TenantID,
	)
}
