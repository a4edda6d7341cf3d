package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Embed colours per event.
var discordColors = map[string]int{
	"session_approved": 0x2ecc71,
	"session_reset":    0xf1c40f,
	"deck_exhausted":   0x3498db,
	"error":            0xe74c3c,
}

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     defaultHTTPClient(),
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

// Send implements Sender. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, n Notification) error {
	embed := discordEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       discordColors[n.Event],
	}
	if !n.At.IsZero() {
		embed.Timestamp = n.At.UTC().Format(time.RFC3339)
	}
	embed.Footer.Text = n.Event

	err := postJSON(ctx, d.client, d.webhookURL, map[string]any{
		"embeds": []discordEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }
