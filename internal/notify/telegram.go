package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Telegram Bot API.
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiURL: telegramAPI,
		token:  token,
		chatID: chatID,
		client: defaultHTTPClient(),
	}
}

// WithAPIURL points the sender at a different Bot API host.
func (t *TelegramSender) WithAPIURL(url string) *TelegramSender {
	t.apiURL = strings.TrimRight(url, "/")
	return t
}

// Send implements Sender. The event is shown as a hashtag so chats can be
// searched by type.
func (t *TelegramSender) Send(ctx context.Context, n Notification) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	text := fmt.Sprintf("*%s*\n%s\n#%s", n.Title, n.Message, n.Event)
	err := postJSON(ctx, t.client, url, map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name implements Sender.
func (t *TelegramSender) Name() string { return "telegram" }
