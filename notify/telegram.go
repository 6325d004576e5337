// Package notify delivers reporter events to operators. Delivery is
// fire-and-forget; the engine never waits on it.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/solventlabs/liquidator"
)

// Telegram sends events through the Telegram Bot API, suppressing repeats of
// the same dedupe key within a cooldown window.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
	clk      clock.Clock
	cooldown time.Duration
	log      liquidator.Log

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewTelegram(log liquidator.Log, clk clock.Clock, botToken, chatID string, cooldown time.Duration) *Telegram {
	if clk == nil {
		clk = clock.New()
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 30 * time.Second},
		clk:      clk,
		cooldown: cooldown,
		log:      log,
		lastSent: make(map[string]time.Time),
	}
}

func (t *Telegram) Notify(event liquidator.Event) {
	t.deliver(event)
}

func (t *Telegram) Alert(event liquidator.Event) {
	t.deliver(event)
}

func (t *Telegram) deliver(event liquidator.Event) {
	if t.suppressed(event.Key) {
		return
	}
	go func() {
		if err := t.send(event.Message); err != nil {
			t.log.Warn().Err(err).Str("key", event.Key).Msg("telegram delivery failed")
		}
	}()
}

func (t *Telegram) suppressed(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.cooldown {
		return true
	}
	t.lastSent[key] = now
	return false
}

func (t *Telegram) send(text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resp, err := t.client.Post(apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

var _ liquidator.Notifier = (*Telegram)(nil)
