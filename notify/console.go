package notify

import "github.com/solventlabs/liquidator"

// Console logs events instead of delivering them; the default when no
// Telegram credentials are configured.
type Console struct {
	log liquidator.Log
}

func NewConsole(log liquidator.Log) *Console {
	return &Console{log: log}
}

func (c *Console) Notify(event liquidator.Event) {
	c.log.Info().
		Str("kind", string(event.Kind)).
		Str("key", event.Key).
		Msg(event.Message)
}

func (c *Console) Alert(event liquidator.Event) {
	c.log.Error().
		Str("kind", string(event.Kind)).
		Str("key", event.Key).
		Msg(event.Message)
}

var _ liquidator.Notifier = (*Console)(nil)
