package transport

import (
	"fmt"
	"log/slog"
)

// New builds the transport named by cfg.Type. A websocket transport that
// cannot connect yet is still returned; it keeps retrying in the background.
func New(cfg Config, logger *slog.Logger) (Transport, error) {
	switch cfg.Type {
	case "", "http":
		return NewHTTP(cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "websocket":
		url := cfg.WebsocketURL
		if url == "" {
			url = WebsocketURLFor(cfg.BaseURL)
		}
		c := NewWebsocket(url, cfg.APIKey, cfg.Timeout, logger)
		if err := c.Dial(); err != nil {
			if logger != nil {
				logger.Warn("Initial websocket dial failed, retrying in background", "url", url, "error", err)
			}
			go c.reconnect()
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}
}
