package actuator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"qrgate/internal/config"
)

type Command string

const (
	CommandOpen  Command = "open"
	CommandClose Command = "close"
)

// Error reports a command that did not reach the actuator.
type Error struct {
	Command Command
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("actuator %s: %v", e.Command, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client sends fire-and-forget servo commands. No retries, no response
// parsing; the caller's own state stays authoritative.
type Client struct {
	base   string
	param  string
	http   *http.Client
	logger *slog.Logger
}

func New(cfg config.ActuatorConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	param := cfg.Param
	if param == "" {
		param = "open"
	}
	return &Client{
		base:   cfg.URL,
		param:  param,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *Client) Open(ctx context.Context) error {
	return c.send(ctx, CommandOpen)
}

func (c *Client) Close(ctx context.Context) error {
	return c.send(ctx, CommandClose)
}

func (c *Client) send(ctx context.Context, cmd Command) error {
	target, err := c.commandURL(cmd)
	if err != nil {
		return &Error{Command: cmd, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &Error{Command: cmd, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Command: cmd, Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	if c.logger != nil {
		c.logger.Debug("actuator command sent", "command", cmd, "status", resp.StatusCode)
	}
	return nil
}

func (c *Client) commandURL(cmd Command) (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	value := "0"
	if cmd == CommandOpen {
		value = "1"
	}
	q.Set(c.param, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
