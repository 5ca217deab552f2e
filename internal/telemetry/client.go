package telemetry

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/posctl/internal/actuator"
)

const DefaultClientTimeout = 200 * time.Millisecond

// Client is a Store backed by a remote Server.
type Client struct {
	base    string
	timeout time.Duration
}

var (
	_ Store     = (*Client)(nil)
	_ Defaulter = (*Client)(nil)
)

// NewClient talks to the server at base, e.g. "http://10.0.0.2:5800".
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{base: strings.TrimRight(base, "/"), timeout: timeout}
}

func (c *Client) url(key string) string {
	return c.base + "/api/telemetry/" + url.PathEscape(key)
}

func (c *Client) PublishNumber(key string, v float64) error {
	return c.put(c.url(key), v)
}

func (c *Client) PublishBool(key string, v bool) error {
	return c.put(c.url(key), v)
}

func (c *Client) SetDefaultNumber(key string, v float64) error {
	return c.put(c.url(key)+"?default=true", v)
}

func (c *Client) NumberOrDefault(key string, def float64) (float64, error) {
	a := fiber.Get(c.url(key)).Timeout(c.timeout)
	if err := a.Parse(); err != nil {
		return def, errors.Wrap(actuator.ErrTelemetryUnavailable, err.Error())
	}
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return def, errors.Wrapf(actuator.ErrTelemetryUnavailable, "reading %q: %v", key, multierr.Combine(errs...))
	}
	switch code {
	case fiber.StatusOK:
	case fiber.StatusNotFound:
		return def, nil
	default:
		return def, errors.Wrapf(actuator.ErrTelemetryUnavailable, "reading %q: status %d", key, code)
	}

	var e Entry
	if err := json.Unmarshal(body, &e); err != nil {
		return def, errors.Wrapf(actuator.ErrTelemetryUnavailable, "decoding %q: %v", key, err)
	}
	if e.Kind != KindNumber {
		return def, nil
	}
	return e.Number, nil
}

func (c *Client) put(target string, v interface{}) error {
	a := fiber.Put(target).Timeout(c.timeout).JSON(fiber.Map{"value": v})
	if err := a.Parse(); err != nil {
		return errors.Wrap(actuator.ErrTelemetryUnavailable, err.Error())
	}
	code, _, errs := a.Bytes()
	if len(errs) > 0 {
		return errors.Wrapf(actuator.ErrTelemetryUnavailable, "writing %s: %v", target, multierr.Combine(errs...))
	}
	if code != fiber.StatusOK {
		return errors.Wrapf(actuator.ErrTelemetryUnavailable, "writing %s: status %d", target, code)
	}
	return nil
}
