package telemetry

import (
	"encoding/json"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/logging"
)

// DefaultStreamInterval is how often the websocket stream checks the table
// for changes.
const DefaultStreamInterval = 100 * time.Millisecond

// InputFunc handles a dashboard button press ("toggle", "increase",
// "decrease").
type InputFunc func(button string) error

// Server exposes a Table to dashboards.
type Server struct {
	app      *fiber.App
	table    *Table
	logger   *zap.SugaredLogger
	interval time.Duration

	// OnInput receives POST /api/input/:button. Nil disables the route.
	OnInput InputFunc
}

type valueRequest struct {
	Value json.RawMessage `json:"value"`
}

func NewServer(table *Table, logger *zap.SugaredLogger) *Server {
	s := &Server{
		table:    table,
		logger:   logging.OrNop(logger),
		interval: DefaultStreamInterval,
	}

	app := fiber.New(fiber.Config{
		AppName:               "posctl telemetry",
		DisableStartupMessage: true,
		UnescapePath:          true,
	})

	api := app.Group("/api")
	api.Get("/telemetry", s.handleList)
	api.Get("/telemetry/:key", s.handleGet)
	api.Put("/telemetry/:key", s.handlePut)
	api.Delete("/telemetry/:key", s.handleDelete)
	api.Post("/input/:button", s.handleInput)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleStream))

	s.app = app
	return s
}

// SetStreamInterval changes the websocket poll period.
func (s *Server) SetStreamInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Infow("telemetry server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infow("telemetry server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return errors.Wrap(s.app.Shutdown(), "shutting down telemetry server")
}

func (s *Server) handleList(c *fiber.Ctx) error {
	return c.JSON(s.table.Snapshot())
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	e, ok := s.table.Get(c.Params("key"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no such key")
	}
	return c.JSON(e)
}

// handlePut stores a number or a bool. With ?default=true an existing value
// is left alone.
func (s *Server) handlePut(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return fiber.NewError(fiber.StatusBadRequest, "empty key")
	}
	var req valueRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || len(req.Value) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, `body must be {"value": <number|bool>}`)
	}

	var b bool
	if err := json.Unmarshal(req.Value, &b); err == nil {
		s.table.SetBool(key, b)
		e, _ := s.table.Get(key)
		return c.JSON(e)
	}
	var n float64
	if err := json.Unmarshal(req.Value, &n); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "value must be a number or a bool")
	}
	if c.Query("default") == "true" {
		_ = s.table.SetDefaultNumber(key, n)
	} else {
		s.table.SetNumber(key, n)
	}
	e, _ := s.table.Get(key)
	return c.JSON(e)
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	s.table.Delete(c.Params("key"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleInput(c *fiber.Ctx) error {
	if s.OnInput == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "input not configured")
	}
	button := c.Params("button")
	if err := s.OnInput(button); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"button": button})
}

// handleStream pushes the whole table whenever it changes.
func (s *Server) handleStream(c *websocket.Conn) {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	sent := false
	var last uint64
	for {
		if v := s.table.Version(); !sent || v != last {
			if err := c.WriteJSON(s.table.Snapshot()); err != nil {
				s.logger.Debugw("telemetry stream closed", "error", err)
				return
			}
			sent, last = true, v
		}
		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
