package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"

	"github.com/randalmurphal/mindflow/pkg/mindmoney"
	"github.com/randalmurphal/mindflow/pkg/mindmoney/store"
)

const (
	defaultSessionLimit = 50
	defaultHistoryLimit = 20
)

// Turner runs one chat turn.
type Turner interface {
	Run(ctx context.Context, req mindmoney.Request) (*mindmoney.Result, error)
}

type chatRequest struct {
	Message   string          `json:"message"`
	History   []store.Message `json:"history"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
}

type server struct {
	turns    Turner
	store    store.Store
	settings mindmoney.Settings
	logger   *slog.Logger
}

// newServer builds the HTTP API around a workflow and its store.
func newServer(turns Turner, st store.Store, settings mindmoney.Settings, logger *slog.Logger) *fiber.App {
	s := &server{turns: turns, store: st, settings: settings, logger: logger}

	app := fiber.New(fiber.Config{AppName: "mindflow"})
	app.Use(cors.New(cors.Config{
		AllowOrigins: settings.CORSOrigins,
		AllowMethods: []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions},
		AllowHeaders: []string{fiber.HeaderContentType, fiber.HeaderAuthorization},
	}))

	api := app.Group("/api")
	api.Post("/chat", s.chat)
	api.Get("/sessions", s.sessions)
	api.Get("/sessions/:id/history", s.history)
	api.Get("/health", s.health)
	return app
}

func (s *server) chat(c fiber.Ctx) error {
	var req chatRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	ctx := c.Context()
	if s.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RequestTimeout)
		defer cancel()
	}

	result, err := s.turns.Run(ctx, mindmoney.Request{
		Message:   req.Message,
		History:   req.History,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		s.logger.Error("chat turn failed",
			slog.String("session_id", req.SessionID),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

func (s *server) sessions(c fiber.Ctx) error {
	limit := fiber.Query[int](c, "limit", defaultSessionLimit)
	sessions, err := s.store.ListSessions(c.Context(), c.Query("user_id"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (s *server) history(c fiber.Ctx) error {
	id := c.Params("id")
	limit := fiber.Query[int](c, "limit", defaultHistoryLimit)
	history, err := s.store.LoadHistory(c.Context(), id, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if history == nil {
		history = []store.Message{}
	}
	return c.JSON(fiber.Map{"session_id": id, "history": history})
}

func (s *server) health(c fiber.Ctx) error {
	if err := s.store.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
