package server

import (
	"context"
	"log/slog"
	"time"

	"docsum/app/api"
	"docsum/app/middleware"

	"github.com/gofiber/fiber/v2"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    100 << 20,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
}

// NewServer routes requests to deps. Handlers run with ctx as their user
// context, so cancelling ctx stops long summarization runs at a checkpoint.
func NewServer(ctx context.Context, addr string, deps *Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var asker api.Asker
	if deps.Engine != nil {
		asker = deps.Engine
	}

	var (
		app             = fiber.New(fiberConfig)
		checkHandler    = api.NewCheckHandler(deps.Summaries.Enabled(), asker != nil)
		documentHandler = api.NewDocumentHandler(deps.Ingest, deps.Docs)
		summaryHandler  = api.NewSummaryHandler(deps.Summaries, deps.Docs)
		requestHandler  = api.NewRequestHandler(asker, deps.Docs)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
	)

	app.Use(middleware.RequestID(), middleware.AccessLog(logger))
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return c.Next()
	})

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/analyze", documentHandler.HandleAnalyze)
	apiv1.Get("/analysis/:hash", documentHandler.HandleGetAnalysis)
	apiv1.Get("/documents/:hash/segments", documentHandler.HandleSegments)

	apiv1.Post("/summaries/:hash", summaryHandler.HandleSummarize)
	apiv1.Get("/summaries/:hash/status", summaryHandler.HandleStatus)
	apiv1.Get("/summaries/:hash/export", summaryHandler.HandleExport)

	apiv1.Post("/chat/:hash", requestHandler.HandleChat)

	return &Server{
		listenAddr: addr,
		logger:     logger,
		app:        app,
	}
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	if err := s.app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

func (s *Server) Stop() {
	if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		s.logger.Error("server shutdown", "error", err)
	}
	s.logger.Info("server stopped")
}
