package server

import (
	"context"
	"time"

	"intranet/app/api"
	"intranet/app/pipeline"
	"intranet/app/ticket"
	"intranet/config"
	"intranet/model"
	"intranet/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *fiber.App
	db     *store.PostgresStore
}

func New(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Server) Run(ctx context.Context) error {
	db, err := store.NewPostgresStore(ctx, s.cfg.Database.DSN(), s.logger)
	if err != nil {
		return err
	}
	s.db = db

	if err := db.Init(ctx); err != nil {
		return err
	}

	registry := model.NewRegistry()
	llm := registry.LLM(model.ClientKey{
		BaseURL: s.cfg.Ollama.BaseURL,
		Model:   s.cfg.Ollama.LLMModel,
		Timeout: s.cfg.Ollama.Timeout,
	})
	embedder := registry.Embedder(model.ClientKey{
		BaseURL: s.cfg.Ollama.BaseURL,
		Model:   s.cfg.Ollama.EmbedModel,
		Timeout: s.cfg.Ollama.Timeout,
	})

	pipe := pipeline.New(llm, embedder, db, pipeline.Options{
		RetrievalK: s.cfg.Retrieval.K,
		RerankTopK: s.cfg.Retrieval.TopK,
		SelfEval:   s.cfg.Retrieval.SelfEval,
	}, s.logger)

	tickets := ticket.NewService(llm, s.cfg.Ticket.APIURL, s.cfg.Ticket.Timeout, s.logger)

	var (
		app = fiber.New(fiber.Config{
			ErrorHandler: api.ErrorHandler,
		})
		checkHandler     = api.NewCheckHandler(s.cfg)
		queryHandler     = api.NewQueryHandler(pipe, db, s.logger)
		chatHandler      = api.NewChatHandler(pipe, db, db, tickets, s.logger)
		analyticsHandler = api.NewAnalyticsHandler(db)
		profileHandler   = api.NewProfileHandler(db)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)
	s.app = app

	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-Id",
	}))

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/query", queryHandler.HandleQuery)

	apiv1.Post("/conversations", chatHandler.HandleCreateConversation)
	apiv1.Get("/conversations", chatHandler.HandleListConversations)
	apiv1.Get("/conversations/:id", chatHandler.HandleGetConversation)
	apiv1.Patch("/conversations/:id", chatHandler.HandleUpdateConversation)
	apiv1.Delete("/conversations/:id", chatHandler.HandleDeleteConversation)
	apiv1.Get("/conversations/:id/messages", chatHandler.HandleListMessages)
	apiv1.Post("/conversations/:id/messages", chatHandler.HandleSendMessage)

	apiv1.Post("/messages/:id/feedback", chatHandler.HandleFeedback)
	apiv1.Post("/messages/:id/ticket", chatHandler.HandleCreateTicket)

	apiv1.Get("/profile", profileHandler.HandleGetProfile)
	apiv1.Put("/profile", profileHandler.HandleUpdateProfile)

	apiv1.Get("/analytics", analyticsHandler.HandleAnalytics)

	s.logger.Info("server listening", zap.String("addr", s.cfg.Server.Addr))
	return app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop() {
	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("shutdown failed", zap.Error(err))
		}
	}
	if s.db != nil {
		s.db.Close()
	}
	s.logger.Info("server stopped")
}
