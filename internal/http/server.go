package http

import (
	"context"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/es"
	"github.com/hyeonlog/contact-hub/internal/http/middleware"
	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/outbox"
	"github.com/hyeonlog/contact-hub/internal/query"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"github.com/hyeonlog/contact-hub/internal/repository"
	contactsSvc "github.com/hyeonlog/contact-hub/internal/service/contacts"
	fieldsSvc "github.com/hyeonlog/contact-hub/internal/service/fields"
	reindexSvc "github.com/hyeonlog/contact-hub/internal/service/reindex"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, db *sqlx.DB, rds *redis.Client, index *es.ContactIndex, queueClient *queue.Client, logger *zap.Logger) *Server {
	// repos
	outboxRepo := repository.NewOutboxRepository(db)
	contactsRepo := repository.NewContactsRepository(db, outboxRepo)
	fieldsRepo := repository.NewFieldDefinitionsRepository(db)

	// services
	dispatcher := outbox.NewDispatcher(queueClient, logger)
	planner := query.NewPlanner(db, fieldsRepo)
	contactSvc := contactsSvc.New(contactsRepo, fieldsRepo, dispatcher, planner, index)
	fieldSvc := fieldsSvc.New(fieldsRepo)
	rdxSvc := reindexSvc.New(contactsRepo, queueClient, cfg.Reindex.BatchSize, logger)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", rlMW)

	v1.POST("/contacts", createContactHandler(contactSvc))
	v1.GET("/contacts/search", searchContactsHandler(contactSvc))
	v1.GET("/contacts/:id", getContactHandler(contactSvc))
	v1.PATCH("/contacts/:id", updateContactHandler(contactSvc))
	v1.DELETE("/contacts/:id", deleteContactHandler(contactSvc))

	v1.POST("/fields", createFieldHandler(fieldSvc))
	v1.GET("/fields", listFieldsHandler(fieldSvc))
	v1.GET("/fields/:id", getFieldHandler(fieldSvc))
	v1.DELETE("/fields/:id", deactivateFieldHandler(fieldSvc))

	admin := v1.Group("/admin")
	admin.POST("/reindex", reindexHandler(rdxSvc))
	admin.POST("/reindex/:id", reindexOneHandler(rdxSvc))
	admin.GET("/queue/stats", queueStatsHandler(rdxSvc, outboxRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
