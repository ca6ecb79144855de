package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/hyeonlog/contact-hub/internal/repository"
	reindexSvc "github.com/hyeonlog/contact-hub/internal/service/reindex"
)

func reindexHandler(svc *reindexSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		queued, err := svc.ReindexAll(c.Request().Context())
		if err != nil {
			log.Errorf("reindex failed after %d jobs: %v", queued, err)

			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error":  "reindex aborted",
				"queued": queued,
			})
		}
		return c.JSON(http.StatusAccepted, map[string]any{"queued": queued})
	}
}

func reindexOneHandler(svc *reindexSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := svc.ReindexOne(c.Request().Context(), id); err != nil {
			if errors.Is(err, reindexSvc.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "contact not found"})
			}

			log.Errorf("reindex %s failed: %v", id, err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusAccepted, map[string]any{"queued": 1})
	}
}

// queueStatsHandler reports both sides of the pipeline: queue depths from the
// transport and outbox rows by status from MySQL.
func queueStatsHandler(svc *reindexSvc.Service, outboxRepo repository.OutboxRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		stats, err := svc.Stats(ctx)
		if err != nil {
			log.Errorf("queue stats failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		counts, err := outboxRepo.CountByStatus(ctx)
		if err != nil {
			log.Errorf("outbox counts failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		outbox := make(map[string]int64, len(counts))
		for status, n := range counts {
			outbox[string(status)] = n
		}
		return c.JSON(http.StatusOK, map[string]any{
			"queue":  stats,
			"outbox": outbox,
		})
	}
}
